package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/colloquy/internal/domain"
)

const timeLayout = time.RFC3339Nano

// SQLiteDiscussionStore persists discussions and their messages.
type SQLiteDiscussionStore struct {
	db  *DB
	now func() time.Time
}

// NewSQLiteDiscussionStore creates a discussion store using the given database.
func NewSQLiteDiscussionStore(db *DB) *SQLiteDiscussionStore {
	return &SQLiteDiscussionStore{db: db, now: time.Now}
}

// Create inserts a new discussion with the given title.
func (s *SQLiteDiscussionStore) Create(ctx context.Context, title string) (*domain.Discussion, error) {
	now := s.now().UTC()
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO discussions (title, created_at, updated_at) VALUES (?, ?, ?)`,
		title, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("creating discussion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading discussion id: %w", err)
	}

	s.db.log.Debug().Int64("id", id).Str("title", title).Msg("discussion created")
	return &domain.Discussion{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// Get returns the discussion with the given id.
func (s *SQLiteDiscussionStore) Get(ctx context.Context, id int64) (*domain.Discussion, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM discussions WHERE id = ?`, id)
	return scanDiscussion(row)
}

// Last returns the most recently created discussion.
func (s *SQLiteDiscussionStore) Last(ctx context.Context) (*domain.Discussion, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM discussions ORDER BY id DESC LIMIT 1`)
	return scanDiscussion(row)
}

// List returns all discussions, most recently updated first.
func (s *SQLiteDiscussionStore) List(ctx context.Context) ([]domain.Discussion, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM discussions ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing discussions: %w", err)
	}
	defer rows.Close()

	var out []domain.Discussion
	for rows.Next() {
		d, err := scanDiscussion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Rename changes a discussion's title.
func (s *SQLiteDiscussionStore) Rename(ctx context.Context, id int64, title string) error {
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE discussions SET title = ?, updated_at = ? WHERE id = ?`,
		title, s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("renaming discussion %d: %w", id, err)
	}
	return expectOneRow(res)
}

// Delete removes a discussion and, through the foreign key, its messages.
func (s *SQLiteDiscussionStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM discussions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting discussion %d: %w", id, err)
	}
	return expectOneRow(res)
}

// AddMessage appends a message to its discussion and returns it with the
// assigned id and creation time.
func (s *SQLiteDiscussionStore) AddMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}

	var metadata sql.NullString
	if msg.Metadata != "" {
		metadata = sql.NullString{String: msg.Metadata, Valid: true}
	}
	var nbTokens sql.NullInt64
	if msg.NbTokens != nil {
		nbTokens = sql.NullInt64{Int64: int64(*msg.NbTokens), Valid: true}
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return msg, fmt.Errorf("begin add message: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (discussion_id, message_type, sender_type, sender, content, metadata,
		                       rank, parent_message_id, binding, model, personality, created_at,
		                       started_generating_at, finished_generating_at, nb_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.DiscussionID, int(msg.Type), int(msg.SenderType), msg.Sender, msg.Content, metadata,
		msg.Rank, msg.ParentMessageID, msg.Binding, msg.Model, msg.Personality,
		msg.CreatedAt.Format(timeLayout),
		formatTimePtr(msg.StartedGeneratingAt), formatTimePtr(msg.FinishedGeneratingAt), nbTokens,
	)
	if err != nil {
		return msg, fmt.Errorf("adding message to discussion %d: %w", msg.DiscussionID, err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return msg, fmt.Errorf("reading message id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE discussions SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt.Format(timeLayout), msg.DiscussionID); err != nil {
		return msg, fmt.Errorf("touching discussion %d: %w", msg.DiscussionID, err)
	}

	if err := tx.Commit(); err != nil {
		return msg, fmt.Errorf("commit add message: %w", err)
	}
	return msg, nil
}

// Messages returns a discussion's messages in insertion order. An unknown
// discussion has no messages.
func (s *SQLiteDiscussionStore) Messages(ctx context.Context, discussionID int64) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE discussion_id = ? ORDER BY id`, discussionID)
	if err != nil {
		return nil, fmt.Errorf("loading messages for discussion %d: %w", discussionID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

const messageColumns = `id, discussion_id, message_type, sender_type, sender, content, metadata,
	rank, parent_message_id, binding, model, personality, created_at,
	started_generating_at, finished_generating_at, nb_tokens`

type scanner interface {
	Scan(dest ...any) error
}

func scanDiscussion(row scanner) (*domain.Discussion, error) {
	var d domain.Discussion
	var createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.Title, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDiscussionNotFound
		}
		return nil, fmt.Errorf("scanning discussion: %w", err)
	}
	d.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	d.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &d, nil
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var msgType, senderType int
		var metadata, started, finished sql.NullString
		var createdAt string
		var nbTokens sql.NullInt64

		if err := rows.Scan(&m.ID, &m.DiscussionID, &msgType, &senderType, &m.Sender, &m.Content,
			&metadata, &m.Rank, &m.ParentMessageID, &m.Binding, &m.Model, &m.Personality,
			&createdAt, &started, &finished, &nbTokens); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		m.Type = domain.MessageType(msgType)
		m.SenderType = domain.SenderType(senderType)
		m.Metadata = metadata.String
		m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		m.StartedGeneratingAt = parseTimePtr(started)
		m.FinishedGeneratingAt = parseTimePtr(finished)
		if nbTokens.Valid {
			n := int(nbTokens.Int64)
			m.NbTokens = &n
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDiscussionNotFound
	}
	return nil
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// escapeFTS quotes each term so user input is matched literally.
func escapeFTS(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
