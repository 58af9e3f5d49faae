package store

import (
	"context"
	"fmt"
)

// SearchHit is a message matching a full-text query.
type SearchHit struct {
	DiscussionID int64   `json:"discussionId"`
	MessageID    int64   `json:"messageId"`
	Title        string  `json:"title"`
	Snippet      string  `json:"snippet"`
	Rank         float64 `json:"rank"`
}

// Search finds messages whose content matches every term of query, best
// matches first.
func (s *SQLiteDiscussionStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	match := escapeFTS(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT m.discussion_id, m.id, d.title,
		        snippet(messages_fts, 0, '[', ']', '...', 12), messages_fts.rank
		 FROM messages_fts
		 JOIN messages m ON m.id = messages_fts.rowid
		 JOIN discussions d ON d.id = m.discussion_id
		 WHERE messages_fts MATCH ?
		 ORDER BY messages_fts.rank
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.DiscussionID, &h.MessageID, &h.Title, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
