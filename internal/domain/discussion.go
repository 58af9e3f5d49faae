package domain

import "time"

// NoDiscussion is the id reported to clients when no discussion was created.
const NoDiscussion int64 = 0

// NoParent marks a message with no parent message.
const NoParent int64 = -1

// Discussion is a persisted, ordered conversation thread.
type Discussion struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageType controls whether a message is fed back to the model.
type MessageType int

const (
	// MessageTypeFull is a complete message that is part of the model context.
	MessageTypeFull MessageType = 0
	// MessageTypeFullInvisibleToAI is shown to the user but never sent to the model.
	MessageTypeFullInvisibleToAI MessageType = 1
)

// IsVisibleToAI reports whether messages of this type enter the model context.
func (t MessageType) IsVisibleToAI() bool {
	return t != MessageTypeFullInvisibleToAI
}

func (t MessageType) String() string {
	switch t {
	case MessageTypeFull:
		return "full"
	case MessageTypeFullInvisibleToAI:
		return "full_invisible_to_ai"
	default:
		return "unknown"
	}
}

// SenderType identifies who wrote a message.
type SenderType int

const (
	SenderUser SenderType = 0
	SenderAI   SenderType = 1
)

func (s SenderType) String() string {
	if s == SenderAI {
		return "ai"
	}
	return "user"
}

// Message is a single entry of a discussion. Messages are append-only.
type Message struct {
	ID                   int64
	DiscussionID         int64
	Type                 MessageType
	SenderType           SenderType
	Sender               string
	Content              string
	Metadata             string // optional JSON document
	Rank                 int
	ParentMessageID      int64
	Binding              string
	Model                string
	Personality          string
	CreatedAt            time.Time
	StartedGeneratingAt  *time.Time
	FinishedGeneratingAt *time.Time
	NbTokens             *int
}

// MessageRecord is the transport form of a Message.
type MessageRecord struct {
	ID                   int64      `json:"id"`
	DiscussionID         int64      `json:"discussion_id"`
	MessageType          int        `json:"message_type"`
	SenderType           int        `json:"sender_type"`
	Sender               string     `json:"sender"`
	Content              string     `json:"content"`
	Metadata             string     `json:"metadata,omitempty"`
	Rank                 int        `json:"rank"`
	ParentMessageID      int64      `json:"parent_message_id"`
	Binding              string     `json:"binding"`
	Model                string     `json:"model"`
	Personality          string     `json:"personality"`
	CreatedAt            time.Time  `json:"created_at"`
	StartedGeneratingAt  *time.Time `json:"started_generating_at"`
	FinishedGeneratingAt *time.Time `json:"finished_generating_at"`
	NbTokens             *int       `json:"nb_tokens"`
}

// Record converts the message to its transport form.
func (m Message) Record() MessageRecord {
	return MessageRecord{
		ID:                   m.ID,
		DiscussionID:         m.DiscussionID,
		MessageType:          int(m.Type),
		SenderType:           int(m.SenderType),
		Sender:               m.Sender,
		Content:              m.Content,
		Metadata:             m.Metadata,
		Rank:                 m.Rank,
		ParentMessageID:      m.ParentMessageID,
		Binding:              m.Binding,
		Model:                m.Model,
		Personality:          m.Personality,
		CreatedAt:            m.CreatedAt,
		StartedGeneratingAt:  m.StartedGeneratingAt,
		FinishedGeneratingAt: m.FinishedGeneratingAt,
		NbTokens:             m.NbTokens,
	}
}

// Records converts messages to transport form, preserving order.
func Records(msgs []Message) []MessageRecord {
	out := make([]MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Record())
	}
	return out
}
