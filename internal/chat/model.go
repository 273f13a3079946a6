package chat

import "time"

// ChatMessage is both the stored row and the wire shape sent to clients,
// the broker and the live connection.
type ChatMessage struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Author    string    `json:"user" gorm:"column:author;size:500;index"`
	Body      string    `json:"message" gorm:"column:body;type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime:false"`
	IsBot     bool      `json:"is_bot" gorm:"column:is_bot"`
	InReplyTo *int64    `json:"response_to" gorm:"column:in_reply_to"`
}

func (ChatMessage) TableName() string { return "customer_chat_messages" }

// TableSequence holds the last id handed out for one logical table.
type TableSequence struct {
	TableKey string `gorm:"column:table_key;primaryKey;size:100"`
	LastID   int64  `gorm:"column:last_id;not null"`
}

func (TableSequence) TableName() string { return "table_sequences" }

// AIResponse is what the bot publishes on the ai_response topic.
type AIResponse struct {
	User      string `json:"user"`
	Response  string `json:"response"`
	RequestID *int64 `json:"request_id"`
}

// PostRequest is the body of POST /Chat/PostMessage.
type PostRequest struct {
	Message string `json:"message"`
}

// HistoryPage is the Result of GET /Chat/ChatHistory.
type HistoryPage struct {
	Messages []ChatMessage `json:"messages"`
	LastID   int64         `json:"last_id"`
}

// Models lists every table the chat API owns.
func Models() []any {
	return []any{&ChatMessage{}, &TableSequence{}}
}
