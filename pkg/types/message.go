package types

import "time"

// Attachment is a non-text MIME part carried alongside a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"` // base64 (standard encoding)
}

// Message is a normalized mail message as produced by the email source.
// Messages are read-only once created.
type Message struct {
	Subject     string       `json:"subject"`
	Sender      string       `json:"sender"`
	To          string       `json:"to,omitempty"`
	Cc          string       `json:"cc,omitempty"`
	Date        time.Time    `json:"date"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
	MessageID   string       `json:"message_id"`
	Provider    string       `json:"provider"`
}
