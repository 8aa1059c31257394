package mailbox

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/scrypster/secretary/pkg/types"
)

// storedMessage is the on-disk JSON layout. to, cc and attachment filenames
// may be null, and dates may lack a zone.
type storedMessage struct {
	Subject     string             `json:"subject"`
	Sender      string             `json:"sender"`
	To          *string            `json:"to"`
	Cc          *string            `json:"cc"`
	Date        string             `json:"date"`
	Body        string             `json:"body"`
	Attachments []storedAttachment `json:"attachments"`
	MessageID   string             `json:"message_id"`
	Provider    string             `json:"provider"`
}

type storedAttachment struct {
	Filename    *string `json:"filename"`
	ContentType *string `json:"content_type"`
	Data        *string `json:"data"`
}

// Layouts accepted for the stored date, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

func parseStoredDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func decodeStored(r io.Reader) (types.Message, error) {
	var sm storedMessage
	if err := json.NewDecoder(r).Decode(&sm); err != nil {
		return types.Message{}, fmt.Errorf("mailbox: decode stored message: %w", err)
	}

	date, err := parseStoredDate(sm.Date)
	if err != nil {
		return types.Message{}, fmt.Errorf("mailbox: message %s: %w", sm.MessageID, err)
	}

	msg := types.Message{
		Subject:     sm.Subject,
		Sender:      sm.Sender,
		To:          deref(sm.To),
		Cc:          deref(sm.Cc),
		Date:        date,
		Body:        sm.Body,
		Attachments: make([]types.Attachment, 0, len(sm.Attachments)),
		MessageID:   sm.MessageID,
		Provider:    sm.Provider,
	}
	for _, a := range sm.Attachments {
		msg.Attachments = append(msg.Attachments, types.Attachment{
			Filename:    deref(a.Filename),
			ContentType: deref(a.ContentType),
			Data:        deref(a.Data),
		})
	}
	return msg, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
