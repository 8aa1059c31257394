package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scrypster/secretary/pkg/types"
)

// Archive writes normalized messages in the stored JSON layout so a later run
// can read them back through DirSource.
type Archive struct {
	root string
}

// NewArchive creates an archive rooted at root.
func NewArchive(root string) *Archive {
	return &Archive{root: root}
}

// Path returns where msg is stored: <root>/<provider>/<YYYYmmdd_HHMMSS>_<message_id>.json.
func (a *Archive) Path(msg types.Message) string {
	provider := msg.Provider
	if provider == "" {
		provider = "unknown"
	}
	name := fmt.Sprintf("%s_%s.json", msg.Date.Format("20060102_150405"), sanitizeID(msg.MessageID))
	return filepath.Join(a.root, sanitizeID(provider), name)
}

// Save writes msg and returns the file path. An existing file is replaced.
func (a *Archive) Save(msg types.Message) (string, error) {
	path := a.Path(msg)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("mailbox: create archive dir: %w", err)
	}

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []types.Attachment{}
	}
	doc := storedMessage{
		Subject:     msg.Subject,
		Sender:      msg.Sender,
		To:          optional(msg.To),
		Cc:          optional(msg.Cc),
		Date:        msg.Date.Format("2006-01-02T15:04:05.999999-07:00"),
		Body:        msg.Body,
		Attachments: make([]storedAttachment, 0, len(attachments)),
		MessageID:   msg.MessageID,
		Provider:    msg.Provider,
	}
	for _, att := range attachments {
		doc.Attachments = append(doc.Attachments, storedAttachment{
			Filename:    optional(att.Filename),
			ContentType: optional(att.ContentType),
			Data:        optional(att.Data),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("mailbox: encode %s: %w", msg.MessageID, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("mailbox: write %s: %w", path, err)
	}
	return path, nil
}

// writeAtomic stages data in a hidden file next to path and renames it into
// place, so directory watchers only ever see complete messages.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// sanitizeID makes a message id safe to use as a file name.
func sanitizeID(id string) string {
	id = strings.Trim(id, "<> ")
	if id == "" {
		return "noid"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, id)
}
