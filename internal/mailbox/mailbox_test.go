package mailbox

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/secretary/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

const storedJSON = `{
  "subject": "Monthly statement",
  "sender": "Citibank <noreply@citi.test>",
  "to": null,
  "cc": null,
  "date": "2024-05-02T09:30:00+01:00",
  "body": "Your statement is ready.",
  "attachments": [{"filename": null, "content_type": "application/pdf", "data": "JVBERi0="}],
  "message_id": "<abc@citi.test>",
  "provider": "gmail"
}`

func TestLoad_StoredJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gmail", "20240502_093000_abc.json")
	writeFile(t, path, storedJSON)

	msg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Monthly statement", msg.Subject)
	assert.Equal(t, "", msg.To)
	assert.Equal(t, "gmail", msg.Provider)
	assert.Equal(t, time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC), msg.Date.UTC())
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
}

func TestLoad_StoredJSONNaiveDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	writeFile(t, path, `{"subject": "s", "sender": "a", "date": "2024-05-02T09:30:00.123456", "body": "", "attachments": [], "message_id": "x", "provider": "gmail", "unknown": 1}`)

	msg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2024, msg.Date.Year())
	assert.Equal(t, 123456000, msg.Date.Nanosecond())
}

func TestLoad_StoredJSONBadDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	writeFile(t, path, `{"subject": "s", "date": "yesterday"}`)

	_, err := Load(path)
	assert.Error(t, err)
}

const multipartEML = "From: =?UTF-8?B?SsO8cmdlbg==?= <jurgen@example.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?Q?Caf=C3=A9_on_Friday?=\r\n" +
	"Date: Thu, 02 May 2024 10:00:00 +0000\r\n" +
	"Message-ID: <m1@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"See you at the caf=C3=A9.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>See you</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf; name=\"menu.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"menu.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func TestLoad_EML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work", "m1.eml")
	writeFile(t, path, multipartEML)

	msg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Café on Friday", msg.Subject)
	assert.Equal(t, "Jürgen <jurgen@example.com>", msg.Sender)
	assert.Equal(t, "me@example.com", msg.To)
	assert.Equal(t, "m1@example.com", msg.MessageID)
	assert.Equal(t, "work", msg.Provider)
	assert.Equal(t, "See you at the café.", strings.TrimSpace(msg.Body))

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "text/html", msg.Attachments[0].ContentType)
	assert.Equal(t, "menu.pdf", msg.Attachments[1].Filename)
	data, err := base64.StdEncoding.DecodeString(msg.Attachments[1].Data)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestLoad_EMLLatin1Body(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.eml")
	writeFile(t, path, "From: a@example.com\r\nSubject: hi\r\nDate: Thu, 02 May 2024 10:00:00 +0000\r\n"+
		"Content-Type: text/plain; charset=iso-8859-1\r\n\r\nna\xefve\r\n")

	msg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "naïve", strings.TrimSpace(msg.Body))
}

func TestDirSource_FetchFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(root, "gmail", "new.json"),
		`{"subject": "newest", "date": "2024-05-09T08:00:00+00:00", "message_id": "3", "provider": "gmail"}`)
	writeFile(t, filepath.Join(root, "gmail", "mid.json"),
		`{"subject": "middle", "date": "2024-05-08T08:00:00+00:00", "message_id": "2", "provider": "gmail"}`)
	writeFile(t, filepath.Join(root, "gmail", "old.json"),
		`{"subject": "too old", "date": "2024-04-01T08:00:00+00:00", "message_id": "1", "provider": "gmail"}`)
	writeFile(t, filepath.Join(root, "gmail", "broken.json"), `{not json`)
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")

	src := NewDirSource(root, nil)
	src.now = func() time.Time { return now }

	msgs, err := src.Fetch(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "middle", msgs[0].Subject)
	assert.Equal(t, "newest", msgs[1].Subject)

	all, err := src.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "too old", all[0].Subject)
}

func TestDirSource_MissingRoot(t *testing.T) {
	_, err := NewDirSource(filepath.Join(t.TempDir(), "nope"), nil).Fetch(context.Background(), 3)
	assert.Error(t, err)
}

func TestArchive_SaveRoundTrip(t *testing.T) {
	root := t.TempDir()
	msg := types.Message{
		Subject:     "Lunch",
		Sender:      "ann@example.com",
		To:          "me@example.com",
		Date:        time.Date(2024, 5, 2, 9, 30, 15, 0, time.UTC),
		Body:        "12:30 at Luigi's",
		Attachments: []types.Attachment{{Filename: "map.png", ContentType: "image/png", Data: "iVBO"}},
		MessageID:   "<lunch/1@example.com>",
		Provider:    "gmail",
	}

	path, err := NewArchive(root).Save(msg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "gmail", "20240502_093015_lunch_1@example.com.json"), path)

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, msg.Subject, back.Subject)
	assert.Equal(t, msg.To, back.To)
	assert.Equal(t, "", back.Cc)
	assert.True(t, msg.Date.Equal(back.Date))
	assert.Equal(t, msg.Attachments, back.Attachments)
}

func TestIsMessageFile(t *testing.T) {
	assert.True(t, IsMessageFile("a/b.json"))
	assert.True(t, IsMessageFile("a/b.EML"))
	assert.False(t, IsMessageFile("a/b.txt"))
}
