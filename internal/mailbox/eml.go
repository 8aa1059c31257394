package mailbox

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/scrypster/secretary/pkg/types"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// parseEML turns a raw RFC 822 message into a Message. The first text/plain
// part becomes the body; every other leaf part becomes a base64 attachment.
func parseEML(r io.Reader, provider string) (types.Message, error) {
	m, err := mail.ReadMessage(r)
	if err != nil {
		return types.Message{}, fmt.Errorf("mailbox: parse eml: %w", err)
	}

	date, err := m.Header.Date()
	if err != nil {
		return types.Message{}, fmt.Errorf("mailbox: eml date: %w", err)
	}

	msg := types.Message{
		Subject:     decodeHeader(m.Header.Get("Subject")),
		Sender:      decodeHeader(m.Header.Get("From")),
		To:          decodeHeader(m.Header.Get("To")),
		Cc:          decodeHeader(m.Header.Get("Cc")),
		Date:        date,
		Attachments: []types.Attachment{},
		MessageID:   strings.Trim(m.Header.Get("Message-ID"), "<> "),
		Provider:    provider,
	}

	w := &partWalker{msg: &msg}
	err = w.walk(m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), m.Header.Get("Content-Disposition"), m.Body)
	if err != nil {
		return types.Message{}, fmt.Errorf("mailbox: eml %s: %w", msg.MessageID, err)
	}
	return msg, nil
}

type partWalker struct {
	msg     *types.Message
	hasBody bool
}

func (w *partWalker) walk(contentType, encoding, disposition string, r io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			h := part.Header
			if err := w.walk(h.Get("Content-Type"), h.Get("Content-Transfer-Encoding"), h.Get("Content-Disposition"), part); err != nil {
				return err
			}
		}
	}

	data, err := io.ReadAll(transferDecoder(encoding, r))
	if err != nil {
		return err
	}

	dispType, dispParams, _ := mime.ParseMediaType(disposition)
	if mediaType == "text/plain" && dispType != "attachment" && !w.hasBody {
		w.msg.Body = decodeCharset(params["charset"], data)
		w.hasBody = true
		return nil
	}

	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}
	w.msg.Attachments = append(w.msg.Attachments, types.Attachment{
		Filename:    decodeHeader(filename),
		ContentType: mediaType,
		Data:        base64.StdEncoding.EncodeToString(data),
	})
	return nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func decodeHeader(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeCharset converts data to UTF-8. Unknown charsets are passed through.
func decodeCharset(charset string, data []byte) string {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8", "us-ascii":
		return string(data)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(data)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}
