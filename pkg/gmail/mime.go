package gmail

import (
	"bytes"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"recruitpulse-backend/internal/job/domain"

	"github.com/cockroachdb/errors"
	"github.com/emersion/go-message/mail"
)

// buildMessage renders a draft as RFC 5322. inReplyTo, when set, threads the
// message under an existing Message-ID.
func buildMessage(msg domain.DraftMessage, inReplyTo string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	if inReplyTo != "" {
		h.Set("In-Reply-To", inReplyTo)
		h.Set("References", inReplyTo)
	}

	var buf bytes.Buffer
	if msg.AttachmentPath == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, errors.Wrap(err, "create message writer")
		}
		if _, err := io.WriteString(w, msg.Body); err != nil {
			return nil, errors.Wrap(err, "write body")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "close body")
		}
		return buf.Bytes(), nil
	}

	f, err := os.Open(msg.AttachmentPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open attachment %s", msg.AttachmentPath)
	}
	defer f.Close()

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, errors.Wrap(err, "create message writer")
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	bw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, errors.Wrap(err, "create body part")
	}
	if _, err := io.WriteString(bw, msg.Body); err != nil {
		return nil, errors.Wrap(err, "write body")
	}
	if err := bw.Close(); err != nil {
		return nil, errors.Wrap(err, "close body")
	}

	name := filepath.Base(msg.AttachmentPath)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var ah mail.AttachmentHeader
	ah.SetContentType(contentType, nil)
	ah.SetFilename(name)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, errors.Wrap(err, "create attachment part")
	}
	if _, err := io.Copy(aw, f); err != nil {
		return nil, errors.Wrapf(err, "write attachment %s", name)
	}
	if err := aw.Close(); err != nil {
		return nil, errors.Wrap(err, "close attachment")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close message")
	}
	return buf.Bytes(), nil
}
