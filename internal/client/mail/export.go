package mail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/dmitrijs2005/sealmail/internal/identity"
)

// exportDomain is the mail domain handles are given in exported messages.
const exportDomain = "sealmail.invalid"

const replyDateLayout = "January 02, 2006 03:04"

func exportAddress(handle string) *gomail.Address {
	local := identity.Normalize(handle)
	return &gomail.Address{Name: identity.Display(local), Address: local + "@" + exportDomain}
}

func exportAddresses(handles []string) []*gomail.Address {
	out := make([]*gomail.Address, 0, len(handles))
	for _, h := range handles {
		out = append(out, exportAddress(h))
	}
	return out
}

// Export writes m as an RFC 5322 message: a text/plain body followed by one
// part per attachment.
func (s *Service) Export(ctx context.Context, m *Message, w io.Writer) error {
	var h gomail.Header
	h.SetDate(time.Unix(m.CreatedAt, 0).UTC())
	h.SetSubject(m.Subject)
	h.SetAddressList("From", []*gomail.Address{exportAddress(m.FromHandle)})
	if len(m.ToHandles) > 0 {
		h.SetAddressList("To", exportAddresses(m.ToHandles))
	}
	if len(m.CcHandles) > 0 {
		h.SetAddressList("Cc", exportAddresses(m.CcHandles))
	}
	h.SetMessageID(fmt.Sprintf("%d.%s@%s", m.ID, strings.TrimPrefix(string(m.From), "0x"), exportDomain))

	mw, err := gomail.CreateWriter(w, h)
	if err != nil {
		return err
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return err
	}
	var th gomail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := tw.CreatePart(th)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, m.Message); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	for i, a := range m.Attachments {
		data, err := s.AttachmentData(ctx, m, i)
		if err != nil {
			return err
		}

		contentType := a.Type
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		var ah gomail.AttachmentHeader
		ah.Set("Content-Type", contentType)
		ah.SetFilename(a.Name)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return err
		}
		if _, err := aw.Write(data); err != nil {
			return err
		}
		if err := aw.Close(); err != nil {
			return err
		}
	}

	return mw.Close()
}

// ReplyDraft prepares a reply to m: addressed to its sender, with the
// subject prefixed by "RE: " and the original body quoted under a header
// line.
func ReplyDraft(m *Message) Draft {
	quoted := strings.ReplaceAll(m.Message, "\n", "\n| ")
	header := fmt.Sprintf("| On %s <%s> wrote:",
		time.Unix(m.CreatedAt, 0).UTC().Format(replyDateLayout), identity.Display(m.FromHandle))

	return Draft{
		To:      []string{m.FromHandle},
		Subject: "RE: " + m.Subject,
		Message: "\n\n" + header + "\n| " + quoted,
	}
}
