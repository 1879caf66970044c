package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/sealmail/internal/client/mail"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/filex"
	"github.com/dmitrijs2005/sealmail/internal/identity"
)

var errNotLoggedIn = errors.New("not logged in")

const listTimeLayout = "2006-01-02 15:04"

func (a *App) requireMail() (mailService, error) {
	if a.mail == nil {
		return nil, errNotLoggedIn
	}
	return a.mail, nil
}

func parseID(args []string, usage string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid message id %q", args[0])
	}
	return id, nil
}

// splitHandles parses a comma or space separated recipient line.
func splitHandles(s string) []string {
	f := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]string, 0, len(f))
	for _, h := range f {
		if h = identity.Normalize(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func readAttachment(path string) (mail.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mail.File{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return mail.File{}, err
	}
	return mail.File{
		Name:         filepath.Base(path),
		Type:         mime.TypeByExtension(filepath.Ext(path)),
		LastModified: st.ModTime().UnixMilli(),
		Data:         data,
	}, nil
}

// Send composes a message interactively and sends it.
func (a *App) Send(ctx context.Context, _ []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}

	to, err := getSimpleText(a.reader, "To (comma separated handles)", a.out)
	if err != nil {
		return err
	}
	cc, err := getSimpleText(a.reader, "Cc (optional)", a.out)
	if err != nil {
		return err
	}
	subject, err := getSimpleText(a.reader, "Subject", a.out)
	if err != nil {
		return err
	}
	body, err := getMultiline(a.reader, "Message", a.out)
	if err != nil {
		return err
	}
	files, err := getSimpleText(a.reader, "Attachments (comma separated paths, optional)", a.out)
	if err != nil {
		return err
	}

	d := mail.Draft{To: splitHandles(to), Cc: splitHandles(cc), Subject: subject, Message: body}
	for _, p := range strings.Split(files, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		f, err := readAttachment(p)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", p, err)
		}
		d.Attachments = append(d.Attachments, f)
	}

	return a.send(ctx, svc, d)
}

func (a *App) send(ctx context.Context, svc mailService, d mail.Draft) error {
	res, err := svc.Send(ctx, d)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Sent message %d\n", res.ID)
	for _, r := range res.Rejected {
		fmt.Fprintf(a.out, "  not delivered to %s (%s): %v\n", identity.Display(r.Identity), r.Role, r.Err)
	}
	return nil
}

// List prints a folder, inbox by default.
func (a *App) List(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}

	folder := mail.FolderInbox
	if len(args) > 0 {
		if folder, err = mail.ParseFolder(args[0]); err != nil {
			return err
		}
	}

	emails, err := svc.List(ctx, folder)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		fmt.Fprintln(a.out, "No messages")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tFROM\tFLAGS")
	for _, e := range emails {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, time.Unix(e.CreatedAt, 0).Format(listTimeLayout), e.From, flags(e))
	}
	return tw.Flush()
}

func flags(e contract.Email) string {
	var f []string
	if !e.Read {
		f = append(f, "new")
	}
	if e.Important {
		f = append(f, "important")
	}
	if len(e.Cc) > 0 {
		f = append(f, "cc")
	}
	return strings.Join(f, ",")
}

// Show opens a message, prints it and marks it read.
func (a *App) Show(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}
	id, err := parseID(args, "show <id>")
	if err != nil {
		return err
	}

	m, err := svc.Open(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "From:    %s\n", identity.Display(m.FromHandle))
	fmt.Fprintf(a.out, "To:      %s\n", displayAll(m.ToHandles))
	if len(m.CcHandles) > 0 {
		fmt.Fprintf(a.out, "Cc:      %s\n", displayAll(m.CcHandles))
	}
	fmt.Fprintf(a.out, "Date:    %s\n", time.Unix(m.CreatedAt, 0).Format(listTimeLayout))
	fmt.Fprintf(a.out, "Subject: %s\n\n%s\n", m.Subject, m.Message)
	for i, f := range m.Attachments {
		fmt.Fprintf(a.out, "[%d] %s (%d bytes)\n", i, f.Name, f.Size)
	}

	if !m.Read {
		if err := svc.MarkRead(ctx, id, true); err != nil && !errors.Is(err, common.ErrUnsupportedBySchema) {
			a.logger.Warn(ctx, "mark read failed", "id", id, "error", err)
		}
	}
	return nil
}

func displayAll(handles []string) string {
	out := make([]string, len(handles))
	for i, h := range handles {
		out[i] = identity.Display(h)
	}
	return strings.Join(out, ", ")
}

// Mark sets or clears a flag: mark <id> read|unread|important|unimportant.
func (a *App) Mark(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}
	const usage = "mark <id> read|unread|important|unimportant"
	id, err := parseID(args, usage)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", usage)
	}

	switch args[1] {
	case "read":
		return svc.MarkRead(ctx, id, true)
	case "unread":
		return svc.MarkRead(ctx, id, false)
	case "important":
		return svc.MarkImportant(ctx, id, true)
	case "unimportant":
		return svc.MarkImportant(ctx, id, false)
	}
	return fmt.Errorf("usage: %s", usage)
}

func (a *App) Delete(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}
	id, err := parseID(args, "delete <id>")
	if err != nil {
		return err
	}
	return svc.Delete(ctx, id)
}

func (a *App) Restore(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}
	id, err := parseID(args, "restore <id>")
	if err != nil {
		return err
	}
	return svc.Restore(ctx, id)
}

// Attachment saves attachment n of a message: attachment <id> <n> [path].
// The path defaults to the attachment's name in the current directory.
func (a *App) Attachment(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}
	const usage = "attachment <id> <n> [path]"
	id, err := parseID(args, usage)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("usage: %s", usage)
	}

	m, err := svc.Open(ctx, id)
	if err != nil {
		return err
	}
	data, err := svc.AttachmentData(ctx, m, n)
	if err != nil {
		return err
	}

	path := filepath.Base(m.Attachments[n].Name)
	if len(args) > 2 {
		path = args[2]
	}
	if err := filex.WriteAtomic(path, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s (%d bytes)\n", path, len(data))
	return nil
}

// Export writes a message as an .eml file: export <id> [path].
func (a *App) Export(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}
	id, err := parseID(args, "export <id> [path]")
	if err != nil {
		return err
	}

	m, err := svc.Open(ctx, id)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("%d.eml", id)
	if len(args) > 1 {
		path = args[1]
	}

	var b strings.Builder
	if err := svc.Export(ctx, m, &b); err != nil {
		return err
	}
	if err := filex.WriteAtomic(path, []byte(b.String()), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported message %d to %s\n", id, path)
	return nil
}

// Reply answers the sender of a message, quoting it.
func (a *App) Reply(ctx context.Context, args []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}
	id, err := parseID(args, "reply <id>")
	if err != nil {
		return err
	}

	m, err := svc.Open(ctx, id)
	if err != nil {
		return err
	}

	d := mail.ReplyDraft(m)
	fmt.Fprintf(a.out, "To: %s\nSubject: %s\n", displayAll(d.To), d.Subject)
	text, err := getMultiline(a.reader, "Message", a.out)
	if err != nil {
		return err
	}
	d.Message = text + d.Message

	return a.send(ctx, svc, d)
}

// Watch prints a line for every message delivered to the account until ctx
// is done.
func (a *App) Watch(ctx context.Context, _ []string) error {
	svc, err := a.requireMail()
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Watching for new messages (Ctrl-C to stop)")
	return svc.Watch(ctx, a.subs, func(id int64) {
		fmt.Fprintf(a.out, "New message %d\n", id)
	})
}
