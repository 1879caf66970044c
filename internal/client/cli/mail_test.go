package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/sealmail/internal/attachment"
	"github.com/dmitrijs2005/sealmail/internal/client/mail"
	"github.com/dmitrijs2005/sealmail/internal/common"
	"github.com/dmitrijs2005/sealmail/internal/contract"
)

type flagCall struct {
	id    int64
	flag  string
	value bool
}

type fakeMail struct {
	me mail.Account

	drafts  []mail.Draft
	sendRes *mail.SendResult
	listed  []contract.Email
	folder  mail.Folder
	msg     *mail.Message
	data    []byte
	flags   []flagCall
	watched []int64
}

func (f *fakeMail) Me() mail.Account { return f.me }
func (f *fakeMail) Send(_ context.Context, d mail.Draft) (*mail.SendResult, error) {
	f.drafts = append(f.drafts, d)
	if f.sendRes != nil {
		return f.sendRes, nil
	}
	return &mail.SendResult{ID: 1}, nil
}
func (f *fakeMail) List(_ context.Context, folder mail.Folder) ([]contract.Email, error) {
	f.folder = folder
	return f.listed, nil
}
func (f *fakeMail) Open(_ context.Context, id int64) (*mail.Message, error) {
	if f.msg == nil || f.msg.ID != id {
		return nil, common.ErrorNotFound
	}
	return f.msg, nil
}
func (f *fakeMail) AttachmentData(_ context.Context, m *mail.Message, i int) ([]byte, error) {
	if i < 0 || i >= len(m.Attachments) {
		return nil, common.ErrorNotFound
	}
	return f.data, nil
}
func (f *fakeMail) MarkRead(_ context.Context, id int64, v bool) error {
	f.flags = append(f.flags, flagCall{id, "read", v})
	return nil
}
func (f *fakeMail) MarkImportant(_ context.Context, id int64, v bool) error {
	f.flags = append(f.flags, flagCall{id, "important", v})
	return nil
}
func (f *fakeMail) Delete(_ context.Context, id int64) error {
	f.flags = append(f.flags, flagCall{id, "deleted", true})
	return nil
}
func (f *fakeMail) Restore(_ context.Context, id int64) error {
	f.flags = append(f.flags, flagCall{id, "deleted", false})
	return nil
}
func (f *fakeMail) Export(_ context.Context, m *mail.Message, w io.Writer) error {
	_, err := io.WriteString(w, "Subject: "+m.Subject+"\r\n\r\n"+m.Message)
	return err
}
func (f *fakeMail) Watch(_ context.Context, _ mail.Subscriber, fn func(int64)) error {
	for _, id := range f.watched {
		fn(id)
	}
	return nil
}

func loggedInApp(t *testing.T, input string) (*App, *fakeMail, *strings.Builder) {
	t.Helper()
	a, _ := newTestApp(&fakeAuth{})
	var out strings.Builder
	a.out = &out
	a.reader = bufio.NewReader(strings.NewReader(input))
	fm := &fakeMail{}
	a.mail = fm
	return a, fm, &out
}

func sampleMessage() *mail.Message {
	return &mail.Message{
		Email: contract.Email{ID: 5, CreatedAt: 1700000000},
		Payload: mail.Payload{
			Subject: "Hi",
			Message: "Hello",
			Attachments: []mail.Attachment{
				{StoredFile: attachment.StoredFile{FileInfo: attachment.FileInfo{Name: "../notes.txt", Size: 3}}},
			},
		},
		FromHandle: "alice",
		ToHandles:  []string{"bob"},
		CcHandles:  []string{"carol"},
	}
}

func TestCommands_RequireLogin(t *testing.T) {
	a, _ := newTestApp(&fakeAuth{})
	ctx := context.Background()

	for _, run := range []func(context.Context, []string) error{
		a.Send, a.List, a.Show, a.Mark, a.Delete, a.Restore, a.Attachment, a.Export, a.Reply, a.Watch,
	} {
		require.ErrorIs(t, run(ctx, []string{"1"}), errNotLoggedIn)
	}
}

func TestSend_ReadsDraftFromPrompts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	input := strings.Join([]string{
		"@bob, carol",
		"dave",
		"Subject line",
		"line one",
		"line two",
		".",
		path,
	}, "\n") + "\n"

	a, fm, out := loggedInApp(t, input)
	fm.sendRes = &mail.SendResult{ID: 9, Rejected: []mail.Rejection{
		{Identity: "carol", Role: contract.RoleTo, Err: common.ErrForbidden},
	}}

	require.NoError(t, a.Send(context.Background(), nil))
	require.Len(t, fm.drafts, 1)

	d := fm.drafts[0]
	require.Equal(t, []string{"bob", "carol"}, d.To)
	require.Equal(t, []string{"dave"}, d.Cc)
	require.Equal(t, "Subject line", d.Subject)
	require.Equal(t, "line one\nline two", d.Message)
	require.Len(t, d.Attachments, 1)
	require.Equal(t, "a.json", d.Attachments[0].Name)
	require.Equal(t, []byte("{}"), d.Attachments[0].Data)
	require.Equal(t, "application/json", d.Attachments[0].Type)

	require.Contains(t, out.String(), "Sent message 9")
	require.Contains(t, out.String(), "not delivered to @carol (to): forbidden")
}

func TestList(t *testing.T) {
	a, fm, out := loggedInApp(t, "")
	fm.listed = []contract.Email{
		{ID: 2, From: "0xaa", CreatedAt: 1700000000, Important: true, Read: true},
		{ID: 1, From: "0xbb", CreatedAt: 1690000000, Cc: []contract.Address{"0xcc"}},
	}

	require.NoError(t, a.List(context.Background(), []string{"sent"}))
	require.Equal(t, mail.FolderSent, fm.folder)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "important")
	require.Contains(t, lines[2], "new,cc")

	require.Error(t, a.List(context.Background(), []string{"spam"}))
}

func TestList_DefaultsToInboxAndEmpty(t *testing.T) {
	a, fm, out := loggedInApp(t, "")

	require.NoError(t, a.List(context.Background(), nil))
	require.Equal(t, mail.FolderInbox, fm.folder)
	require.Contains(t, out.String(), "No messages")
}

func TestShow_PrintsAndMarksRead(t *testing.T) {
	a, fm, out := loggedInApp(t, "")
	fm.msg = sampleMessage()

	require.NoError(t, a.Show(context.Background(), []string{"5"}))
	require.Contains(t, out.String(), "From:    @alice")
	require.Contains(t, out.String(), "Cc:      @carol")
	require.Contains(t, out.String(), "Subject: Hi")
	require.Contains(t, out.String(), "[0] ../notes.txt (3 bytes)")
	require.Equal(t, []flagCall{{5, "read", true}}, fm.flags)

	fm.flags = nil
	fm.msg.Read = true
	require.NoError(t, a.Show(context.Background(), []string{"5"}))
	require.Empty(t, fm.flags)
}

func TestShow_BadArgs(t *testing.T) {
	a, _, _ := loggedInApp(t, "")

	require.ErrorContains(t, a.Show(context.Background(), nil), "usage: show <id>")
	require.ErrorContains(t, a.Show(context.Background(), []string{"x"}), "invalid message id")
	require.ErrorIs(t, a.Show(context.Background(), []string{"77"}), common.ErrorNotFound)
}

func TestMark_DeleteRestore(t *testing.T) {
	a, fm, _ := loggedInApp(t, "")
	ctx := context.Background()

	require.NoError(t, a.Mark(ctx, []string{"3", "read"}))
	require.NoError(t, a.Mark(ctx, []string{"3", "unread"}))
	require.NoError(t, a.Mark(ctx, []string{"3", "important"}))
	require.NoError(t, a.Mark(ctx, []string{"3", "unimportant"}))
	require.NoError(t, a.Delete(ctx, []string{"3"}))
	require.NoError(t, a.Restore(ctx, []string{"3"}))
	require.Error(t, a.Mark(ctx, []string{"3", "starred"}))
	require.Error(t, a.Mark(ctx, []string{"3"}))

	require.Equal(t, []flagCall{
		{3, "read", true},
		{3, "read", false},
		{3, "important", true},
		{3, "important", false},
		{3, "deleted", true},
		{3, "deleted", false},
	}, fm.flags)
}

func TestAttachment_SavesFile(t *testing.T) {
	a, fm, _ := loggedInApp(t, "")
	fm.msg = sampleMessage()
	fm.data = []byte("xyz")

	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, a.Attachment(context.Background(), []string{"5", "0", path}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("xyz"), got)

	require.ErrorIs(t, a.Attachment(context.Background(), []string{"5", "3", path}), common.ErrorNotFound)
	require.Error(t, a.Attachment(context.Background(), []string{"5"}))
}

func TestExport_WritesFile(t *testing.T) {
	a, fm, out := loggedInApp(t, "")
	fm.msg = sampleMessage()

	path := filepath.Join(t.TempDir(), "m.eml")
	require.NoError(t, a.Export(context.Background(), []string{"5", path}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Subject: Hi\r\n\r\nHello", string(got))
	require.Contains(t, out.String(), "Exported message 5 to "+path)
}

func TestReply_PrependsTextToQuote(t *testing.T) {
	a, fm, _ := loggedInApp(t, "Sounds good\n.\n")
	fm.msg = sampleMessage()

	require.NoError(t, a.Reply(context.Background(), []string{"5"}))
	require.Len(t, fm.drafts, 1)

	d := fm.drafts[0]
	require.Equal(t, []string{"alice"}, d.To)
	require.Equal(t, "RE: Hi", d.Subject)
	require.True(t, strings.HasPrefix(d.Message, "Sounds good\n\n| On "))
	require.True(t, strings.HasSuffix(d.Message, "\n| Hello"))
}

func TestWatch_PrintsNewMessages(t *testing.T) {
	a, fm, out := loggedInApp(t, "")
	fm.watched = []int64{4, 6}

	require.NoError(t, a.Watch(context.Background(), nil))
	require.Contains(t, out.String(), "New message 4\nNew message 6\n")
}

func TestSplitHandles(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, splitHandles(" @a, b;c ,, "))
	require.Empty(t, splitHandles(""))
}
