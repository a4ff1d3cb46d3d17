package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/dwetransfer/internal/storage"
	"github.com/harrylevesque/dwetransfer/internal/transfer"
)

const recipient = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

type fakeSender struct {
	err     error
	form    *transfer.Form
	updates []storage.Progress
}

func (f *fakeSender) Send(_ context.Context, form *transfer.Form, hooks transfer.Hooks) (*transfer.Result, error) {
	f.form = form
	updates := f.updates
	if updates == nil {
		updates = []storage.Progress{{Total: 200, Uploaded: 100}}
	}
	for _, p := range updates {
		hooks.OnProgress(p)
	}
	if f.err != nil {
		return nil, f.err
	}
	link := storage.ShareLink("files.example.test", "bafy123")
	return &transfer.Result{CID: "bafy123", ShareLink: link, Recipient: form.Recipient}, nil
}

func typeText(a *App, s string) {
	a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func press(a *App, k tea.KeyType) tea.Cmd {
	_, cmd := a.Update(tea.KeyMsg{Type: k})
	return cmd
}

func fillForm(t *testing.T, a *App) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	typeText(a, path)
	press(a, tea.KeyTab)
	typeText(a, recipient)
	press(a, tea.KeyEnter)
	typeText(a, "Greetings")
	press(a, tea.KeyTab)
	typeText(a, "hi there")
	require.Equal(t, fieldMessage, a.focus)
}

// drain feeds the messages of the upload goroutine back into the model
// until the transfer finishes.
func drain(a *App, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		_, cmd = a.Update(msg)
		if _, done := msg.(doneMsg); done {
			return
		}
	}
}

func TestSubmitRunsThreeSteps(t *testing.T) {
	s := &fakeSender{}
	a := New(context.Background(), s, Options{Address: "0xabc"})
	require.Equal(t, transfer.StepForm, a.step)
	fillForm(t, a)

	cmd := press(a, tea.KeyEnter)
	require.NotNil(t, cmd)
	require.Equal(t, transfer.StepUploading, a.step)
	require.Contains(t, a.View(), "Uploading")

	msg := cmd()
	require.IsType(t, progressMsg{}, msg)
	_, cmd = a.Update(msg)
	require.Equal(t, 50, a.progress.Percent())
	require.Contains(t, a.View(), "100 B / 200 B (50%)")
	drain(a, cmd)

	require.Equal(t, transfer.StepDone, a.step)
	require.Equal(t, "hello.txt", s.form.FileName)
	require.Equal(t, "Greetings", s.form.Title)
	require.Equal(t, "hi there", s.form.Message)
	view := a.View()
	require.Contains(t, view, "https://files.example.test/viewFile/bafy123")
	require.NotEmpty(t, a.qr)

	a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.Equal(t, "Link copied", a.toast)
	require.Equal(t, "https://files.example.test/viewFile/bafy123", a.status)

	a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	require.Equal(t, transfer.StepForm, a.step)
	require.Empty(t, a.inputs[fieldFile].Value())
}

func TestFinalProgressIsNotDropped(t *testing.T) {
	s := &fakeSender{}
	for i := int64(1); i <= 40; i++ {
		s.updates = append(s.updates, storage.Progress{Total: 200, Uploaded: i * 5})
	}
	a := New(context.Background(), s, Options{})
	fillForm(t, a)

	var seen []int
	cmd := press(a, tea.KeyEnter)
	for cmd != nil {
		msg := cmd()
		if p, ok := msg.(progressMsg); ok {
			seen = append(seen, storage.Progress(p).Percent())
		}
		if _, done := msg.(doneMsg); done {
			break
		}
		_, cmd = a.Update(msg)
	}
	require.NotEmpty(t, seen)
	require.Equal(t, 100, seen[len(seen)-1])
	require.Equal(t, 100, a.progress.Percent())
	require.IsNonDecreasing(t, seen)
}

func TestValidationToast(t *testing.T) {
	a := New(context.Background(), &fakeSender{}, Options{})
	press(a, tea.KeyShiftTab)
	require.Equal(t, fieldMessage, a.focus)

	cmd := press(a, tea.KeyEnter)
	require.NotNil(t, cmd)
	require.Equal(t, transfer.StepForm, a.step)
	require.Equal(t, "Please select a file", a.toast)
	require.Contains(t, a.View(), "Please select a file")

	id := a.toastID
	a.Update(toastExpiredMsg{id: id - 1})
	require.NotEmpty(t, a.toast)
	a.Update(toastExpiredMsg{id: id})
	require.Empty(t, a.toast)
}

func TestInvalidAddressToast(t *testing.T) {
	a := New(context.Background(), &fakeSender{}, Options{})
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte{1}, 0o600))
	a.Prefill(path, "0x1234", "t", "m")
	a.setFocus(fieldMessage)
	press(a, tea.KeyEnter)
	require.Equal(t, "Please enter a valid ethereum address", a.toast)
}

func TestSendFailureReturnsToForm(t *testing.T) {
	s := &fakeSender{err: errors.New("upload: boom")}
	a := New(context.Background(), s, Options{})
	fillForm(t, a)
	drain(a, press(a, tea.KeyEnter))
	require.Equal(t, transfer.StepForm, a.step)
	require.Equal(t, "upload: boom", a.toast)
	// inputs are kept so the user can retry
	require.NotEmpty(t, a.inputs[fieldTitle].Value())
}

func TestAccountNotice(t *testing.T) {
	backedUp := false
	a := New(context.Background(), &fakeSender{}, Options{
		Address: "0xabc",
		Created: true,
		Backup: func() (string, error) {
			backedUp = true
			return "/tmp/dwetransfer-privateKey.txt", nil
		},
	})
	require.Contains(t, a.View(), "Account Generated!")

	// typing does not reach the form while the notice is open
	typeText(a, "x")
	require.Empty(t, a.inputs[fieldFile].Value())

	cmd := press(a, tea.KeyCtrlB)
	require.NotNil(t, cmd)
	a.Update(cmd())
	require.True(t, backedUp)
	require.False(t, a.showNotice)
	require.Contains(t, a.toast, "dwetransfer-privateKey.txt")

	b := New(context.Background(), &fakeSender{}, Options{Created: true})
	press(b, tea.KeyEsc)
	require.False(t, b.showNotice)
	require.NotContains(t, b.View(), "Account Generated!")
}
