// Package tui is the interactive sender: a three step bubbletea program
// (form, upload progress, share link).
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/harrylevesque/dwetransfer/internal/storage"
	"github.com/harrylevesque/dwetransfer/internal/transfer"
	"github.com/harrylevesque/dwetransfer/internal/utils"
)

const toastTTL = 3 * time.Second

// Sender runs a transfer.
type Sender interface {
	Send(ctx context.Context, form *transfer.Form, hooks transfer.Hooks) (*transfer.Result, error)
}

// Options configure the App.
type Options struct {
	Address string
	// Created is set when the account was generated on this run.
	Created bool
	Backup  func() (string, error)
	Logger  *utils.Logger
}

const (
	fieldFile = iota
	fieldRecipient
	fieldTitle
	fieldMessage
)

// App ties together the three steps.
type App struct {
	ctx    context.Context
	sender Sender
	opts   Options
	log    *utils.Logger

	step       transfer.Step
	showNotice bool

	inputs  []textinput.Model
	message textarea.Model
	focus   int

	bar      progress.Model
	progress storage.Progress
	events   *uploadEvents

	result *transfer.Result
	qr     string

	toast   string
	toastID int
	status  string
}

type progressMsg storage.Progress

type doneMsg struct {
	res *transfer.Result
	err error
}

type toastExpiredMsg struct{ id int }

// uploadEvents carries the upload goroutine's messages. progress holds only
// the latest value; done receives exactly one message, after the last progress.
type uploadEvents struct {
	progress chan progressMsg
	done     chan doneMsg
}

func newUploadEvents() *uploadEvents {
	return &uploadEvents{
		progress: make(chan progressMsg, 1),
		done:     make(chan doneMsg, 1),
	}
}

// report replaces any progress the model has not read yet. There is a single
// producer, so the loop ends after at most one drain.
func (e *uploadEvents) report(p storage.Progress) {
	for {
		select {
		case e.progress <- progressMsg(p):
			return
		default:
		}
		select {
		case <-e.progress:
		default:
		}
	}
}

type backupMsg struct {
	path string
	err  error
}

func New(ctx context.Context, sender Sender, opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = utils.Nop()
	}
	a := &App{
		ctx:        ctx,
		sender:     sender,
		opts:       opts,
		log:        log,
		step:       transfer.StepForm,
		showNotice: opts.Created,
		bar:        progress.New(progress.WithDefaultGradient()),
	}
	a.inputs = []textinput.Model{
		newInput("path/to/file"),
		newInput("0x..."),
		newInput("Title"),
	}
	ta := textarea.New()
	ta.Placeholder = "Message"
	ta.ShowLineNumbers = false
	ta.SetHeight(4)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	a.message = ta
	a.setFocus(fieldFile)
	return a
}

func newInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = placeholder
	ti.CharLimit = 512
	ti.Width = 50
	return ti
}

// Prefill sets the form fields, for example from command line flags.
func (a *App) Prefill(path, recipient, title, message string) {
	a.inputs[fieldFile].SetValue(path)
	a.inputs[fieldRecipient].SetValue(recipient)
	a.inputs[fieldTitle].SetValue(title)
	a.message.SetValue(message)
}

func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.bar.Width = max(10, min(m.Width-10, 60))
		return a, nil
	case tea.KeyMsg:
		if key.Matches(m, keys.Quit) {
			return a, tea.Quit
		}
		if a.showNotice {
			return a.handleNoticeKey(m)
		}
		switch a.step {
		case transfer.StepForm:
			return a.handleFormKey(m)
		case transfer.StepDone:
			return a.handleDoneKey(m)
		}
		return a, nil
	case progressMsg:
		a.progress = storage.Progress(m)
		return a, waitForEvent(a.events)
	case doneMsg:
		a.events = nil
		if m.err != nil {
			a.log.Error("transfer failed", zap.Error(m.err))
			a.step = transfer.StepForm
			return a, a.setToast(utils.UserMessage(m.err))
		}
		a.result = m.res
		a.qr = RenderQR(m.res.ShareLink)
		a.step = transfer.StepDone
		return a, nil
	case backupMsg:
		if m.err != nil {
			return a, a.setToast("Backup failed: " + m.err.Error())
		}
		a.showNotice = false
		return a, a.setToast("Private key saved to " + m.path)
	case toastExpiredMsg:
		if m.id == a.toastID {
			a.toast = ""
		}
		return a, nil
	}
	return a, nil
}

func (a *App) handleNoticeKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, keys.Close):
		a.showNotice = false
	case key.Matches(m, keys.Backup):
		return a, a.backupCmd()
	}
	return a, nil
}

func (a *App) backupCmd() tea.Cmd {
	if a.opts.Backup == nil {
		return nil
	}
	backup := a.opts.Backup
	return func() tea.Msg {
		path, err := backup()
		return backupMsg{path: path, err: err}
	}
}

func (a *App) handleFormKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, keys.Next):
		a.setFocus((a.focus + 1) % (fieldMessage + 1))
		return a, nil
	case key.Matches(m, keys.Prev):
		a.setFocus((a.focus + fieldMessage) % (fieldMessage + 1))
		return a, nil
	case key.Matches(m, keys.Backup):
		return a, a.backupCmd()
	case key.Matches(m, keys.Submit):
		if a.focus < fieldMessage {
			a.setFocus(a.focus + 1)
			return a, nil
		}
		return a, a.submit()
	}

	var cmd tea.Cmd
	if a.focus == fieldMessage {
		a.message, cmd = a.message.Update(m)
	} else {
		a.inputs[a.focus], cmd = a.inputs[a.focus].Update(m)
	}
	return a, cmd
}

func (a *App) handleDoneKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, keys.Copy):
		a.status = a.result.ShareLink
		a.log.Info("share link", zap.String("link", a.result.ShareLink))
		return a, a.setToast("Link copied")
	case key.Matches(m, keys.Again):
		a.reset()
		return a, nil
	case key.Matches(m, keys.QuitDone):
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) submit() tea.Cmd {
	form, err := transfer.LoadForm(
		a.inputs[fieldFile].Value(),
		a.inputs[fieldRecipient].Value(),
		a.inputs[fieldTitle].Value(),
		a.message.Value(),
	)
	if err != nil {
		return a.setToast(utils.UserMessage(err))
	}
	if err := form.Validate(); err != nil {
		return a.setToast(err.Error())
	}

	a.step = transfer.StepUploading
	a.progress = storage.Progress{Total: form.Size()}
	events := newUploadEvents()
	a.events = events
	ctx, sender := a.ctx, a.sender
	go func() {
		res, err := sender.Send(ctx, form, transfer.Hooks{OnProgress: events.report})
		events.done <- doneMsg{res: res, err: err}
	}()
	return waitForEvent(events)
}

// waitForEvent returns the next upload message. A progress value still
// pending when done arrives is delivered first.
func waitForEvent(e *uploadEvents) tea.Cmd {
	if e == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case p := <-e.progress:
			return p
		case d := <-e.done:
			select {
			case p := <-e.progress:
				e.done <- d
				return p
			default:
				return d
			}
		}
	}
}

func (a *App) setToast(text string) tea.Cmd {
	a.toastID++
	a.toast = text
	id := a.toastID
	return tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
}

func (a *App) setFocus(i int) {
	a.focus = i
	for j := range a.inputs {
		if j == i {
			a.inputs[j].Focus()
		} else {
			a.inputs[j].Blur()
		}
	}
	if i == fieldMessage {
		a.message.Focus()
	} else {
		a.message.Blur()
	}
}

func (a *App) reset() {
	for i := range a.inputs {
		a.inputs[i].Reset()
	}
	a.message.Reset()
	a.result = nil
	a.qr = ""
	a.status = ""
	a.progress = storage.Progress{}
	a.step = transfer.StepForm
	a.setFocus(fieldFile)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	toastStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	linkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	noticeStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("205")).Padding(1, 2)
	frameStyle  = lipgloss.NewStyle().Margin(1, 2)
)

func (a *App) View() string {
	var body string
	switch {
	case a.showNotice:
		body = a.renderNotice()
	case a.step == transfer.StepUploading:
		body = a.renderUploading()
	case a.step == transfer.StepDone:
		body = a.renderDone()
	default:
		body = a.renderForm()
	}
	if a.toast != "" {
		body += "\n\n" + toastStyle.Render(a.toast)
	}
	return frameStyle.Render(body)
}

func (a *App) renderNotice() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Account Generated!"))
	b.WriteString("\n\nA new wallet was created for you:\n")
	b.WriteString(focusStyle.Render(a.opts.Address))
	b.WriteString("\n\nBack up the private key now. Anyone holding it can read files shared with you.\n\n")
	b.WriteString(helpStyle.Render(helpLine(keys.Backup, keys.Close)))
	return noticeStyle.Render(b.String())
}

func (a *App) renderForm() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("DWETransfer"))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(a.opts.Address))
	b.WriteString("\n\n")
	labels := []string{"File", "Wallet address", "Title"}
	for i, in := range a.inputs {
		b.WriteString(a.label(i, labels[i]))
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	b.WriteString(a.label(fieldMessage, "Message"))
	b.WriteString("\n")
	b.WriteString(a.message.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(helpLine(keys.Next, keys.Submit, keys.Backup, keys.Quit)))
	return b.String()
}

func (a *App) label(i int, text string) string {
	if a.focus == i {
		return focusStyle.Render("> " + text)
	}
	return labelStyle.Render("  " + text)
}

func (a *App) renderUploading() string {
	p := a.progress
	return fmt.Sprintf("%s\n\n%s\n\n%s / %s (%d%%)",
		titleStyle.Render("Uploading encrypted file..."),
		a.bar.ViewAs(float64(p.Percent())/100),
		transfer.HumanFileSize(p.Uploaded),
		transfer.HumanFileSize(p.Total),
		p.Percent(),
	)
}

func (a *App) renderDone() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("File sent!"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s was notified with the link:\n", a.result.Recipient)
	b.WriteString(linkStyle.Render(a.result.ShareLink))
	b.WriteString("\n\n")
	b.WriteString(a.qr)
	if a.status != "" {
		b.WriteString("\n")
		b.WriteString(a.status)
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpLine(keys.Copy, keys.Again, keys.QuitDone)))
	return b.String()
}
