package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	Next     key.Binding
	Prev     key.Binding
	Submit   key.Binding
	Backup   key.Binding
	Close    key.Binding
	Copy     key.Binding
	Again    key.Binding
	QuitDone key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	Next:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
	Prev:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous field")),
	Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "next / send")),
	Backup:   key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", "backup private key")),
	Close:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
	Copy:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy link")),
	Again:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "send another")),
	QuitDone: key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
}

func helpLine(bs ...key.Binding) string {
	s := ""
	for i, b := range bs {
		if i > 0 {
			s += " • "
		}
		h := b.Help()
		s += h.Key + " " + h.Desc
	}
	return s
}
