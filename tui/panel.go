// Package tui renders a settings panel session in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/reconcile"
	"github.com/sardine-ai/fieldview/reorder"
	"github.com/sardine-ai/fieldview/widget"
)

type keyMap struct {
	up     key.Binding
	down   key.Binding
	toggle key.Binding
	pick   key.Binding
	drop   key.Binding
	save   key.Binding
	reset  key.Binding
	cancel key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "show/hide"),
		),
		pick: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "move"),
		),
		drop: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "drop"),
		),
		save: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "save"),
		),
		reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "close"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.up, k.down, k.toggle, k.pick, k.drop, k.save, k.reset, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.toggle},
		{k.pick, k.drop, k.cancel},
		{k.save, k.reset, k.quit},
	}
}

type styles struct {
	title   lipgloss.Style
	cursor  lipgloss.Style
	carried lipgloss.Style
	hidden  lipgloss.Style
	key     lipgloss.Style
	marker  lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		cursor:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		carried: lipgloss.NewStyle().Reverse(true),
		hidden:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		marker:  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
	}
}

// Notices is a widget.Notifier that hands notices to a running Model.
// Notices that arrive while the buffer is full are dropped.
type Notices chan widget.Notice

func NewNotices() Notices {
	return make(Notices, 16)
}

func (n Notices) Notify(x widget.Notice) {
	select {
	case n <- x:
	default:
	}
}

type noticeMsg widget.Notice

type doneMsg struct {
	action string
	err    error
}

func (n Notices) wait() tea.Cmd {
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		return noticeMsg(<-n)
	}
}

// Model is the bubbletea model for one settings panel session.
type Model struct {
	ctx     context.Context
	panel   *widget.Panel
	notices Notices
	keys    keyMap
	help    help.Model
	styles  styles

	cursor  int
	status  string
	warning bool
	closed  bool
}

// New returns a Model driving panel. notices may be nil.
func New(ctx context.Context, panel *widget.Panel, notices Notices) Model {
	return Model{
		ctx:     ctx,
		panel:   panel,
		notices: notices,
		keys:    newKeyMap(),
		help:    help.New(),
		styles:  newStyles(),
	}
}

// Closed reports whether the user closed the panel.
func (m Model) Closed() bool {
	return m.closed
}

// Status returns the current status line text.
func (m Model) Status() string {
	return m.status
}

func (m Model) Init() tea.Cmd {
	return m.notices.wait()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case noticeMsg:
		m.setStatus(msg.Message, msg.Kind == widget.CapReached || msg.Kind == widget.SaveFailed)
		return m, m.notices.wait()

	case doneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.action, msg.err), true)
		} else if m.notices == nil {
			m.setStatus(msg.action+" done", false)
		}
		m.clampCursor()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	dragging := m.panel.Dragging()
	switch {
	case key.Matches(msg, m.keys.quit):
		return m.close()

	case key.Matches(msg, m.keys.cancel):
		if dragging {
			m.panel.DragEnd()
			m.setStatus("move cancelled", false)
			return m, nil
		}
		return m.close()

	case key.Matches(msg, m.keys.up):
		m.moveCursor(-1, dragging)

	case key.Matches(msg, m.keys.down):
		m.moveCursor(1, dragging)

	case key.Matches(msg, m.keys.toggle):
		if dragging {
			return m, nil
		}
		m.toggle()

	case key.Matches(msg, m.keys.pick):
		if !dragging && len(m.panel.Rows()) > 0 {
			m.panel.DragStart(m.cursor)
			m.panel.DragOver(m.cursor)
			m.setStatus("moving, enter to drop", false)
		}

	case key.Matches(msg, m.keys.drop):
		if dragging {
			if err := m.panel.Drop(m.cursor); err != nil {
				m.setStatus(err.Error(), true)
			} else {
				m.setStatus("", false)
			}
		}

	case key.Matches(msg, m.keys.save):
		panel, ctx := m.panel, m.ctx
		return m, func() tea.Msg {
			return doneMsg{action: "save", err: panel.Save(ctx)}
		}

	case key.Matches(msg, m.keys.reset):
		panel, ctx := m.panel, m.ctx
		return m, func() tea.Msg {
			return doneMsg{action: "reset", err: panel.Reset(ctx)}
		}
	}
	return m, nil
}

func (m *Model) moveCursor(delta int, dragging bool) {
	m.cursor += delta
	m.clampCursor()
	if dragging {
		m.panel.DragOver(m.cursor)
	}
}

func (m *Model) clampCursor() {
	n := len(m.panel.Rows())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) toggle() {
	rows := m.panel.Rows()
	if m.cursor >= len(rows) {
		return
	}
	err := m.panel.Toggle(rows[m.cursor].Key)
	switch {
	case err == nil:
		m.setStatus("", false)
	case errors.Is(err, reconcile.ErrCapExceeded):
		_, max := m.panel.Enabled()
		m.setStatus(fmt.Sprintf("at most %d fields can be shown", max), true)
	default:
		m.setStatus(err.Error(), true)
	}
}

func (m Model) close() (tea.Model, tea.Cmd) {
	m.panel.Cancel()
	m.closed = true
	return m, tea.Quit
}

func (m *Model) setStatus(s string, warning bool) {
	m.status = s
	m.warning = warning
}

func (m Model) View() string {
	if m.closed {
		return ""
	}
	var b strings.Builder
	enabled, max := m.panel.Enabled()
	title := fmt.Sprintf("Fields (%d/%d shown)", enabled, max)
	if m.panel.Dirty() {
		title += " *"
	}
	b.WriteString(m.styles.title.Render(title))
	b.WriteString("\n\n")

	for _, row := range m.panel.Rows() {
		if row.Marker == reorder.Before {
			b.WriteString(m.styles.marker.Render("  ──────") + "\n")
		}
		b.WriteString(m.renderRow(row))
		b.WriteString("\n")
		if row.Marker == reorder.After {
			b.WriteString(m.styles.marker.Render("  ──────") + "\n")
		}
	}

	b.WriteString("\n")
	if m.status != "" {
		style := m.styles.ok
		if m.warning {
			style = m.styles.warn
		}
		b.WriteString(style.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderRow(row widget.Row) string {
	pointer := "  "
	if row.Index == m.cursor {
		pointer = m.styles.cursor.Render("> ")
	}
	box := "[ ]"
	if row.Enabled {
		box = "[x]"
	}
	label := row.Label
	if !row.Enabled {
		label = m.styles.hidden.Render(label)
	}
	line := fmt.Sprintf("%s %s %s", box, label, m.styles.key.Render(row.Key))
	if row.Carried {
		line = m.styles.carried.Render(line)
	}
	return pointer + line
}
