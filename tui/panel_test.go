package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sardine-ai/fieldview/view"
	"github.com/sardine-ai/fieldview/widget"
)

func newTestModel(t *testing.T, maxEnabled int, keys ...string) (Model, *widget.Widget) {
	t.Helper()
	nodes := make([]view.Node, len(keys))
	for i, k := range keys {
		nodes[i] = view.NewElement(k, strings.ToUpper(k))
	}
	w, err := widget.New(widget.Options{Container: view.NewList(nodes...), MaxEnabled: maxEnabled})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })
	if err := w.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(context.Background(), w.OpenPanel(), nil), w
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(k)
		m = next.(Model)
		if cmd == nil {
			continue
		}
		if msg := cmd(); msg != nil {
			if _, quit := msg.(tea.QuitMsg); quit {
				continue
			}
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

var (
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestToggleAndSave(t *testing.T) {
	m, w := newTestModel(t, 0, "a", "b", "c")

	m = press(t, m, keyDown, keySpace)
	if !strings.Contains(m.View(), "Fields (2/10 shown) *") {
		t.Errorf("unexpected title in view:\n%s", m.View())
	}
	if got := w.Configuration().EnabledCount(); got != 3 {
		t.Errorf("toggle must not reach the widget before save, enabled=%d", got)
	}

	m = press(t, m, runes("s"))
	if got := w.Configuration().EnabledCount(); got != 2 {
		t.Errorf("expected 2 enabled after save, got %d", got)
	}
	if m.Status() != "save done" {
		t.Errorf("unexpected status %q", m.Status())
	}
}

func TestToggleAtCapShowsWarning(t *testing.T) {
	m, w := newTestModel(t, 2, "a", "b", "c")
	if err := w.SetEnabled(context.Background(), "c", false); err != nil {
		t.Fatal(err)
	}
	m = New(context.Background(), w.OpenPanel(), nil)

	m = press(t, m, keyDown, keyDown, keySpace)
	if m.Status() != "at most 2 fields can be shown" {
		t.Errorf("unexpected status %q", m.Status())
	}
	if !strings.Contains(m.View(), "[ ] C") {
		t.Errorf("row must stay unchecked:\n%s", m.View())
	}
}

func TestMoveWithKeyboard(t *testing.T) {
	m, w := newTestModel(t, 0, "a", "b", "c", "d")

	m = press(t, m, keyDown, keyDown, keyDown, runes("m"), keyUp, keyUp)
	if !strings.Contains(m.View(), "──────") {
		t.Errorf("expected an insertion marker while moving:\n%s", m.View())
	}
	m = press(t, m, keyEnter, runes("s"))

	got := strings.Join(w.Configuration().Keys(), ",")
	if got != "a,d,b,c" {
		t.Errorf("expected a,d,b,c, got %s", got)
	}
}

func TestEscCancelsMoveThenCloses(t *testing.T) {
	m, w := newTestModel(t, 0, "a", "b")

	m = press(t, m, runes("m"), keyDown, keyEsc)
	if m.Closed() {
		t.Fatal("first esc must only cancel the move")
	}
	if strings.Contains(m.View(), "──────") {
		t.Error("marker must be gone after cancelling the move")
	}

	m = press(t, m, keySpace, keyEsc)
	if !m.Closed() {
		t.Fatal("second esc must close the panel")
	}
	if m.View() != "" {
		t.Error("closed panel renders nothing")
	}
	if got := w.Configuration().EnabledCount(); got != 2 {
		t.Errorf("closing must discard edits, enabled=%d", got)
	}
}

func TestResetKey(t *testing.T) {
	m, w := newTestModel(t, 0, "a", "b")
	if err := w.SetEnabled(context.Background(), "a", false); err != nil {
		t.Fatal(err)
	}
	m = New(context.Background(), w.OpenPanel(), nil)

	m = press(t, m, runes("r"))
	if got := w.Configuration().EnabledCount(); got != 2 {
		t.Errorf("expected reset to enable both fields, got %d", got)
	}
	if !strings.Contains(m.View(), "[x] A") {
		t.Errorf("draft must reload after reset:\n%s", m.View())
	}
}

func TestNoticesReachStatus(t *testing.T) {
	notices := NewNotices()
	notices.Notify(widget.Notice{Kind: widget.SaveFailed, Message: "field settings are too large to save"})

	m, _ := newTestModel(t, 0, "a")
	m = New(context.Background(), m.panel, notices)
	next, cmd := m.Update(m.Init()())
	m = next.(Model)
	if m.Status() != "field settings are too large to save" {
		t.Errorf("unexpected status %q", m.Status())
	}
	if cmd == nil {
		t.Error("model must keep listening for notices")
	}
}
