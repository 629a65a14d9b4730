package chatui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/neotutor/internal/conversation"
	"github.com/joescharf/neotutor/internal/models"
)

type fakeQuerier struct {
	answer models.Answer
	err    error
}

func (f fakeQuerier) Query(context.Context, string) (models.Answer, error) {
	return f.answer, f.err
}

func plainFormat(m models.Message) string {
	return string(m.Sender) + ": " + m.Text
}

func newTestModel(q conversation.Querier) (Model, *conversation.Engine) {
	eng := conversation.New(q)
	return NewModel(context.Background(), eng, "Go Tutor", plainFormat), eng
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func pressEnter(t *testing.T, m Model) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// runReply executes the submit command found in a batch and feeds its
// result back into the model.
func runReply(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	for _, c := range batch {
		if c == nil {
			continue
		}
		if reply, ok := c().(replyMsg); ok {
			next, _ := m.Update(reply)
			return next.(Model)
		}
	}
	t.Fatal("no reply in batch")
	return m
}

func TestSubmitShowsReply(t *testing.T) {
	m, eng := newTestModel(fakeQuerier{answer: models.Answer{Kind: models.AnswerPlain, Text: "It is Y"}})

	m = typeText(t, m, "What is X?")
	m, cmd := pressEnter(t, m)
	assert.True(t, m.Sending())
	assert.Contains(t, m.viewport.View(), "What is X?")
	assert.Empty(t, m.input.Value())

	m = runReply(t, m, cmd)
	assert.False(t, m.Sending())
	assert.Empty(t, m.Status())
	assert.Equal(t, 2, eng.Len())
	assert.Contains(t, m.viewport.View(), "assistant: It is Y")
}

func TestBlankInputIgnored(t *testing.T) {
	m, eng := newTestModel(fakeQuerier{})

	m = typeText(t, m, "   ")
	m, cmd := pressEnter(t, m)
	assert.Nil(t, cmd)
	assert.False(t, m.Sending())
	assert.Equal(t, 0, eng.Len())
}

func TestFailureShowsStatus(t *testing.T) {
	m, eng := newTestModel(fakeQuerier{err: errors.New("boom")})

	m = typeText(t, m, "What is X?")
	m, cmd := pressEnter(t, m)
	m = runReply(t, m, cmd)

	assert.False(t, m.Sending())
	assert.Equal(t, FailureText, m.Status())
	assert.Equal(t, 1, eng.Len())
	assert.Equal(t, 1, strings.Count(m.viewport.View(), "What is X?"))
}

func TestEnterWhileSendingIsRejected(t *testing.T) {
	m, _ := newTestModel(fakeQuerier{answer: models.Answer{Kind: models.AnswerPlain, Text: "ok"}})

	m = typeText(t, m, "first")
	m, _ = pressEnter(t, m)
	require.True(t, m.Sending())

	m = typeText(t, m, "second")
	m, cmd := pressEnter(t, m)
	assert.Nil(t, cmd)
	assert.Equal(t, "second", m.input.Value())
	assert.Contains(t, m.Status(), "waiting")
}

func TestReplyPendingFromEngine(t *testing.T) {
	m, _ := newTestModel(fakeQuerier{})
	m.sending = true
	next, _ := m.Update(replyMsg{err: conversation.ErrReplyPending})
	m = next.(Model)
	assert.False(t, m.Sending())
	assert.Contains(t, m.Status(), "waiting")
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(fakeQuerier{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestWindowResize(t *testing.T) {
	m, _ := newTestModel(fakeQuerier{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)
	assert.Equal(t, 100, m.viewport.Width)
	assert.Equal(t, 25, m.viewport.Height)
	assert.Contains(t, m.View(), "Go Tutor")
}

func TestEmptyTranscriptHint(t *testing.T) {
	m, _ := newTestModel(fakeQuerier{})
	assert.Contains(t, m.viewport.View(), "Ask Go Tutor anything")
}
