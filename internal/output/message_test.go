package output

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/neotutor/internal/models"
)

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown("plain words", "notty", 40)
	assert.Contains(t, out, "plain words")
}

func TestRenderMarkdown_UnknownStyleFallsBack(t *testing.T) {
	out := RenderMarkdown("plain words", "no-such-style", 40)
	assert.Contains(t, out, "plain words")
}

func TestCitationLine(t *testing.T) {
	c := models.VideoCitation{StartTime: "1:05", EndTime: "2:10"}
	assert.Equal(t, "Refer to this video from 1:05 to 2:10", CitationLine(c))
}

func TestFormatMessage_User(t *testing.T) {
	u, _, _ := newTestUI()
	u.Style = "notty"
	got := u.FormatMessage(models.Message{Sender: models.SenderUser, Text: "What is X?"}, "Go Tutor")
	assert.Contains(t, got, "You")
	assert.Contains(t, got, "What is X?")
	assert.NotContains(t, got, "Go Tutor")
}

func TestFormatMessage_Citation(t *testing.T) {
	u, _, _ := newTestUI()
	u.Style = "notty"
	m := models.Message{
		Sender: models.SenderAssistant,
		Text:   "It is Y",
		Citation: &models.VideoCitation{
			VideoURL:  "https://www.youtube.com/embed/abcdefghijk?start=65&autoplay=1&rel=0&end=130",
			Title:     "Intro",
			StartTime: "1:05",
			EndTime:   "2:10",
		},
	}
	got := u.FormatMessage(m, "Go Tutor")
	assert.Contains(t, got, "Go Tutor")
	assert.Contains(t, got, "It is Y")
	assert.Contains(t, got, "Intro")
	assert.Contains(t, got, "start=65")
	assert.Contains(t, got, "Refer to this video from 1:05 to 2:10")
}

func TestMessage_WritesToOut(t *testing.T) {
	u, out, _ := newTestUI()
	u.Style = "notty"
	u.Message(models.Message{Sender: models.SenderAssistant, Text: "hello"}, "Tutor")
	assert.Contains(t, out.String(), "hello")
}
