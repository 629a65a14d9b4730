package backend

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/joescharf/neotutor/internal/models"
)

// ErrNoMessage is returned when a query response lacks a usable message.
var ErrNoMessage = errors.New("response has no message")

// rawAnswer is the object form of a query response message.
type rawAnswer struct {
	Answer    json.RawMessage `json:"answer"`
	VideoURL  json.RawMessage `json:"videoUrl"`
	StartTime json.RawMessage `json:"startTime"`
	EndTime   json.RawMessage `json:"endTime"`
	Title     json.RawMessage `json:"title"`
}

// DecodeAnswer turns the "message" field of a /query response into an
// explicit variant. A string message is plain text used verbatim. An object
// is a citation when videoUrl, startTime, endTime and title are all
// non-empty strings, and plain text otherwise.
func DecodeAnswer(msg json.RawMessage) (models.Answer, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return models.Answer{}, ErrNoMessage
	}

	switch msg[0] {
	case '"':
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return models.Answer{}, err
		}
		return models.Answer{Kind: models.AnswerPlain, Text: s}, nil
	case '{':
	default:
		// Numbers, booleans and arrays are shown as their JSON text.
		return models.Answer{Kind: models.AnswerPlain, Text: pretty(msg)}, nil
	}

	var raw rawAnswer
	if err := json.Unmarshal(msg, &raw); err != nil {
		return models.Answer{}, err
	}

	text := answerText(raw.Answer)
	videoURL, okURL := nonEmptyString(raw.VideoURL)
	start, okStart := nonEmptyString(raw.StartTime)
	end, okEnd := nonEmptyString(raw.EndTime)
	title, okTitle := nonEmptyString(raw.Title)
	if okURL && okStart && okEnd && okTitle {
		return models.Answer{
			Kind:      models.AnswerCitation,
			Text:      text,
			VideoURL:  videoURL,
			StartTime: start,
			EndTime:   end,
			Title:     title,
		}, nil
	}
	return models.Answer{Kind: models.AnswerPlain, Text: text}, nil
}

// answerText returns a string answer verbatim and pretty-prints anything else.
func answerText(raw json.RawMessage) string {
	if s, ok := stringValue(raw); ok {
		return s
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null"
	}
	return pretty(raw)
}

func stringValue(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func nonEmptyString(raw json.RawMessage) (string, bool) {
	s, ok := stringValue(raw)
	return s, ok && s != ""
}

func pretty(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
