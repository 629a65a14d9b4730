package models

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// VideoCitation points at a time-anchored segment of a source video.
type VideoCitation struct {
	VideoURL  string `json:"videoUrl"` // playable embed URL, already time-anchored
	Title     string `json:"title"`
	StartTime string `json:"startTime"` // human-readable, e.g. "1:23:45"
	EndTime   string `json:"endTime"`
}

// Message is one entry of a tutoring transcript. Messages are immutable once built.
type Message struct {
	ID        string
	Sender    Sender
	Text      string // markdown body
	Citation  *VideoCitation
	CreatedAt time.Time
}

// Transcript is a persisted tutoring conversation.
type Transcript struct {
	ID           string
	Channel      string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
