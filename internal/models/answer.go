package models

// AnswerKind discriminates the two shapes a tutor answer can take.
type AnswerKind string

const (
	AnswerPlain    AnswerKind = "plain"
	AnswerCitation AnswerKind = "citation"
)

// Answer is a backend query result decoded into an explicit variant.
// For AnswerCitation all of VideoURL, StartTime, EndTime and Title are non-empty.
type Answer struct {
	Kind      AnswerKind
	Text      string
	VideoURL  string
	StartTime string
	EndTime   string
	Title     string
}

// IsCitation reports whether the answer references a video segment.
func (a Answer) IsCitation() bool { return a.Kind == AnswerCitation }
