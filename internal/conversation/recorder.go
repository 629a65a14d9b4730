package conversation

import (
	"context"

	"github.com/joescharf/neotutor/internal/models"
)

// MessageAppender is the store method a TranscriptRecorder writes through.
type MessageAppender interface {
	AppendMessage(ctx context.Context, transcriptID string, m *models.Message) error
}

// TranscriptRecorder appends messages to one stored transcript.
type TranscriptRecorder struct {
	Store        MessageAppender
	TranscriptID string
}

// Record implements Recorder.
func (r TranscriptRecorder) Record(ctx context.Context, m models.Message) error {
	return r.Store.AppendMessage(ctx, r.TranscriptID, &m)
}
