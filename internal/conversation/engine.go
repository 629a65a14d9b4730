// Package conversation drives one tutoring exchange: it records the user's
// question, asks the backend, and turns the answer into a display-ready
// assistant message.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joescharf/neotutor/internal/models"
	"github.com/joescharf/neotutor/internal/video"
)

// ErrReplyPending is returned by Submit while a previous question is still
// waiting for its answer. Overlapping submissions are rejected.
var ErrReplyPending = errors.New("still waiting for the previous reply")

// Querier sends a question to the tutor backend.
type Querier interface {
	Query(ctx context.Context, userQuery string) (models.Answer, error)
}

// Recorder persists messages as they are appended.
type Recorder interface {
	Record(ctx context.Context, m models.Message) error
}

// FailureHandler is told about queries that produced no reply.
type FailureHandler func(query string, err error)

// Outcome describes what one Submit did.
type Outcome struct {
	// Skipped is set when the query was blank and nothing happened.
	Skipped bool
	// Reply is the appended assistant message, if any.
	Reply *models.Message
	// Err is the query failure. The transcript holds only the user message
	// for this exchange when Err is set.
	Err error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithRecorder persists every appended message.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithFailureHandler registers a side channel for failed queries.
func WithFailureHandler(fn FailureHandler) Option { return func(e *Engine) { e.onFailure = fn } }

// WithReplyDelay holds each reply for d before appending it.
func WithReplyDelay(d time.Duration) Option { return func(e *Engine) { e.replyDelay = d } }

// WithHistory seeds the transcript, e.g. when resuming a saved conversation.
func WithHistory(msgs []models.Message) Option {
	return func(e *Engine) { e.messages = append([]models.Message(nil), msgs...) }
}

// Engine owns the transcript of one tutoring conversation.
type Engine struct {
	querier    Querier
	logger     *slog.Logger
	recorder   Recorder
	onFailure  FailureHandler
	replyDelay time.Duration
	now        func() time.Time

	mu       sync.Mutex
	messages []models.Message
	awaiting bool
}

// New creates an Engine with an empty transcript.
func New(q Querier, opts ...Option) *Engine {
	e := &Engine{
		querier: q,
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Submit asks query and appends at most one assistant message. Blank queries
// are a no-op. Query failures are logged and reported through Outcome.Err and
// the failure handler; they are not returned as errors. The only error is
// ErrReplyPending.
func (e *Engine) Submit(ctx context.Context, query string) (Outcome, error) {
	if strings.TrimSpace(query) == "" {
		return Outcome{Skipped: true}, nil
	}

	e.mu.Lock()
	if e.awaiting {
		e.mu.Unlock()
		return Outcome{}, ErrReplyPending
	}
	userMsg := models.Message{
		ID:        models.NewID(),
		Sender:    models.SenderUser,
		Text:      query,
		CreatedAt: e.now(),
	}
	e.messages = append(e.messages, userMsg)
	e.awaiting = true
	e.mu.Unlock()

	e.record(ctx, userMsg)

	answer, err := e.querier.Query(ctx, query)
	if err != nil {
		e.mu.Lock()
		e.awaiting = false
		e.mu.Unlock()

		e.logger.Error("tutor query failed", "error", err)
		if e.onFailure != nil {
			e.onFailure(query, err)
		}
		return Outcome{Err: err}, nil
	}

	reply := e.Resolve(answer)
	e.wait(ctx)

	e.mu.Lock()
	e.messages = append(e.messages, reply)
	e.awaiting = false
	e.mu.Unlock()

	e.record(ctx, reply)
	return Outcome{Reply: &reply}, nil
}

// Resolve turns an answer into an assistant message. A citation answer whose
// video id cannot be extracted degrades to plain text.
func (e *Engine) Resolve(a models.Answer) models.Message {
	msg := models.Message{
		ID:        models.NewID(),
		Sender:    models.SenderAssistant,
		Text:      a.Text,
		CreatedAt: e.now(),
	}
	if a.IsCitation() {
		if c, ok := video.Cite(a.VideoURL, a.Title, a.StartTime, a.EndTime); ok {
			msg.Citation = &c
		}
	}
	return msg
}

// Transcript is a snapshot of the conversation.
type Transcript struct {
	Messages      []models.Message
	AwaitingReply bool
}

// Transcript returns a consistent snapshot of messages and the awaiting flag.
func (e *Engine) Transcript() Transcript {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Transcript{
		Messages:      append([]models.Message(nil), e.messages...),
		AwaitingReply: e.awaiting,
	}
}

// Messages returns a copy of the transcript in chronological order.
func (e *Engine) Messages() []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Message(nil), e.messages...)
}

// Len returns the number of messages in the transcript.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

// AwaitingReply reports whether a question is in flight.
func (e *Engine) AwaitingReply() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.awaiting
}

func (e *Engine) wait(ctx context.Context) {
	if e.replyDelay <= 0 {
		return
	}
	t := time.NewTimer(e.replyDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (e *Engine) record(ctx context.Context, m models.Message) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, m); err != nil {
		e.logger.Warn("failed to record message", "message_id", m.ID, "error", err)
	}
}
