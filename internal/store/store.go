package store

import (
	"context"
	"errors"
	"net/http"

	"github.com/joescharf/neotutor/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the local persistence interface for neotutor.
type Store interface {
	// Mirror: best-effort local cache of session state.
	GetMirror(ctx context.Context, key string) (string, bool, error)
	SetMirror(ctx context.Context, key, value string) error
	DeleteMirror(ctx context.Context, keys ...string) error

	// Cookies
	SaveCookies(ctx context.Context, rawURL string, cookies []*http.Cookie) error
	LoadCookies(ctx context.Context) (map[string][]*http.Cookie, error)
	ClearCookies(ctx context.Context) error

	// Transcripts
	CreateTranscript(ctx context.Context, t *models.Transcript) error
	GetTranscript(ctx context.Context, id string) (*models.Transcript, error)
	ListTranscripts(ctx context.Context, limit int) ([]*models.Transcript, error)
	DeleteTranscript(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, transcriptID string, m *models.Message) error
	ListMessages(ctx context.Context, transcriptID string) ([]*models.Message, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
