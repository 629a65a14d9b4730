// Package tutors trains new tutors from playlists and lists the ones the
// backend already knows about.
package tutors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joescharf/neotutor/internal/models"
)

// Mirror keys written by this package.
const (
	KeyChannelName    = "channelName"
	KeyChannelLogoURL = "channelLogoUrl"
	KeyHistory        = "aiTutorHistory"
	KeyInstanceID     = "tutorInstanceId"
)

// DefaultChannelName is shown before any tutor has been trained.
const DefaultChannelName = "Tutor"

// DefaultVideoCount is how many playlist videos are ingested when unset.
const DefaultVideoCount = 5

// Validation errors for Ingest.
var (
	ErrEmptyURL        = errors.New("playlist url is required")
	ErrInvalidCount    = errors.New("video count must be at least 1")
	ErrUnknownInstance = errors.New("no tutor with that instance id")
)

// Backend is the subset of the backend client this package uses.
type Backend interface {
	GeneratePDF(ctx context.Context, playlistURL string, n int) (json.RawMessage, error)
	CreateVectors(ctx context.Context) (*models.Channel, error)
	History(ctx context.Context) ([]models.HistoryItem, error)
}

// Mirror is the persisted key/value cache.
type Mirror interface {
	GetMirror(ctx context.Context, key string) (string, bool, error)
	SetMirror(ctx context.Context, key, value string) error
}

// Current identifies the tutor the user is talking to.
type Current struct {
	Name       string
	LogoURL    string
	InstanceID string
}

// History is a tutor listing. Stale is set when the backend could not be
// reached and the items come from the last successful listing.
type History struct {
	Items []models.HistoryItem
	Stale bool
}

// Service coordinates ingestion and history.
type Service struct {
	backend Backend
	mirror  Mirror
	logger  *slog.Logger
}

// New creates a Service. A nil logger uses slog.Default().
func New(b Backend, m Mirror, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: b, mirror: m, logger: logger}
}

// Ingest transcribes up to videoCount videos of a playlist and indexes them
// into a new tutor, which becomes the current one.
func (s *Service) Ingest(ctx context.Context, playlistURL string, videoCount int) (*models.Channel, error) {
	playlistURL = strings.TrimSpace(playlistURL)
	if playlistURL == "" {
		return nil, ErrEmptyURL
	}
	if videoCount < 1 {
		return nil, ErrInvalidCount
	}

	if _, err := s.backend.GeneratePDF(ctx, playlistURL, videoCount); err != nil {
		return nil, fmt.Errorf("generate transcripts: %w", err)
	}
	ch, err := s.backend.CreateVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("create vectors: %w", err)
	}

	s.setMirror(ctx, KeyChannelName, ch.Title)
	s.setMirror(ctx, KeyChannelLogoURL, ch.Icon)
	s.setMirror(ctx, KeyInstanceID, "")
	s.logger.Info("tutor ingested", "channel", ch.Title, "videos", videoCount)
	return ch, nil
}

// History lists trained tutors. When the backend fails it falls back to the
// mirrored listing; the error is returned only if no fallback exists.
func (s *Service) History(ctx context.Context) (History, error) {
	items, err := s.backend.History(ctx)
	if err == nil {
		if data, merr := json.Marshal(items); merr == nil {
			s.setMirror(ctx, KeyHistory, string(data))
		}
		return History{Items: items}, nil
	}

	s.logger.Error("fetch tutor history", "error", err)
	raw, ok, merr := s.mirror.GetMirror(ctx, KeyHistory)
	if merr != nil || !ok {
		return History{}, fmt.Errorf("fetch tutor history: %w", err)
	}
	var cached []models.HistoryItem
	if jerr := json.Unmarshal([]byte(raw), &cached); jerr != nil {
		return History{}, fmt.Errorf("fetch tutor history: %w", err)
	}
	return History{Items: cached, Stale: true}, nil
}

// Use makes a previously trained tutor the current one.
func (s *Service) Use(ctx context.Context, instanceID string) (Current, error) {
	h, err := s.History(ctx)
	if err != nil {
		return Current{}, err
	}
	for _, item := range h.Items {
		if item.InstanceID != instanceID {
			continue
		}
		cur := Current{
			Name:       item.ChannelData.ChannelName,
			LogoURL:    item.ChannelData.ThumbnailURL,
			InstanceID: item.InstanceID,
		}
		s.setMirror(ctx, KeyChannelName, cur.Name)
		s.setMirror(ctx, KeyChannelLogoURL, cur.LogoURL)
		s.setMirror(ctx, KeyInstanceID, cur.InstanceID)
		return cur, nil
	}
	return Current{}, fmt.Errorf("%w: %s", ErrUnknownInstance, instanceID)
}

// CurrentChannel returns the mirrored current tutor.
func (s *Service) CurrentChannel(ctx context.Context) Current {
	cur := Current{
		Name:       s.getMirror(ctx, KeyChannelName),
		LogoURL:    s.getMirror(ctx, KeyChannelLogoURL),
		InstanceID: s.getMirror(ctx, KeyInstanceID),
	}
	if cur.Name == "" {
		cur.Name = DefaultChannelName
	}
	return cur
}

func (s *Service) getMirror(ctx context.Context, key string) string {
	v, ok, err := s.mirror.GetMirror(ctx, key)
	if err != nil {
		s.logger.Warn("read mirror", "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *Service) setMirror(ctx context.Context, key, value string) {
	if err := s.mirror.SetMirror(ctx, key, value); err != nil {
		s.logger.Warn("write mirror", "key", key, "error", err)
	}
}
