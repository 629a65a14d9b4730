package store

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/neotutor/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

// --- Mirror ---

func TestMirror(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetMirror(ctx, "isLoggedIn")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMirror(ctx, "isLoggedIn", "true"))
	require.NoError(t, s.SetMirror(ctx, "user", `{"name":"A"}`))

	v, ok, err := s.GetMirror(ctx, "isLoggedIn")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	// Writes replace the whole value.
	require.NoError(t, s.SetMirror(ctx, "user", `{"name":"B"}`))
	v, _, err = s.GetMirror(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"B"}`, v)

	require.NoError(t, s.DeleteMirror(ctx, "isLoggedIn", "user"))
	_, ok, _ = s.GetMirror(ctx, "isLoggedIn")
	assert.False(t, ok)
	_, ok, _ = s.GetMirror(ctx, "user")
	assert.False(t, ok)

	assert.NoError(t, s.DeleteMirror(ctx))
}

func TestMirror_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.SetMirror(ctx, "channelName", "Go Tutor"))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.Migrate(ctx))

	v, ok, err := s2.GetMirror(ctx, "channelName")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Go Tutor", v)
}

// --- Cookies ---

func TestCookies_SaveLoadClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := "http://localhost:3000/api/auth/signin"

	err := s.SaveCookies(ctx, u, []*http.Cookie{
		{Name: "token", Value: "abc", Path: "/", HttpOnly: true},
		{Name: "pref", Value: "dark", MaxAge: 3600},
	})
	require.NoError(t, err)

	got, err := s.LoadCookies(ctx)
	require.NoError(t, err)
	require.Len(t, got[u], 2)
	assert.Equal(t, "pref", got[u][0].Name)
	assert.False(t, got[u][0].Expires.IsZero())
	assert.Equal(t, "token", got[u][1].Name)
	assert.Equal(t, "abc", got[u][1].Value)
	assert.True(t, got[u][1].HttpOnly)

	// Overwrite and delete via MaxAge<0.
	err = s.SaveCookies(ctx, u, []*http.Cookie{
		{Name: "token", Value: "def", Path: "/"},
		{Name: "pref", MaxAge: -1},
	})
	require.NoError(t, err)

	got, err = s.LoadCookies(ctx)
	require.NoError(t, err)
	require.Len(t, got[u], 1)
	assert.Equal(t, "def", got[u][0].Value)

	require.NoError(t, s.ClearCookies(ctx))
	got, err = s.LoadCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCookies_ExpiredSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := "http://localhost:3000/"

	require.NoError(t, s.SaveCookies(ctx, u, []*http.Cookie{
		{Name: "old", Value: "x", Expires: time.Now().Add(-time.Hour)},
	}))
	got, err := s.LoadCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Transcripts ---

func TestTranscriptLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := &models.Transcript{Channel: "Go Tutor"}
	require.NoError(t, s.CreateTranscript(ctx, tr))
	assert.NotEmpty(t, tr.ID)
	assert.False(t, tr.CreatedAt.IsZero())

	user := &models.Message{Sender: models.SenderUser, Text: "What is X?"}
	require.NoError(t, s.AppendMessage(ctx, tr.ID, user))
	assert.NotEmpty(t, user.ID)

	reply := &models.Message{
		Sender: models.SenderAssistant,
		Text:   "It is Y",
		Citation: &models.VideoCitation{
			VideoURL:  "https://www.youtube.com/embed/abcdefghijk?start=65&autoplay=1&rel=0&end=130",
			Title:     "Intro",
			StartTime: "1:05",
			EndTime:   "2:10",
		},
	}
	require.NoError(t, s.AppendMessage(ctx, tr.ID, reply))

	msgs, err := s.ListMessages(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Nil(t, msgs[0].Citation)
	assert.Equal(t, models.SenderAssistant, msgs[1].Sender)
	require.NotNil(t, msgs[1].Citation)
	assert.Equal(t, "Intro", msgs[1].Citation.Title)
	assert.Equal(t, "1:05", msgs[1].Citation.StartTime)

	got, err := s.GetTranscript(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Tutor", got.Channel)
	assert.Equal(t, 2, got.MessageCount)

	list, err := s.ListTranscripts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tr.ID, list[0].ID)

	require.NoError(t, s.DeleteTranscript(ctx, tr.ID))
	_, err = s.GetTranscript(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err = s.ListMessages(ctx, tr.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages cascade with transcript")
}

func TestAppendMessage_UnknownTranscript(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendMessage(context.Background(), "missing", &models.Message{Sender: models.SenderUser, Text: "hi"})
	assert.Error(t, err)
}

func TestDeleteTranscript_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteTranscript(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
