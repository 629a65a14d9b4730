package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/neotutor/internal/backend/backendtest"
	"github.com/joescharf/neotutor/internal/models"
)

func newTestClient(t *testing.T) (*Client, *backendtest.Server) {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := NewClient(Config{BaseURL: srv.URL, Jar: jar, Timeout: 2 * time.Second})
	return c, srv
}

func TestSignInMeSignOut(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	srv.AddUser(models.User{Name: "ada", GitHubUsername: "ada-l", Email: "ada@example.com"}, "secret")

	_, err := c.Me(ctx)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "Not authenticated", se.Message)

	require.NoError(t, c.SignIn(ctx, SignInRequest{Name: "ada", Password: "secret"}))

	u, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Name)
	assert.Equal(t, "ada-l", u.GitHubUsername)
	assert.Equal(t, "ada@example.com", u.Email)

	require.NoError(t, c.SignOut(ctx))
	assert.Equal(t, 0, srv.ActiveSessions())
	_, err = c.Me(ctx)
	assert.Error(t, err)
}

func TestSignIn_BadCredentials(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AddUser(models.User{Name: "ada"}, "secret")

	err := c.SignIn(context.Background(), SignInRequest{Name: "ada", Password: "wrong"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestSignUp(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SignUp(ctx, SignUpRequest{Name: "grace", GitHubUsername: "ghopper", Password: "pw"}))
	u, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ghopper", u.GitHubUsername)

	err = c.SignUp(ctx, SignUpRequest{Name: "grace", Password: "pw"})
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	c, srv := newTestClient(t)
	srv.AnswerWith(map[string]any{
		"answer":    "It is Y",
		"videoUrl":  "https://youtu.be/abcdefghijk",
		"startTime": "1:05",
		"endTime":   "2:10",
		"title":     "Intro",
	})

	a, err := c.Query(context.Background(), "What is X?")
	require.NoError(t, err)
	assert.True(t, a.IsCitation())
	assert.Equal(t, "It is Y", a.Text)
	assert.Equal(t, []string{"What is X?"}, srv.Queries())
}

func TestQuery_ServerError(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Fail("/query", http.StatusInternalServerError)

	_, err := c.Query(context.Background(), "What is X?")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestQuery_Timeout(t *testing.T) {
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	srv.Delay("/query", time.Second)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Query(context.Background(), "slow")
	assert.Error(t, err)
}

func TestTutorURLSeparateOrigin(t *testing.T) {
	auth := backendtest.New()
	t.Cleanup(auth.Close)
	tutor := backendtest.New()
	t.Cleanup(tutor.Close)

	c := NewClient(Config{BaseURL: auth.URL, TutorURL: tutor.URL})
	_, err := c.Query(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 0, auth.Calls("/query"))
	assert.Equal(t, 1, tutor.Calls("/query"))
}

func TestIngestAndHistory(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	srv.SetHistory([]models.HistoryItem{{
		ID:         "1",
		InstanceID: "inst-1",
		ChannelData: models.ChannelData{
			Title:       "Goroutines",
			ChannelName: "Go Tutor",
			ViewCount:   1200,
		},
	}})

	raw, err := c.GeneratePDF(ctx, "https://youtube.com/playlist?list=PL1", 5)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"videos":5`)

	ch, err := c.CreateVectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Go Tutor", ch.Title)

	items, err := c.History(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "inst-1", items[0].InstanceID)
	assert.Equal(t, int64(1200), items[0].ChannelData.ViewCount)
}

func TestStatusErrorMessage(t *testing.T) {
	e := &StatusError{Method: "GET", Path: "/x", Status: 404}
	assert.Equal(t, "GET /x: 404 Not Found", e.Error())
	e.Message = "gone"
	assert.Equal(t, "GET /x: 404 gone", e.Error())
}
