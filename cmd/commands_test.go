package cmd

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/neotutor/internal/backend/backendtest"
	"github.com/joescharf/neotutor/internal/models"
	"github.com/joescharf/neotutor/internal/session"
	"github.com/joescharf/neotutor/internal/tutors"
)

// backendEnv is testEnv pointed at a fake backend with one account.
func backendEnv(t *testing.T) *backendtest.Server {
	t.Helper()
	testEnv(t)
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	srv.AddUser(models.User{Name: "ada", GitHubUsername: "ada-l"}, "secret")
	viper.Set("api.base_url", srv.URL)
	viper.Set("api.tutor_url", srv.URL)
	return srv
}

func stdout() string { return ui.Out.(*bytes.Buffer).String() }

func login(t *testing.T) {
	t.Helper()
	authName, authPassword = "ada", "secret"
	t.Cleanup(func() { authName, authPassword = "", "" })

	c := &cobra.Command{}
	c.SetContext(context.Background())
	require.NoError(t, authLoginRun(c))
}

// restart drops in-process state so the next command starts like a new run.
func restart() {
	closeDeps()
}

func TestAuthLogin_PersistsAcrossRuns(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()

	login(t)
	assert.Contains(t, stdout(), "Signed in as")
	assert.Equal(t, 1, srv.ActiveSessions())

	restart()
	require.NoError(t, authWhoamiRun(ctx))
	assert.Contains(t, stdout(), "ada-l")

	restart()
	require.NoError(t, authStatusRun(ctx))
	assert.Contains(t, stdout(), "signed in")
}

func TestAuthLogin_BadPassword(t *testing.T) {
	backendEnv(t)
	authName, authPassword = "ada", "wrong"
	t.Cleanup(func() { authName, authPassword = "", "" })

	c := &cobra.Command{}
	c.SetContext(context.Background())
	err := authLoginRun(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestAuthLogin_PromptsForMissingValues(t *testing.T) {
	backendEnv(t)
	promptReader = nil
	t.Cleanup(func() { promptReader = nil })

	c := &cobra.Command{}
	c.SetContext(context.Background())
	c.SetIn(strings.NewReader("ada\nsecret\n"))
	require.NoError(t, authLoginRun(c))
	assert.Contains(t, stdout(), "Signed in as")
}

func TestAuthSignup(t *testing.T) {
	srv := backendEnv(t)
	authName, authGitHub, authPassword = "grace", "ghopper", "pw"
	t.Cleanup(func() { authName, authGitHub, authPassword = "", "", "" })

	c := &cobra.Command{}
	c.SetContext(context.Background())
	require.NoError(t, authSignupRun(c))
	assert.Contains(t, stdout(), "grace")
	assert.Equal(t, 1, srv.ActiveSessions())
}

func TestAuthLogout(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()
	login(t)

	require.NoError(t, authLogoutRun(ctx))
	assert.Equal(t, 0, srv.ActiveSessions())

	restart()
	err := authWhoamiRun(ctx)
	assert.ErrorIs(t, err, session.ErrAuthRequired)
}

func TestAuthLogout_ServerDownStillClears(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()
	login(t)
	srv.Fail("/api/auth/signout", http.StatusInternalServerError)

	require.NoError(t, authLogoutRun(ctx))
	assert.Contains(t, ui.ErrOut.(*bytes.Buffer).String(), "Server sign-out failed")

	restart()
	require.NoError(t, authStatusRun(ctx))
	assert.Contains(t, stdout(), "signed out")
}

func TestGatedCommandsRequireSession(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, askRun(ctx, "hi"), session.ErrAuthRequired)
	assert.ErrorIs(t, ingestRun(ctx, "https://youtube.com/playlist?list=PL1"), session.ErrAuthRequired)
	assert.ErrorIs(t, tutorsListRun(ctx), session.ErrAuthRequired)
	assert.ErrorIs(t, chatRun(ctx), session.ErrAuthRequired)
	assert.Equal(t, 0, srv.Calls("/query"))
}

func TestAsk_CitationSavedToTranscript(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()
	login(t)
	srv.AnswerWith(map[string]any{
		"answer":    "It is Y",
		"videoUrl":  "https://youtu.be/abcdefghijk",
		"startTime": "1:05",
		"endTime":   "2:10",
		"title":     "Intro",
	})

	askSave = true
	t.Cleanup(func() { askSave = false })
	require.NoError(t, askRun(ctx, "What is X?"))

	out := stdout()
	assert.Contains(t, out, "It is Y")
	assert.Contains(t, out, "start=65")
	assert.Contains(t, out, "Refer to this video from 1:05 to 2:10")

	s, err := getStore()
	require.NoError(t, err)
	list, err := s.ListTranscripts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.Equal(t, tutors.DefaultChannelName, list[0].Channel)

	require.NoError(t, transcriptShowRun(ctx, list[0].ID))
	require.NoError(t, transcriptDeleteRun(ctx, list[0].ID))
	list, err = s.ListTranscripts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAsk_AppendsToExistingTranscript(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()
	login(t)
	srv.AnswerWith(map[string]any{"answer": "It is Y"})

	s, err := getStore()
	require.NoError(t, err)
	tr := &models.Transcript{Channel: tutors.DefaultChannelName}
	require.NoError(t, s.CreateTranscript(ctx, tr))

	askTranscript = tr.ID
	t.Cleanup(func() { askTranscript = "" })
	require.NoError(t, askRun(ctx, "What is X?"))
	require.NoError(t, askRun(ctx, "And Z?"))

	list, err := s.ListTranscripts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].MessageCount)
}

func TestAsk_UnknownTranscript(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()
	login(t)

	askTranscript = "01UNKNOWNTRANSCRIPT"
	t.Cleanup(func() { askTranscript = "" })
	err := askRun(ctx, "What is X?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "01UNKNOWNTRANSCRIPT")
	assert.Equal(t, 0, srv.Calls("/query"))
}

func TestAsk_FailureReturnsError(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()
	login(t)
	srv.Fail("/query", http.StatusInternalServerError)

	err := askRun(ctx, "What is X?")
	require.Error(t, err)
	assert.Contains(t, ui.ErrOut.(*bytes.Buffer).String(), "Please try again")
}

func TestAsk_Blank(t *testing.T) {
	backendEnv(t)
	assert.Error(t, askRun(context.Background(), "   "))
}

func TestIngestAndTutors(t *testing.T) {
	srv := backendEnv(t)
	ctx := context.Background()
	login(t)

	ingestVideos = 3
	t.Cleanup(func() { ingestVideos = tutors.DefaultVideoCount })
	require.NoError(t, ingestRun(ctx, "https://youtube.com/playlist?list=PL1"))
	assert.Contains(t, stdout(), "Tutor ready")
	assert.Equal(t, []string{"https://youtube.com/playlist?list=PL1"}, srv.Ingested())

	require.NoError(t, tutorsCurrentRun(ctx))
	assert.Contains(t, stdout(), "Go Tutor")

	srv.SetHistory([]models.HistoryItem{{
		ID:          "h1",
		InstanceID:  "inst-1",
		ChannelData: models.ChannelData{ChannelName: "Rust Tutor", Title: "Ownership", ViewCount: 7},
	}})
	require.NoError(t, tutorsListRun(ctx))
	assert.Contains(t, stdout(), "inst-1")

	require.NoError(t, tutorsUseRun(ctx, "inst-1"))
	assert.Contains(t, stdout(), "Now talking to")
	assert.Error(t, tutorsUseRun(ctx, "nope"))
}

func TestIngest_DryRun(t *testing.T) {
	srv := backendEnv(t)
	login(t)
	dryRun = true
	t.Cleanup(func() { dryRun = false })
	ui.DryRun = true

	require.NoError(t, ingestRun(context.Background(), "https://youtube.com/playlist?list=PL1"))
	assert.Equal(t, 0, srv.Calls("/generate-pdf"))
}

func TestTranscriptList_Empty(t *testing.T) {
	testEnv(t)
	require.NoError(t, transcriptListRun(context.Background()))
	assert.Contains(t, stdout(), "No saved transcripts")
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "info", "json")
	l.Debug("hidden")
	l.Info("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	l = newLogger(&buf, "bogus", "text")
	l.Info("below warn")
	l.Warn("warned")
	assert.NotContains(t, buf.String(), "below warn")
	assert.Contains(t, buf.String(), "warned")
}

func TestVersion(t *testing.T) {
	testEnv(t)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, stdout(), "neotutor dev")
}
