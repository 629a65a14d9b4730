package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/neotutor/internal/conversation"
	"github.com/joescharf/neotutor/internal/models"
	"github.com/joescharf/neotutor/internal/session"
	"github.com/joescharf/neotutor/internal/store"
	"github.com/joescharf/neotutor/internal/tutors"
)

// Server exposes the tutor to MCP clients.
type Server struct {
	session *session.Manager
	querier conversation.Querier
	tutors  *tutors.Service
	store   store.Store
	version string
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(sess *session.Manager, q conversation.Querier, ts *tutors.Service, s store.Store, version string) *Server {
	return &Server{session: sess, querier: q, tutors: ts, store: s, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("neotutor", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.askTool())
	srv.AddTool(s.whoamiTool())
	srv.AddTool(s.historyTool())
	srv.AddTool(s.transcriptTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type citationOut struct {
	VideoURL  string `json:"video_url"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type messageOut struct {
	ID       string       `json:"id"`
	Sender   string       `json:"sender"`
	Text     string       `json:"text"`
	Citation *citationOut `json:"citation,omitempty"`
}

func toMessageOut(m models.Message) messageOut {
	out := messageOut{ID: m.ID, Sender: string(m.Sender), Text: m.Text}
	if c := m.Citation; c != nil {
		out.Citation = &citationOut{
			VideoURL:  c.VideoURL,
			Title:     c.Title,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
		}
	}
	return out
}

// tutor_ask
func (s *Server) askTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tutor_ask",
		mcp.WithDescription("Ask the current tutor a question. Returns the answer text and, when the tutor cites a video, an embeddable YouTube URL with start and end offsets."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to ask")),
		mcp.WithString("transcript_id", mcp.Description("Append the exchange to this saved transcript")),
	)
	return tool, s.handleAsk
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	if err := s.session.Require(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var opts []conversation.Option
	if id := request.GetString("transcript_id", ""); id != "" {
		if _, err := s.store.GetTranscript(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("transcript not found: %s", id)), nil
		}
		opts = append(opts, conversation.WithRecorder(conversation.TranscriptRecorder{Store: s.store, TranscriptID: id}))
	}

	eng := conversation.New(s.querier, opts...)
	out, err := eng.Submit(ctx, question)
	switch {
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	case out.Skipped:
		return mcp.NewToolResultError("question is blank"), nil
	case out.Err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("tutor query failed: %v", out.Err)), nil
	}

	return jsonResult(toMessageOut(*out.Reply))
}

// tutor_whoami
func (s *Server) whoamiTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tutor_whoami",
		mcp.WithDescription("Verify the session with the backend and return the signed-in user."),
	)
	return tool, s.handleWhoami
}

func (s *Server) handleWhoami(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.session.Reconcile(ctx)
	out := struct {
		Authenticated bool         `json:"authenticated"`
		User          *models.User `json:"user,omitempty"`
	}{st.Authenticated, st.User}
	return jsonResult(out)
}

// tutor_history
func (s *Server) historyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tutor_history",
		mcp.WithDescription("List previously trained tutors. Returns instance ids, channel names and the last video each was trained on."),
	)
	return tool, s.handleHistory
}

func (s *Server) handleHistory(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.session.Require(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := s.tutors.History(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tutors: %v", err)), nil
	}

	type tutorOut struct {
		InstanceID string `json:"instance_id"`
		Channel    string `json:"channel"`
		LastVideo  string `json:"last_video"`
		Date       string `json:"date"`
		ViewCount  int64  `json:"view_count"`
	}
	out := struct {
		Stale  bool       `json:"stale"`
		Tutors []tutorOut `json:"tutors"`
	}{Stale: h.Stale, Tutors: make([]tutorOut, len(h.Items))}
	for i, item := range h.Items {
		out.Tutors[i] = tutorOut{
			InstanceID: item.InstanceID,
			Channel:    item.ChannelData.ChannelName,
			LastVideo:  item.ChannelData.Title,
			Date:       item.ChannelData.Date,
			ViewCount:  item.ChannelData.ViewCount,
		}
	}
	return jsonResult(out)
}

// tutor_transcript
func (s *Server) transcriptTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tutor_transcript",
		mcp.WithDescription("Without an id, list saved transcripts. With an id, return that transcript's messages in order."),
		mcp.WithString("id", mcp.Description("Transcript ID")),
		mcp.WithNumber("limit", mcp.Description("Maximum transcripts to list (default 20)")),
	)
	return tool, s.handleTranscript
}

func (s *Server) handleTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	if id == "" {
		limit := request.GetInt("limit", 20)
		list, err := s.store.ListTranscripts(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list transcripts: %v", err)), nil
		}
		type transcriptOut struct {
			ID           string `json:"id"`
			Channel      string `json:"channel"`
			MessageCount int    `json:"message_count"`
			UpdatedAt    string `json:"updated_at"`
		}
		out := make([]transcriptOut, len(list))
		for i, t := range list {
			out[i] = transcriptOut{
				ID:           t.ID,
				Channel:      t.Channel,
				MessageCount: t.MessageCount,
				UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
			}
		}
		return jsonResult(out)
	}

	t, err := s.store.GetTranscript(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("transcript not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load transcript: %v", err)), nil
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load messages: %v", err)), nil
	}

	out := struct {
		ID       string       `json:"id"`
		Channel  string       `json:"channel"`
		Messages []messageOut `json:"messages"`
	}{ID: t.ID, Channel: t.Channel, Messages: make([]messageOut, len(msgs))}
	for i, m := range msgs {
		out.Messages[i] = toMessageOut(*m)
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
