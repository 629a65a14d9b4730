// Package backendtest provides an in-memory NeoTutor backend for tests.
package backendtest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joescharf/neotutor/internal/models"
)

// SessionCookie is the name of the cookie carrying the server session.
const SessionCookie = "token"

// QueryFunc scripts the /query endpoint. It returns the HTTP status and the
// value encoded as the "message" field.
type QueryFunc func(userQuery string) (status int, message any)

type account struct {
	user     models.User
	password string
}

// Server is a fake backend. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	accounts  map[string]account
	sessions  map[string]string // token -> account name
	calls     map[string]int
	failures  map[string]int
	delay     map[string]time.Duration
	query     QueryFunc
	queries   []string
	history   []models.HistoryItem
	channel   models.Channel
	ingested  []string
	unblock   chan struct{}
	blockPath string
}

// New starts a fake backend. Close it with t.Cleanup(srv.Close).
func New() *Server {
	s := &Server{
		accounts: make(map[string]account),
		sessions: make(map[string]string),
		calls:    make(map[string]int),
		failures: make(map[string]int),
		delay:    make(map[string]time.Duration),
		channel:  models.Channel{Title: "Go Tutor", Icon: "https://example.com/logo.png"},
		query: func(q string) (int, any) {
			return http.StatusOK, map[string]any{"answer": "You asked: " + q}
		},
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.instrument)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.signUp)
		r.Post("/signin", s.signIn)
		r.Post("/signout", s.signOut)
		r.Get("/me", s.me)
	})
	r.Post("/query", s.handleQuery)
	r.Post("/generate-pdf", s.generatePDF)
	r.Get("/create-vectors", s.createVectors)
	r.Get("/history", s.listHistory)
	return r
}

// instrument counts calls and applies injected delays and failures.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		s.mu.Lock()
		s.calls[path]++
		status := s.failures[path]
		d := s.delay[path]
		var block chan struct{}
		if s.blockPath == path {
			block = s.unblock
		}
		s.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		if d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddUser registers an account directly.
func (s *Server) AddUser(u models.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[u.Name] = account{user: u, password: password}
}

// SetQuery replaces the /query script.
func (s *Server) SetQuery(fn QueryFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = fn
}

// AnswerWith makes /query always return message.
func (s *Server) AnswerWith(message any) {
	s.SetQuery(func(string) (int, any) { return http.StatusOK, message })
}

// Fail makes every request to path return status. Zero clears it.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = status
}

// Delay holds every request to path for d before answering.
func (s *Server) Delay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay[path] = d
}

// Block holds requests to path until the returned release func is called.
func (s *Server) Block(path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.blockPath = path
	s.unblock = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(ch)
			s.mu.Lock()
			s.blockPath = ""
			s.mu.Unlock()
		})
	}
}

// SetHistory sets the /history payload.
func (s *Server) SetHistory(items []models.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = items
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Queries returns the userQuery values received so far.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Ingested returns the playlist URLs sent to /generate-pdf.
func (s *Server) Ingested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ingested...)
}

// ActiveSessions returns the number of live server sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ExpireSessions invalidates every server session, as a server restart would.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]string)
}

// --- handlers ---

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		GitHubUsername string `json:"githubUsername"`
		Password       string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "name and password are required"})
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Name]; exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"message": "User already exists"})
		return
	}
	s.accounts[req.Name] = account{
		user:     models.User{Name: req.Name, GitHubUsername: req.GitHubUsername},
		password: req.Password,
	}
	token := s.startSessionLocked(req.Name)
	s.mu.Unlock()

	setSession(w, token)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Signed up"})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[req.Name]
	if !ok || acct.password != req.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	token := s.startSessionLocked(req.Name)
	s.mu.Unlock()

	setSession(w, token)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed in"})
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authenticated"})
		return
	}
	s.mu.Lock()
	name, ok := s.sessions[c.Value]
	acct := s.accounts[name]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acct.user})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserQuery string `json:"userQuery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.mu.Lock()
	s.queries = append(s.queries, req.UserQuery)
	fn := s.query
	s.mu.Unlock()

	status, message := fn(req.UserQuery)
	writeJSON(w, status, map[string]any{"message": message})
}

func (s *Server) generatePDF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelURL string `json:"channelUrl"`
		NoOfVideos int    `json:"noOfVideos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChannelURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "channelUrl is required"})
		return
	}
	s.mu.Lock()
	s.ingested = append(s.ingested, req.ChannelURL)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "videos": req.NoOfVideos})
}

func (s *Server) createVectors(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := s.history
	s.mu.Unlock()
	if items == nil {
		items = []models.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// startSessionLocked must be called with s.mu held.
func (s *Server) startSessionLocked(name string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)
	s.sessions[token] = name
	return token
}

func setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token, Path: "/", HttpOnly: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
