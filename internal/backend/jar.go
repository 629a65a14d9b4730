package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
)

// CookieStore persists cookies between process runs.
type CookieStore interface {
	SaveCookies(ctx context.Context, rawURL string, cookies []*http.Cookie) error
	LoadCookies(ctx context.Context) (map[string][]*http.Cookie, error)
	ClearCookies(ctx context.Context) error
}

// PersistentJar is an http.CookieJar whose contents survive restarts, the
// way a browser keeps its cookies across page reloads.
type PersistentJar struct {
	mu     sync.Mutex
	jar    *cookiejar.Jar
	store  CookieStore
	logger *slog.Logger
}

// NewPersistentJar creates a jar and loads previously saved cookies.
func NewPersistentJar(ctx context.Context, store CookieStore, logger *slog.Logger) (*PersistentJar, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	saved, err := store.LoadCookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	for rawURL, cookies := range saved {
		u, err := url.Parse(rawURL)
		if err != nil {
			logger.Warn("skipping stored cookies with bad url", "url", rawURL, "error", err)
			continue
		}
		jar.SetCookies(u, cookies)
	}
	return &PersistentJar{jar: jar, store: store, logger: logger}, nil
}

// SetCookies implements http.CookieJar and writes the cookies through to the store.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	jar := j.jar
	j.mu.Unlock()
	jar.SetCookies(u, cookies)

	// Stored under the origin with an explicit path so a cookie set from
	// /api/auth/signin and one from /api/auth/signup share a row.
	origin := u.Scheme + "://" + u.Host
	stored := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cc := *c
		if cc.Path == "" || !strings.HasPrefix(cc.Path, "/") {
			cc.Path = defaultPath(u.Path)
		}
		stored = append(stored, &cc)
	}
	if err := j.store.SaveCookies(context.Background(), origin, stored); err != nil {
		j.logger.Warn("failed to persist cookies", "host", u.Host, "error", err)
	}
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Clear forgets every cookie, in memory and on disk.
func (j *PersistentJar) Clear(ctx context.Context) error {
	fresh, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()
	return j.store.ClearCookies(ctx)
}

// defaultPath is the RFC 6265 default-path of a request path.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}
