// Package fakeapi is an in-process stand-in for the upstream API, used by
// tests that drive the real client end to end.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"ofdl/pkg/logger"
	"ofdl/pkg/onlyfans"
	"ofdl/pkg/sign"
)

// RulesPath is where the server publishes Rules
const RulesPath = "/rules.json"

// Rules returns a fixed signing rule set
func Rules() *sign.Rules {
	return &sign.Rules{
		StaticParam:      "abcDEF123",
		Format:           "29141:{}:{:x}:66d2d4c9",
		ChecksumIndexes:  []int{3, 5, 7, 11, 13},
		ChecksumConstant: -500,
		AppToken:         "33d57ade8c02dbc5a333db99ff9ae26a",
	}
}

// File is a downloadable blob. A nonzero Truncate advertises the full
// length but sends only that many bytes, simulating a dropped connection.
type File struct {
	Body         []byte
	LastModified time.Time
	Truncate     int
}

// Data is everything the server knows. Edit it through Server.Edit.
type Data struct {
	Users         map[int64]onlyfans.User
	Subscriptions []int64
	Chats         []int64
	Posts         map[int64]onlyfans.Posts
	Archived      map[int64]onlyfans.Posts
	Messages      map[int64][]onlyfans.Message
	Stories       map[int64]onlyfans.Stories
	Categories    map[int64]onlyfans.HighlightCategories
	Highlights    map[int64]onlyfans.Highlight
	Files         map[string]File
	// Fail maps a request path to the status it answers with
	Fail map[string]int
}

// Server serves Data over HTTP and counts requests per path.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	data    Data
	hits    map[string]int
	headers map[string]http.Header
}

// New starts a server with empty data
func New() *Server {
	s := &Server{
		data: Data{
			Users:      make(map[int64]onlyfans.User),
			Posts:      make(map[int64]onlyfans.Posts),
			Archived:   make(map[int64]onlyfans.Posts),
			Messages:   make(map[int64][]onlyfans.Message),
			Stories:    make(map[int64]onlyfans.Stories),
			Categories: make(map[int64]onlyfans.HighlightCategories),
			Highlights: make(map[int64]onlyfans.Highlight),
			Files:      make(map[string]File),
			Fail:       make(map[string]int),
		},
		hits:    make(map[string]int),
		headers: make(map[string]http.Header),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Edit runs fn with exclusive access to the data
func (s *Server) Edit(fn func(d *Data)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
}

// Hits returns how many requests path received
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// LastHeader returns the headers of the latest request to path
func (s *Server) LastHeader(path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[path]
}

// RulesURL returns the URL Rules is served at
func (s *Server) RulesURL() string {
	return s.URL + RulesPath
}

// FileURL returns the URL a File registered under name is served at
func (s *Server) FileURL(name string) string {
	return s.URL + "/files/" + name
}

// NewClient returns an API client signed with Rules and rooted at s.
func (s *Server) NewClient(log logger.Logger) *onlyfans.Client {
	signer := sign.NewSigner(Rules(), "sess=test", "test-agent", "xbc")
	return onlyfans.NewClient(s.Client(), signer, onlyfans.WithBaseURL(s.URL), onlyfans.WithLogger(log))
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[r.URL.Path]++
	s.headers[r.URL.Path] = r.Header.Clone()

	if code, ok := s.data.Fail[r.URL.Path]; ok {
		w.WriteHeader(code)
		return
	}

	if r.URL.Path == RulesPath {
		writeJSON(w, Rules())
		return
	}

	if name, ok := strings.CutPrefix(r.URL.Path, "/files/"); ok {
		s.serveFile(w, name)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api2/v2/"), "/")
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	switch {
	case match(parts, "subscriptions", "subscribes"):
		list, more := window(s.users(s.data.Subscriptions), offset, limit)
		writeJSON(w, onlyfans.Page[onlyfans.User]{List: list, HasMore: more})
	case match(parts, "chats"):
		ids, more := window(s.data.Chats, offset, limit)
		chats := make([]onlyfans.Chat, len(ids))
		for i, id := range ids {
			chats[i] = onlyfans.Chat{WithUser: onlyfans.User{ID: id}}
		}
		writeJSON(w, onlyfans.CursorPage[onlyfans.Chat]{List: chats, HasMore: more, NextOffset: offset + len(ids)})
	case match(parts, "users", "list"):
		out := make(map[string]onlyfans.User)
		for _, raw := range q["x[]"] {
			id, _ := strconv.ParseInt(raw, 10, 64)
			if u, ok := s.data.Users[id]; ok {
				out[raw] = u
			}
		}
		writeJSON(w, out)
	case match(parts, "users", "*"):
		if u, ok := s.user(parts[1]); ok {
			writeJSON(w, u)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case match(parts, "users", "*", "posts"):
		list, _ := window(s.data.Posts[id(parts[1])], offset, limit)
		writeJSON(w, list)
	case match(parts, "users", "*", "posts", "archived"):
		list, _ := window(s.data.Archived[id(parts[1])], offset, limit)
		writeJSON(w, list)
	case match(parts, "users", "*", "stories"):
		writeJSON(w, s.data.Stories[id(parts[1])])
	case match(parts, "users", "*", "stories", "highlights"):
		list, _ := window(s.data.Categories[id(parts[1])], offset, limit)
		writeJSON(w, list)
	case match(parts, "stories", "highlights", "*"):
		if h, ok := s.data.Highlights[id(parts[2])]; ok {
			writeJSON(w, h)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case match(parts, "chats", "*", "messages"):
		list, more := window(s.data.Messages[id(parts[1])], offset, limit)
		writeJSON(w, onlyfans.Page[onlyfans.Message]{List: list, HasMore: more})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) serveFile(w http.ResponseWriter, name string) {
	f, ok := s.data.Files[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !f.LastModified.IsZero() {
		w.Header().Set("Last-Modified", f.LastModified.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Body)))
	body := f.Body
	if f.Truncate > 0 && f.Truncate < len(body) {
		body = body[:f.Truncate]
	}
	_, _ = w.Write(body)
}

func (s *Server) user(key string) (onlyfans.User, bool) {
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		u, ok := s.data.Users[n]
		return u, ok
	}
	for _, u := range s.data.Users {
		if u.Username == key {
			return u, true
		}
	}
	return onlyfans.User{}, false
}

func (s *Server) users(ids []int64) []onlyfans.User {
	out := make([]onlyfans.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.data.Users[id])
	}
	return out
}

// match compares path segments against a pattern where "*" matches any
// single segment.
func match(parts []string, pattern ...string) bool {
	if len(parts) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p != "*" && p != parts[i] {
			return false
		}
	}
	return true
}

func id(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// window slices one page out of list and reports whether more follow.
func window[T any](list []T, offset, limit int) ([]T, bool) {
	if limit <= 0 {
		limit = len(list)
	}
	if offset >= len(list) {
		return []T{}, false
	}
	end := min(offset+limit, len(list))
	return list[offset:end], end < len(list)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
