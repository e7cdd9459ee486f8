// Package storetest provides an in-memory fake of the GitHub contents API
// for tests: GET/PUT of base64 file contents with sha-based compare-and-swap,
// plus hooks for injecting conflicts.
package storetest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

type file struct {
	content []byte
	sha     string
}

// Server is a fake contents API backed by an in-memory path→file map.
type Server struct {
	mu       sync.Mutex
	files    map[string]file
	puts     int
	failPuts int
	failCode int

	HTTP *httptest.Server
}

// NewServer starts the fake. Callers must Close it.
func NewServer() *Server {
	s := &Server{files: make(map[string]file)}
	s.HTTP = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Close shuts the underlying HTTP server down.
func (s *Server) Close() { s.HTTP.Close() }

// URL returns the base URL to point a store.Client at.
func (s *Server) URL() string { return s.HTTP.URL }

// Seed stores content at path without going through HTTP.
func (s *Server) Seed(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = file{content: content, sha: shaOf(content)}
}

// Content returns the current bytes at path, or nil when absent.
func (s *Server) Content(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		return nil
	}
	return append([]byte(nil), f.content...)
}

// PutCount returns how many PUT requests have been received.
func (s *Server) PutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// FailNextPuts makes the next n PUT requests fail with the given status
// without touching stored state. Used to force version conflicts.
func (s *Server) FailNextPuts(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts = n
	s.failCode = status
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	const prefix = "/repos/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	// /repos/{owner}/{repo}/contents/{path...}
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, prefix), "/", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "contents/") {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(parts[2], "contents/")

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, path)
	case http.MethodPut:
		s.handlePut(w, r, path)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"content": base64.StdEncoding.EncodeToString(f.content),
		"sha":     f.sha,
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, path string) {
	var req struct {
		Message string `json:"message"`
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failPuts > 0 {
		s.failPuts--
		w.WriteHeader(s.failCode)
		return
	}

	existing, ok := s.files[path]
	if ok && req.SHA == "" {
		// Create-only write on an existing path.
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}
	if ok && req.SHA != existing.sha {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if !ok && req.SHA != "" {
		w.WriteHeader(http.StatusConflict)
		return
	}

	f := file{content: content, sha: shaOf(content)}
	s.files[path] = f
	status := http.StatusOK
	if !ok {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"content": map[string]string{"sha": f.sha},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func shaOf(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}
