// Package remotetest provides an in-process fake of the repository contents
// API for tests.
package remotetest

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/plansync/internal/checksum"
)

// Server serves GET/PUT on /repos/{owner}/{repo}/contents/* with sha
// preconditions, backed by memory.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	files     map[string][]byte
	token     string
	failNext  []failure
	gets      int
	puts      int
	putBodies []PutBody
}

// PutBody is a decoded PUT request.
type PutBody struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type failure struct {
	status int
	body   string
	header map[string]string
}

// New starts a fake server. When token is non-empty every request must carry
// "Authorization: token <token>".
func New(t *testing.T, token string) *Server {
	t.Helper()
	s := &Server{files: make(map[string][]byte), token: token}
	r := chi.NewRouter()
	r.Get("/repos/{owner}/{repo}", s.handleRepo)
	r.Get("/repos/{owner}/{repo}/contents/*", s.handleGet)
	r.Put("/repos/{owner}/{repo}/contents/*", s.handlePut)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetFile stores raw content at path, as if another client had written it.
func (s *Server) SetFile(path string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = data
	return checksum.GitBlob(data)
}

// File returns the stored bytes at path.
func (s *Server) File(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[path]
	return b, ok
}

// SHA returns the current revision of path.
func (s *Server) SHA(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.files[path]; ok {
		return checksum.GitBlob(b)
	}
	return ""
}

// FailNext makes the next request answer with status and body.
func (s *Server) FailNext(status int, body string, header map[string]string) {
	s.mu.Lock()
	s.failNext = append(s.failNext, failure{status: status, body: body, header: header})
	s.mu.Unlock()
}

// Counts returns how many GET and PUT content requests were served.
func (s *Server) Counts() (gets, puts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.puts
}

// Puts returns every decoded PUT body received so far.
func (s *Server) Puts() []PutBody {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PutBody(nil), s.putBodies...)
}

// SetToken changes the accepted credential.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// gate applies queued failures and the auth check. Caller holds s.mu.
func (s *Server) gate(w http.ResponseWriter, r *http.Request) bool {
	if len(s.failNext) > 0 {
		f := s.failNext[0]
		s.failNext = s.failNext[1:]
		for k, v := range f.header {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
		return false
	}
	if s.token != "" && r.Header.Get("Authorization") != "token "+s.token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return false
	}
	return true
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gate(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"full_name": chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if !s.gate(w, r) {
		return
	}
	p := chi.URLParam(r, "*")
	data, ok := s.files[p]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	// Wrap like the real API does.
	enc := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for len(enc) > 60 {
		b.WriteString(enc[:60] + "\n")
		enc = enc[60:]
	}
	b.WriteString(enc)
	writeJSON(w, http.StatusOK, map[string]string{
		"content":  b.String(),
		"encoding": "base64",
		"sha":      checksum.GitBlob(data),
	})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if !s.gate(w, r) {
		return
	}
	var body PutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return
	}
	s.putBodies = append(s.putBodies, body)
	p := chi.URLParam(r, "*")
	cur, exists := s.files[p]
	switch {
	case exists && body.SHA == "":
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": `Invalid request. "sha" wasn't supplied.`})
		return
	case exists && body.SHA != checksum.GitBlob(cur):
		writeJSON(w, http.StatusConflict, map[string]string{"message": p + " does not match " + body.SHA})
		return
	case !exists && body.SHA != "":
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "content is not valid Base64"})
		return
	}
	s.files[p] = data
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"content": map[string]string{"path": p, "sha": checksum.GitBlob(data)}})
}
