package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/agentd-ai/agentd/internal/session"
)

// Version is stamped at build time.
var Version = "dev"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// requireTrusted gates a project path on the trust list. Returns the
// cleaned absolute path, or writes a 403 and reports false.
func (s *Server) requireTrusted(w http.ResponseWriter, path string) (string, bool) {
	if path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid path")
		return "", false
	}
	abs = filepath.Clean(abs)
	if !s.trust.IsTrusted(abs) {
		writeError(w, http.StatusForbidden, ErrCodeNotTrusted,
			fmt.Sprintf("directory %q is not trusted", abs))
		return "", false
	}
	return abs, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return false
	}
	return true
}

type sessionRef struct {
	Path      string `json:"path"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionRef
	if !decodeBody(w, r, &req) {
		return
	}
	path, ok := s.requireTrusted(w, req.Path)
	if !ok {
		return
	}

	rec, err := s.store.GetOrCreate(path, req.SessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	s.store.StartAsync(rec)
	if err := s.store.EnsureReady(r.Context(), rec, s.global.ReadyTimeout); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Status(rec))
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requireTrusted(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	rec, err := s.store.Get(path, r.URL.Query().Get("sessionId"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Status(rec))
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requireTrusted(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	if err := s.store.Clear(path, r.URL.Query().Get("sessionId")); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleYoloGet(w http.ResponseWriter, r *http.Request) {
	path, ok := s.requireTrusted(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	rec, err := s.store.Get(path, r.URL.Query().Get("sessionId"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"yolo": rec.Yolo()})
}

func (s *Server) handleYoloSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		sessionRef
		Yolo bool `json:"yolo"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	path, ok := s.requireTrusted(w, req.Path)
	if !ok {
		return
	}
	rec, err := s.store.Get(path, req.SessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	rec.SetYolo(req.Yolo)
	writeJSON(w, http.StatusOK, map[string]bool{"yolo": req.Yolo})
}

func (s *Server) handleModelSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		sessionRef
		Model string `json:"model"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "model is required")
		return
	}
	path, ok := s.requireTrusted(w, req.Path)
	if !ok {
		return
	}
	rec, err := s.store.Get(path, req.SessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if err := s.store.SetModel(rec, req.Model); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"model": req.Model})
}

func (s *Server) handleTrustList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.trust.List())
}

func (s *Server) handleTrustAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid path")
		return
	}
	if err := s.trust.Trust(filepath.Clean(abs)); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.trust.List())
}

func (s *Server) handleTrustRevoke(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid path")
		return
	}
	if err := s.trust.Revoke(filepath.Clean(abs)); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.trust.List())
}

// statusFromOutcome shapes a buffered prompt or fulfill response.
func statusFromOutcome(sessionID string, outcome *session.Outcome) map[string]any {
	body := map[string]any{
		"sessionId": sessionID,
		"state":     outcome.State,
	}
	if outcome.State == session.StateCompleted {
		body["text"] = outcome.Text
		if outcome.Usage != nil {
			body["usage"] = outcome.Usage
		}
	}
	if len(outcome.Pending) > 0 {
		pending := make([]map[string]any, 0, len(outcome.Pending))
		for _, call := range outcome.Pending {
			pending = append(pending, map[string]any{
				"callId": call.CallID,
				"name":   call.Name,
				"args":   call.Args,
			})
		}
		body["pending"] = pending
	}
	return body
}
