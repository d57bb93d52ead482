package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentd-ai/agentd/internal/identity"
	"github.com/agentd-ai/agentd/internal/session"
	"github.com/agentd-ai/agentd/pkg/types"
)

// relayRecord is one NDJSON line of a streamed prompt.
type relayRecord struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"sessionId,omitempty"`
	Model     string         `json:"model,omitempty"`
	Text      string         `json:"text,omitempty"`
	CallID    string         `json:"callId,omitempty"`
	Name      string         `json:"name,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Usage     *types.Usage   `json:"usage,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// relay writes NDJSON records, flushing after every line so callers see
// progress as it happens.
type relay struct {
	enc     *json.Encoder
	flusher http.Flusher
}

func newRelay(w http.ResponseWriter) *relay {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	return &relay{enc: json.NewEncoder(w), flusher: flusher}
}

func (rl *relay) write(rec relayRecord) {
	if err := rl.enc.Encode(rec); err != nil {
		return
	}
	if rl.flusher != nil {
		rl.flusher.Flush()
	}
}

// sink maps driver events onto NDJSON records.
func (rl *relay) sink(ev session.StreamEvent) {
	switch e := ev.(type) {
	case session.ModelInfo:
		rl.write(relayRecord{Kind: "session", SessionID: e.SessionID, Model: e.Model})
	case session.TextDelta:
		rl.write(relayRecord{Kind: "delta", Text: e.Text})
	case session.ToolPendingInfo:
		rl.write(relayRecord{Kind: "tool_pending", CallID: e.CallID, Name: e.Name, Args: e.Args})
	case session.ToolResultInfo:
		rl.write(relayRecord{Kind: "tool_result", CallID: e.CallID, Name: e.Name, Error: e.Error})
	case session.TurnResult:
		rl.write(relayRecord{Kind: "result", Text: e.Text, Usage: e.Usage})
	}
}

func (rl *relay) writeError(err error) {
	code, _ := errorCode(err)
	rl.write(relayRecord{Kind: "error", Code: code, Message: err.Error()})
}

type promptRequest struct {
	sessionRef
	Text      string            `json:"text"`
	Images    []imageAttachment `json:"images,omitempty"`
	Stream    bool              `json:"stream"`
	Ephemeral bool              `json:"ephemeral"`
}

// imageAttachment is an inline image sent with a prompt, base64 on the
// wire.
type imageAttachment struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

func (req *promptRequest) attachments() []types.Part {
	if len(req.Images) == 0 {
		return nil
	}
	parts := make([]types.Part, 0, len(req.Images))
	for _, img := range req.Images {
		parts = append(parts, &types.BlobPart{
			Kind:     "blob",
			MimeType: img.MimeType,
			Data:     img.Data,
		})
	}
	return parts
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}
	path, ok := s.requireTrusted(w, req.Path)
	if !ok {
		return
	}

	if !req.Stream {
		outcome, err := s.store.Prompt(r.Context(), path, req.SessionID, req.Text, session.PromptOptions{
			Buffered:    true,
			Ephemeral:   req.Ephemeral,
			Attachments: req.attachments(),
		})
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusFromOutcome(sessionIDFor(path, req.SessionID), outcome))
		return
	}

	rl := newRelay(w)
	_, err := s.store.Prompt(r.Context(), path, req.SessionID, req.Text, session.PromptOptions{
		Ephemeral:   req.Ephemeral,
		Attachments: req.attachments(),
		Sink:        rl.sink,
	})
	if err != nil {
		rl.writeError(err)
	}
}

type fulfillRequest struct {
	sessionRef
	Decisions []session.Decision `json:"decisions"`
	Stream    bool               `json:"stream"`
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Decisions) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "decisions are required")
		return
	}
	path, ok := s.requireTrusted(w, req.Path)
	if !ok {
		return
	}

	if !req.Stream {
		outcome, err := s.store.Fulfill(r.Context(), path, req.SessionID, req.Decisions, session.PromptOptions{
			Buffered: true,
		})
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusFromOutcome(sessionIDFor(path, req.SessionID), outcome))
		return
	}

	rl := newRelay(w)
	_, err := s.store.Fulfill(r.Context(), path, req.SessionID, req.Decisions, session.PromptOptions{
		Sink: rl.sink,
	})
	if err != nil {
		rl.writeError(err)
	}
}

// sessionIDFor resolves the effective session id of a request.
func sessionIDFor(path, sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return identity.SessionID(path)
}
