package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/pkg/types"
)

// GeminiRuntime drives conversations against the Gemini API.
type GeminiRuntime struct {
	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiRuntime creates an unauthenticated runtime. RefreshAuth must
// succeed before NewConversation is called.
func NewGeminiRuntime() *GeminiRuntime {
	return &GeminiRuntime{}
}

// RefreshAuth reads the API key from the environment and opens a client.
func (r *GeminiRuntime) RefreshAuth(ctx context.Context) error {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key == "" {
		return fmt.Errorf("no API key: set GEMINI_API_KEY or GOOGLE_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()
	return nil
}

// NewConversation opens a conversation bound to cfg.Model.
func (r *GeminiRuntime) NewConversation(ctx context.Context, cfg SessionConfig) (Conversation, error) {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("runtime is not authenticated")
	}

	return &geminiConversation{
		client: client,
		model:  cfg.Model,
		system: cfg.SystemContext,
		tools:  cfg.Tools,
		log:    logging.Component("runtime.gemini"),
	}, nil
}

type geminiConversation struct {
	client *genai.Client
	tools  *Registry
	system string
	log    zerolog.Logger

	mu      sync.Mutex
	model   string
	history []*genai.Content
}

func (c *geminiConversation) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

func (c *geminiConversation) SetModel(model string) {
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
}

func (c *geminiConversation) Rebind(history []*types.Turn) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		if content := turnToContent(turn); content != nil {
			contents = append(contents, content)
		}
	}
	c.mu.Lock()
	c.history = contents
	c.mu.Unlock()
}

func (c *geminiConversation) Close() error { return nil }

// SendTurn submits the mirrored history and streams back one round.
func (c *geminiConversation) SendTurn(ctx context.Context) (EventStream, error) {
	c.mu.Lock()
	model := c.model
	contents := make([]*genai.Content, len(c.history))
	copy(contents, c.history)
	c.mu.Unlock()

	if len(contents) == 0 {
		return nil, fmt.Errorf("conversation has no history to send")
	}

	config := &genai.GenerateContentConfig{}
	if c.system != "" {
		config.SystemInstruction = genai.NewContentFromText(c.system, genai.RoleUser)
	}
	if c.tools != nil {
		decls, err := functionDeclarations(c.tools)
		if err != nil {
			return nil, err
		}
		if len(decls) > 0 {
			config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := &geminiStream{
		ctx:    streamCtx,
		events: make(chan streamItem, 16),
		cancel: cancel,
	}

	go func() {
		defer close(stream.events)

		if !stream.send(StreamStarted{Model: model}) {
			return
		}

		var usage *types.Usage
		for resp, err := range c.client.Models.GenerateContentStream(streamCtx, model, contents, config) {
			if err != nil {
				c.log.Warn().Err(err).Str("model", model).Msg("stream failed")
				stream.fail(fmt.Errorf("gemini stream: %w", err))
				return
			}
			if resp.UsageMetadata != nil {
				usage = &types.Usage{
					PromptTokens: int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if !stream.emitPart(part) {
						return
					}
				}
			}
		}
		stream.send(TurnFinished{Usage: usage})
	}()

	return stream, nil
}

type streamItem struct {
	event Event
	err   error
}

type geminiStream struct {
	ctx    context.Context
	events chan streamItem
	cancel context.CancelFunc
	closed sync.Once
}

// send delivers an event to the consumer. Reports false once the stream
// is closed so the producer stops instead of filling a dead channel.
func (s *geminiStream) send(ev Event) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.events <- streamItem{event: ev}:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *geminiStream) fail(err error) {
	select {
	case s.events <- streamItem{err: err}:
	case <-s.ctx.Done():
	}
}

func (s *geminiStream) emitPart(part *genai.Part) bool {
	switch {
	case part.FunctionCall != nil:
		call := types.FunctionCallPart{
			Kind:   "functionCall",
			CallID: part.FunctionCall.ID,
			Name:   part.FunctionCall.Name,
			Args:   part.FunctionCall.Args,
		}
		return s.send(ToolCallRequest{Call: call})
	case part.Text != "":
		if part.Thought {
			return s.send(ThoughtDelta{Text: part.Text})
		}
		return s.send(ContentDelta{Text: part.Text})
	}
	return true
}

func (s *geminiStream) Recv() (Event, error) {
	item, ok := <-s.events
	if !ok {
		return nil, io.EOF
	}
	if item.err != nil {
		return nil, item.err
	}
	return item.event, nil
}

func (s *geminiStream) Close() error {
	s.closed.Do(s.cancel)
	return nil
}

// turnToContent converts a ledger turn to the wire representation. Turns
// with no convertible parts map to nil.
func turnToContent(turn *types.Turn) *genai.Content {
	role := genai.RoleUser
	if turn.Role == types.RoleModel {
		role = genai.RoleModel
	}

	var parts []*genai.Part
	for _, p := range turn.Parts {
		switch part := p.(type) {
		case *types.TextPart:
			parts = append(parts, &genai.Part{Text: part.Text})
		case *types.BlobPart:
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{
				MIMEType: part.MimeType,
				Data:     part.Data,
			}})
		case *types.FunctionCallPart:
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   part.CallID,
				Name: part.Name,
				Args: part.Args,
			}})
		case *types.FunctionResponsePart:
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       part.CallID,
				Name:     part.Name,
				Response: part.Response,
			}})
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &genai.Content{Role: string(role), Parts: parts}
}

func functionDeclarations(reg *Registry) ([]*genai.FunctionDeclaration, error) {
	var decls []*genai.FunctionDeclaration
	for _, tool := range reg.List() {
		schema, err := schemaFromJSON(tool.Parameters())
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name(), err)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  schema,
		})
	}
	return decls, nil
}

// schemaFromJSON converts a JSON-schema document to the wire schema type.
// Supports the subset the builtin tools use: object/array nesting, scalar
// types, descriptions, enums and required lists.
func schemaFromJSON(raw json.RawMessage) (*genai.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return schemaFromMap(doc), nil
}

func schemaFromMap(doc map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := doc["type"].(string); ok {
		switch t {
		case "object":
			schema.Type = genai.TypeObject
		case "array":
			schema.Type = genai.TypeArray
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		}
	}
	if desc, ok := doc["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := doc["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, sub := range props {
			if m, ok := sub.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(m)
			}
		}
	}
	if req, ok := doc["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := doc["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	if enum, ok := doc["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	return schema
}
