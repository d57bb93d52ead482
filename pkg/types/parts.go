package types

import (
	"encoding/json"
	"fmt"
)

// Part is one component of a turn.
type Part interface {
	PartKind() string
}

// TextPart carries plain text.
type TextPart struct {
	Kind string `json:"kind"` // always "text"
	Text string `json:"text"`
}

func (p *TextPart) PartKind() string { return "text" }

// NewTextPart builds a text part.
func NewTextPart(text string) *TextPart {
	return &TextPart{Kind: "text", Text: text}
}

// BlobPart carries inline media, base64-encoded on the wire.
type BlobPart struct {
	Kind     string `json:"kind"` // always "blob"
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

func (p *BlobPart) PartKind() string { return "blob" }

// FunctionCallPart is a tool invocation requested by the model.
type FunctionCallPart struct {
	Kind   string         `json:"kind"` // always "functionCall"
	CallID string         `json:"callId"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
}

func (p *FunctionCallPart) PartKind() string { return "functionCall" }

// FunctionResponsePart carries the outcome of a tool invocation back to
// the model. The response map uses "output" for success and "error" for
// failure or rejection.
type FunctionResponsePart struct {
	Kind     string         `json:"kind"` // always "functionResponse"
	CallID   string         `json:"callId"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

func (p *FunctionResponsePart) PartKind() string { return "functionResponse" }

// UnmarshalPart decodes a JSON part by its kind discriminator.
func UnmarshalPart(data []byte) (Part, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Kind {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "blob":
		var p BlobPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "functionCall":
		var p FunctionCallPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "functionResponse":
		var p FunctionResponsePart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown part kind %q", probe.Kind)
	}
}

// UnmarshalJSON decodes a turn, dispatching each part by kind.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var alias struct {
		ID        string            `json:"id"`
		Role      Role              `json:"role"`
		Parts     []json.RawMessage `json:"parts"`
		CreatedAt json.RawMessage   `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	t.ID = alias.ID
	t.Role = alias.Role
	t.Parts = nil
	for _, raw := range alias.Parts {
		part, err := UnmarshalPart(raw)
		if err != nil {
			return err
		}
		t.Parts = append(t.Parts, part)
	}
	if len(alias.CreatedAt) > 0 {
		if err := json.Unmarshal(alias.CreatedAt, &t.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}
