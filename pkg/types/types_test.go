package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnText(t *testing.T) {
	turn := &Turn{Parts: []Part{
		NewTextPart("hello "),
		&FunctionCallPart{Kind: "functionCall", Name: "x"},
		NewTextPart("world"),
	}}
	assert.Equal(t, "hello world", turn.Text())
}

func TestTurnHasFunctionCalls(t *testing.T) {
	assert.False(t, (&Turn{Parts: []Part{NewTextPart("x")}}).HasFunctionCalls())
	assert.True(t, (&Turn{Parts: []Part{
		NewTextPart("x"),
		&FunctionCallPart{Kind: "functionCall", Name: "y"},
	}}).HasFunctionCalls())
}

func TestUnmarshalPartDispatchesOnKind(t *testing.T) {
	part, err := UnmarshalPart([]byte(`{"kind":"functionCall","callId":"c1","name":"read_file","args":{"path":"x"}}`))
	require.NoError(t, err)

	call, ok := part.(*FunctionCallPart)
	require.True(t, ok)
	assert.Equal(t, "c1", call.CallID)
	assert.Equal(t, "read_file", call.Name)
	assert.Equal(t, "x", call.Args["path"])
}

func TestUnmarshalPartUnknownKind(t *testing.T) {
	_, err := UnmarshalPart([]byte(`{"kind":"hologram"}`))
	assert.Error(t, err)
}

func TestTurnJSONRoundTrip(t *testing.T) {
	original := &Turn{
		ID:   "t1",
		Role: RoleModel,
		Parts: []Part{
			NewTextPart("result"),
			&FunctionResponsePart{
				Kind:     "functionResponse",
				CallID:   "c1",
				Name:     "list_directory",
				Response: map[string]any{"output": "a.txt\n"},
			},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Turn
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Role, decoded.Role)
	require.Len(t, decoded.Parts, 2)
	assert.Equal(t, "result", decoded.Text())

	resp, ok := decoded.Parts[1].(*FunctionResponsePart)
	require.True(t, ok)
	assert.Equal(t, "c1", resp.CallID)
}

func TestUsageAdd(t *testing.T) {
	total := &Usage{}
	total.Add(Usage{PromptTokens: 10, OutputTokens: 5, TotalTokens: 15})
	total.Add(Usage{PromptTokens: 20, OutputTokens: 1, TotalTokens: 21})

	assert.Equal(t, 30, total.PromptTokens)
	assert.Equal(t, 6, total.OutputTokens)
	assert.Equal(t, 36, total.TotalTokens)
}
