package runtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/agentd-ai/agentd/pkg/types"
)

func TestSchemaFromJSON(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "a path"},
			"limit": {"type": "integer"},
			"mode": {"type": "string", "enum": ["fast", "slow"]},
			"tags": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["path"]
	}`)

	schema, err := schemaFromJSON(raw)
	require.NoError(t, err)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"path"}, schema.Required)

	require.Contains(t, schema.Properties, "path")
	assert.Equal(t, genai.TypeString, schema.Properties["path"].Type)
	assert.Equal(t, "a path", schema.Properties["path"].Description)
	assert.Equal(t, genai.TypeInteger, schema.Properties["limit"].Type)
	assert.Equal(t, []string{"fast", "slow"}, schema.Properties["mode"].Enum)

	require.NotNil(t, schema.Properties["tags"].Items)
	assert.Equal(t, genai.TypeString, schema.Properties["tags"].Items.Type)
}

func TestSchemaFromJSONEmpty(t *testing.T) {
	schema, err := schemaFromJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, schema)
}

func TestBuiltinSchemasConvert(t *testing.T) {
	decls, err := functionDeclarations(BuiltinTools())
	require.NoError(t, err)
	require.Len(t, decls, 2)
	for _, d := range decls {
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Description)
		require.NotNil(t, d.Parameters)
		assert.Equal(t, genai.TypeObject, d.Parameters.Type)
	}
}

func TestTurnToContent(t *testing.T) {
	turn := &types.Turn{
		Role: types.RoleModel,
		Parts: []types.Part{
			types.NewTextPart("calling a tool"),
			&types.FunctionCallPart{Kind: "functionCall", CallID: "c1", Name: "read_file", Args: map[string]any{"path": "x"}},
		},
	}

	content := turnToContent(turn)
	require.NotNil(t, content)
	assert.Equal(t, "model", content.Role)
	require.Len(t, content.Parts, 2)
	assert.Equal(t, "calling a tool", content.Parts[0].Text)
	require.NotNil(t, content.Parts[1].FunctionCall)
	assert.Equal(t, "read_file", content.Parts[1].FunctionCall.Name)
}

func TestTurnToContentFunctionResponse(t *testing.T) {
	turn := &types.Turn{
		Role: types.RoleUser,
		Parts: []types.Part{
			&types.FunctionResponsePart{
				Kind:     "functionResponse",
				CallID:   "c1",
				Name:     "read_file",
				Response: map[string]any{"output": "data"},
			},
		},
	}

	content := turnToContent(turn)
	require.NotNil(t, content)
	assert.Equal(t, "user", content.Role)
	require.Len(t, content.Parts, 1)
	require.NotNil(t, content.Parts[0].FunctionResponse)
	assert.Equal(t, "data", content.Parts[0].FunctionResponse.Response["output"])
}

func TestTurnToContentSkipsEmptyTurns(t *testing.T) {
	assert.Nil(t, turnToContent(&types.Turn{Role: types.RoleUser}))
}

func TestStreamSendStopsAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := &geminiStream{ctx: ctx, events: make(chan streamItem), cancel: cancel}

	require.NoError(t, stream.Close())
	assert.False(t, stream.send(ContentDelta{Text: "late"}), "producer keeps writing after close")
}
