package gemini

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/forPelevin/nledit/internal/domain/planner"
)

func TestToSchema_PlannerFunction(t *testing.T) {
	s, err := toSchema(planner.Schema().Parameters)
	require.NoError(t, err)
	require.Equal(t, genai.TypeObject, s.Type)
	require.Equal(t, []string{"action", "reason"}, s.Required)
	require.Len(t, s.Properties, 6)
	require.Equal(t, genai.TypeString, s.Properties["action"].Type)
	require.Equal(t, []string{"cut", "volume", "zoom", "caption"}, s.Properties["action"].Enum)
	require.Equal(t, genai.TypeNumber, s.Properties["start_sec"].Type)
}

func TestToSchema_Rejects(t *testing.T) {
	_, err := toSchema(map[string]any{"type": "tuple"})
	require.Error(t, err)

	_, err = toSchema(map[string]any{"type": "object", "properties": map[string]any{"x": 3}})
	require.Error(t, err)

	_, err = toSchema(map[string]any{"type": "string", "enum": []any{"a", 1}})
	require.Error(t, err)
}
