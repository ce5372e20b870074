package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/gwerr"
)

func boolPtr(b bool) *bool { return &b }

func TestMerge_NilOverridesKeepAdapterDeclaration(t *testing.T) {
	static := Set{Streaming: true, ToolCalls: true}
	merged := Merge(static, Overrides{})
	assert.Equal(t, static, merged)
}

func TestMerge_OverridesWin(t *testing.T) {
	static := Set{Streaming: true, ToolCalls: true, ResumableSafe: true}
	merged := Merge(static, Overrides{
		ToolCalls:     boolPtr(false),
		Vision:        boolPtr(true),
		ResumableSafe: boolPtr(false),
	})

	assert.True(t, merged.Streaming)
	assert.False(t, merged.ToolCalls)
	assert.True(t, merged.Vision)
	assert.False(t, merged.ResumableSafe)
}

func TestCheck_NamesMissingFeature(t *testing.T) {
	req := &canonical.Request{
		Tools: []canonical.ToolDefinition{{Name: "search"}},
	}
	err := Check("b1", Set{Streaming: true}, req)
	require.Error(t, err)

	ge, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindUnsupportedCapability, ge.Kind)
	assert.Equal(t, "b1", ge.BackendID)
	assert.Contains(t, err.Error(), "tool_calls")
}

func TestCheck_StreamingAndVision(t *testing.T) {
	stream := &canonical.Request{Stream: true}
	assert.Error(t, Check("b", Set{}, stream))
	assert.NoError(t, Check("b", Set{Streaming: true}, stream))

	vision := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Parts: []canonical.ContentPart{canonical.ImagePart("https://x/img.png")}},
		},
	}
	err := Check("b", Set{}, vision)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision")
}

func TestCheck_JSONOutput(t *testing.T) {
	req := &canonical.Request{OutputMode: canonical.OutputModeJSON}
	assert.Error(t, Check("b", Set{}, req))
	assert.NoError(t, Check("b", Set{JSONOutput: true}, req))
}

func TestCheck_RequiredToolChoiceCountsAsTools(t *testing.T) {
	req := &canonical.Request{ToolChoice: canonical.ToolChoiceRequired}
	err := Check("b", Set{}, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool_calls")
}
