package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "Current price: "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "$150.25"},
		},
	}
	assert.Equal(t, "Current price: $150.25", resp.Text())

	empty := &MessageResponse{}
	assert.Empty(t, empty.Text())
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}
	p := Pricing{InputPerMTok: 3.00, OutputPerMTok: 15.00}

	assert.InDelta(t, 3.00+7.50, usage.EstimateCost(p), 0.001)
	assert.Zero(t, TokenUsage{}.EstimateCost(p))
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "give me a snapshot for AAPL"},
		{Role: "assistant", Content: "Current price: $150.25"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
}

func TestToSDKMessages_UnknownRoleDefaultsToUser(t *testing.T) {
	msgs := toSDKMessages([]Message{{Role: "system", Content: "x"}})
	require.Len(t, msgs, 1)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
}

func TestFromSDKMessage(t *testing.T) {
	msg := &sdk.Message{
		ID:         "msg_123",
		Model:      "claude-sonnet-4-5-20250929",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "hello"},
		},
		Usage: sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}

	resp := fromSDKMessage(msg)
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)
}

func TestNewClientLimiter(t *testing.T) {
	unlimited := NewClient("key", 0).(*sdkClient)
	assert.Nil(t, unlimited.limiter)

	limited := NewClient("key", 2.0).(*sdkClient)
	require.NotNil(t, limited.limiter)
	assert.InDelta(t, 2.0, float64(limited.limiter.Limit()), 0.001)
}
