package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConverse struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (m *mockConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func converseTextOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(4),
			TotalTokens:  aws.Int32(14),
		},
	}
}

func TestBedrockCompleteBuildsConverseInput(t *testing.T) {
	mock := &mockConverse{output: converseTextOutput("  normalized text  ")}
	client := NewBedrockClient(mock)

	resp, err := client.Complete(context.Background(), Request{
		Model:       "anthropic.claude-3-haiku",
		System:      []string{"you are a normalizer"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "wah I wan see doctor lah"}},
		MaxTokens:   200,
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "normalized text", resp.Text)
	assert.Equal(t, string(brtypes.StopReasonEndTurn), resp.StopReason)
	assert.Equal(t, int32(14), resp.Usage.TotalTokens)

	require.NotNil(t, mock.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(mock.input.ModelId))
	require.Len(t, mock.input.System, 1)
	require.Len(t, mock.input.Messages, 1)
	require.NotNil(t, mock.input.InferenceConfig)
	assert.Equal(t, int32(200), aws.ToInt32(mock.input.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.1, float64(aws.ToFloat32(mock.input.InferenceConfig.Temperature)), 0.001)
}

func TestBedrockCompleteRequiresModel(t *testing.T) {
	client := NewBedrockClient(&mockConverse{output: converseTextOutput("hi")})

	_, err := client.Complete(context.Background(), Request{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hello"}},
	})
	assert.Error(t, err)
}

func TestBedrockCompleteWrapsTransportError(t *testing.T) {
	client := NewBedrockClient(&mockConverse{err: errors.New("throttled")})

	_, err := client.Complete(context.Background(), Request{
		Model:    "anthropic.claude-3-haiku",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hello"}},
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "throttled")
}

func TestBedrockCompleteRejectsEmptyOutput(t *testing.T) {
	mock := &mockConverse{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{Role: brtypes.ConversationRoleAssistant},
		},
	}}
	client := NewBedrockClient(mock)

	_, err := client.Complete(context.Background(), Request{
		Model:    "anthropic.claude-3-haiku",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hello"}},
	})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestBedrockCompleteRoutesSystemRoleMessages(t *testing.T) {
	mock := &mockConverse{output: converseTextOutput("ok")}
	client := NewBedrockClient(mock)

	_, err := client.Complete(context.Background(), Request{
		Model: "anthropic.claude-3-haiku",
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "be brief"},
			{Role: ChatRoleUser, Content: "hello"},
			{Role: ChatRoleAssistant, Content: "hi there"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, mock.input.System, 1)
	assert.Len(t, mock.input.Messages, 2)
}
