package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/crimson-sun/winnow/internal/model"
)

const defaultOpenAIModel = "gpt-4o-mini"

const openAISystemPrompt = `You are an expert in log management and observability.
Generate sampling policies that balance cost and observability.

Rules:
1. Keep ERROR and CRITICAL at 1.0, always.
2. Sample repetitive INFO/DEBUG patterns aggressively (0.01-0.1).
3. Keep first occurrences of new patterns at 1.0.
4. Raise sampling during anomalies (anomaly_boost 2.0-5.0).`

func init() {
	Register("openai", func(s Settings) (Strategy, error) {
		return NewOpenAI(s)
	})
}

// OpenAI proposes policies through a chat completion requested in JSON mode.
// Any transport or decode failure surfaces as an error; the generator falls
// back to rules on its own.
type OpenAI struct {
	client *openai.Client
	model  string
	budget int
}

// NewOpenAI creates the strategy. The API key is required; model and token
// budget default when unset.
func NewOpenAI(s Settings) (*OpenAI, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai strategy requires an API key")
	}
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	o := &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  s.Model,
		budget: s.TokenBudget,
	}
	if o.model == "" {
		o.model = defaultOpenAIModel
	}
	if o.budget <= 0 {
		o.budget = defaultTokenBudget
	}
	return o, nil
}

func (*OpenAI) Name() string { return "openai" }

func (o *OpenAI) Propose(ctx context.Context, a Analysis) (Proposal, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openAISystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(a, o.budget)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Proposal{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Proposal{}, errors.New("openai returned no choices")
	}

	var body proposalJSON
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &body); err != nil {
		return Proposal{}, fmt.Errorf("decode openai proposal: %w", err)
	}
	if body.GlobalRate == nil && len(body.SeverityRates) == 0 && len(body.PatternRates) == 0 {
		return Proposal{}, errors.New("openai proposal carries no rates")
	}
	return body.toProposal(), nil
}

// proposalJSON is the wire shape the model is asked to produce. Pointer
// fields distinguish absent from zero so defaults can fill the gaps.
type proposalJSON struct {
	GlobalRate    *float64            `json:"global_rate"`
	SeverityRates model.SeverityRates `json:"severity_rates"`
	PatternRates  map[string]float64  `json:"pattern_rates"`
	AnomalyBoost  *float64            `json:"anomaly_boost"`
	Reasoning     string              `json:"reasoning"`
}

func (p proposalJSON) toProposal() Proposal {
	out := Proposal{
		GlobalRate:    1.0,
		SeverityRates: p.SeverityRates,
		PatternRates:  p.PatternRates,
		AnomalyBoost:  2.0,
		Reasoning:     p.Reasoning,
	}
	if p.GlobalRate != nil {
		out.GlobalRate = *p.GlobalRate
	}
	if p.AnomalyBoost != nil {
		out.AnomalyBoost = *p.AnomalyBoost
	}
	return out
}
