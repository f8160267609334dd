package newsscan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// BedrockAPI is the subset of *bedrockruntime.Client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

const classifyPrompt = `You are screening a local news article for commercial relocation and growth signals.

Headline: %s
Snippet: %s
Source: %s

Signals include relocations, expansions, new facilities, new businesses, construction or development permits, commercial real estate deals, closures and large hiring events.

If the article IS a signal, answer in exactly this format:
SIGNAL
type: <one of: %s>
company: <company name, or Unknown>
city: <city, or %s>

Otherwise answer with exactly:
NO_SIGNAL`

// BedrockClassifier asks a Bedrock-hosted Claude model for a verdict. The
// keyword rules still gate which articles are sent, and supply the type
// list offered to the model.
type BedrockClassifier struct {
	client  BedrockAPI
	modelID string
	rules   KeywordRules
	log     *logger.Logger
}

func NewBedrockClassifier(client BedrockAPI, modelID string, rules KeywordRules) *BedrockClassifier {
	return &BedrockClassifier{
		client:  client,
		modelID: modelID,
		rules:   rules,
		log:     logger.With("component", "bedrock-classifier"),
	}
}

func (b *BedrockClassifier) Classify(ctx context.Context, a Article) (Classification, bool, error) {
	fallback := b.rules.ClassifyText(a.Headline + " " + a.Snippet)
	if fallback == "" {
		return Classification{}, false, nil
	}

	types := b.rules.SignalTypes()
	snippet := a.Snippet
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	city := a.City
	if city == "" {
		city = "Unknown"
	}
	req := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        300,
		Temperature:      0.1,
		Messages: []bedrockMessage{{
			Role: "user",
			Content: []bedrockContentBlock{{
				Type: "text",
				Text: fmt.Sprintf(classifyPrompt, a.Headline, snippet, a.Source, strings.Join(types, ", "), city),
			}},
		}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Classification{}, false, fmt.Errorf("marshal bedrock request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Classification{}, false, fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return Classification{}, false, fmt.Errorf("parse bedrock response: %w", err)
	}
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	c, ok := parseVerdict(text.String(), types, fallback)
	if !ok {
		b.log.Debug("article rejected by model", "url", a.URL)
		return Classification{}, false, nil
	}
	if c.City == "" {
		c.City = a.City
	}
	return c, true, nil
}
