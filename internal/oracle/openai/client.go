// Package openai implements the scoring oracle using the OpenAI chat
// completions API. The signal engine treats this collaborator as entirely
// optional: any transport or parse failure surfaces as an error so the
// caller can fall back to its deterministic heuristic.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/crypmancer/defi-prediction-aggregator/internal/domain"
)

const systemPrompt = "You are an expert prediction market analyst. " +
	"Analyze markets objectively and provide confidence scores based on data."

// Config holds the oracle client parameters.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls the chat completions endpoint and decodes the structured
// analysis the model is asked to produce.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates an oracle client. The timeout bounds the whole call so a
// hung oracle can never block analysis indefinitely.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// rawAnalysis is the strict JSON shape the model is asked to return.
// Confidence and ExpectedValue are on a 0-100 scale.
type rawAnalysis struct {
	Confidence     *float64 `json:"confidence"`
	Recommendation string   `json:"recommendation"`
	Reasoning      string   `json:"reasoning"`
	RiskLevel      string   `json:"riskLevel"`
	ExpectedValue  *float64 `json:"expectedValue"`
}

// Analyze asks the model for a structured analysis of the market. Errors are
// wrapped with domain.ErrUpstream; the caller decides the fallback.
func (c *Client) Analyze(ctx context.Context, m domain.Market) (domain.AnalysisResult, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(m)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: status %d: %s",
			domain.ErrUpstream, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("openai: read body: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: decode response: %v", domain.ErrUpstream, err)
	}
	if len(chat.Choices) == 0 {
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: empty choices", domain.ErrUpstream)
	}

	return ParseAnalysis(chat.Choices[0].Message.Content)
}

// buildPrompt renders the market into the structured analysis prompt. Prices
// are formatted as percentages from their basis-point representation.
func buildPrompt(m domain.Market) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this prediction market:\n\n")
	fmt.Fprintf(&b, "Question: %s\n", m.Question)
	fmt.Fprintf(&b, "Platform: %s\n", m.Platform)
	fmt.Fprintf(&b, "Current Yes Price: %.2f%%\n", float64(m.YesPrice)/100)
	fmt.Fprintf(&b, "Current No Price: %.2f%%\n", float64(m.NoPrice)/100)
	fmt.Fprintf(&b, "Total Volume: %.0f\n", m.TotalVolume)
	fmt.Fprintf(&b, "End Time: %s\n\n", time.Unix(m.EndTime, 0).UTC().Format(time.RFC3339))
	b.WriteString(`Provide:
1. Confidence score (0-100) for the "yes" outcome
2. Recommendation: "yes", "no", or "neutral"
3. Brief reasoning (2-3 sentences)
4. Risk level: "low", "medium", or "high"
5. Expected value estimate (0-100)

Format your response as JSON:
{
  "confidence": <number 0-100>,
  "recommendation": "<yes|no|neutral>",
  "reasoning": "<text>",
  "riskLevel": "<low|medium|high>",
  "expectedValue": <number 0-100>
}`)
	return b.String()
}

// ParseAnalysis extracts and validates the JSON analysis object from the
// model's free-text reply. It is a strict two-stage decode: locate the JSON
// object, decode it, then verify shape and ranges. Any failure returns an
// ErrUpstream-wrapped error and no partial result.
func ParseAnalysis(text string) (domain.AnalysisResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: no JSON object in reply", domain.ErrUpstream)
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: decode analysis: %v", domain.ErrUpstream, err)
	}

	if raw.Confidence == nil || *raw.Confidence < 0 || *raw.Confidence > 100 {
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: confidence out of range", domain.ErrUpstream)
	}

	rec := domain.Recommendation(strings.ToLower(raw.Recommendation))
	switch rec {
	case domain.RecommendationYes, domain.RecommendationNo, domain.RecommendationNeutral:
	default:
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: bad recommendation %q", domain.ErrUpstream, raw.Recommendation)
	}

	risk := domain.RiskLevel(strings.ToLower(raw.RiskLevel))
	switch risk {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
	default:
		return domain.AnalysisResult{}, fmt.Errorf("openai: %w: bad risk level %q", domain.ErrUpstream, raw.RiskLevel)
	}

	var expected float64
	if raw.ExpectedValue != nil {
		expected = *raw.ExpectedValue
	}

	return domain.AnalysisResult{
		// The model scores 0-100; the engine works in basis points.
		Confidence:     int64(math.Round(*raw.Confidence * 100)),
		Recommendation: rec,
		Reasoning:      raw.Reasoning,
		RiskLevel:      risk,
		ExpectedValue:  expected,
	}, nil
}
