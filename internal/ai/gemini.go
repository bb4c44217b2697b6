package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/pkg/logger"
	"github.com/linkedin-autoposter/pkg/ratelimit"
)

// GeminiClient calls the Gemini generateContent REST endpoint
type GeminiClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	apiKey      string
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient creates a Gemini client
func NewGeminiClient(cfg config.GeminiConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *GeminiClient {
	return &GeminiClient{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		rateLimiter: limiter,
		log:         log.WithComponent("gemini"),
	}
}

// Complete sends the prompts to Gemini and returns the first candidate's text
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterGenerator); err != nil {
			return "", fmt.Errorf("rate limit error: %w", err)
		}
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userMessage}}}},
	}
	if systemPrompt != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// kept out of the URL, transport errors quote it
	req.Header.Set("x-goog-api-key", c.apiKey)

	c.log.Debug().Str("model", c.model).Msg("Sending request to Gemini")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apierr.FromTransport(apierr.StageGenerate, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.FromTransport(apierr.StageGenerate, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Gemini API error")
		return "", apierr.FromStatus(apierr.StageGenerate, resp.StatusCode, string(body))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apierr.Wrap(apierr.StageGenerate, apierr.KindMalformedResponse, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", apierr.New(apierr.StageGenerate, apierr.KindMalformedResponse, "response has no candidates")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", apierr.New(apierr.StageGenerate, apierr.KindMalformedResponse, "response text is empty")
	}
	return text, nil
}

// NewCompleter builds the completer for the configured provider
func NewCompleter(cfg *config.Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) (Completer, error) {
	switch cfg.Generator.Provider {
	case config.ProviderAnthropic:
		return NewClient(cfg.Anthropic, limiter, log), nil
	case config.ProviderGemini:
		return NewGeminiClient(cfg.Gemini, limiter, log), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Generator.Provider)
	}
}
