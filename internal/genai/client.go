// Package genai is a thin client for the generative image model used for
// AI analysis and AI regeneration. It sends an image plus a prompt and
// gets back image bytes or text; nothing else is interpreted here.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultEndpoint      = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultModel         = "gemini-2.5-flash-image"
	DefaultAnalysisModel = "gemini-2.5-flash"

	maxErrorBody = 512
)

var (
	ErrNoAPIKey     = errors.New("genai: API key not configured")
	ErrNoCandidates = errors.New("genai: no response candidates returned")
)

// APIError is a non-200 answer from the model endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genai: API error (status %d): %s", e.Status, e.Body)
}

// BlockedError reports a prompt or answer refused by the model's filters.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("genai: content blocked: %s", e.Reason)
}

// Analysis is the structured description of an image.
type Analysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Generation is a model answer. Image is nil when the model only replied
// with text.
type Generation struct {
	Image    []byte
	MimeType string
	Text     string
	Model    string
}

// Client talks to a generateContent-style endpoint.
type Client struct {
	apiKey        string
	endpoint      string
	model         string
	analysisModel string
	client        *http.Client
	logger        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithAnalysisModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.analysisModel = model
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client; the endpoint and models default to the
// public generative language API.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		endpoint:      DefaultEndpoint,
		model:         DefaultModel,
		analysisModel: DefaultAnalysisModel,
		client:        &http.Client{Timeout: 120 * time.Second},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model is the generation model name.
func (c *Client) Model() string {
	return c.model
}

type request struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

const analysisPrompt = `Describe this photo for a personal photo library.
Answer with JSON only, shaped as {"description": string, "tags": [string]}.
The description is one or two sentences. Give at most eight short lowercase tags.`

// Analyze asks the analysis model for a description and tags.
func (c *Client) Analyze(ctx context.Context, image []byte, mimeType string) (*Analysis, error) {
	req := request{
		Contents: []content{{Parts: []part{
			{Text: analysisPrompt},
			{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
		}}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	}

	resp, err := c.generate(ctx, c.analysisModel, req)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(collectText(resp))
	text = stripCodeFence(text)

	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, fmt.Errorf("genai: decode analysis: %w", err)
	}
	return &analysis, nil
}

// Generate sends the image and prompt to the generation model.
func (c *Client) Generate(ctx context.Context, image []byte, mimeType, prompt string) (*Generation, error) {
	req := request{
		Contents: []content{{Parts: []part{
			{Text: prompt},
			{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
		}}},
		GenerationConfig: &generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}

	resp, err := c.generate(ctx, c.model, req)
	if err != nil {
		return nil, err
	}

	gen := &Generation{Model: c.model, Text: strings.TrimSpace(collectText(resp))}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("genai: decode image part: %w", err)
		}
		gen.Image = data
		gen.MimeType = p.InlineData.MimeType
		break
	}

	c.logger.Debug("generation finished",
		zap.String("model", c.model),
		zap.Int("image_bytes", len(gen.Image)),
		zap.Int("text_len", len(gen.Text)),
	)
	return gen, nil
}

func (c *Client) generate(ctx context.Context, model string, body request) (*response, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.endpoint, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genai: perform request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genai: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		excerpt := string(raw)
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody] + "...(truncated)"
		}
		c.logger.Warn("generation request failed", zap.String("model", model), zap.Int("status", resp.StatusCode))
		return nil, &APIError{Status: resp.StatusCode, Body: excerpt}
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("genai: decode response: %w", err)
	}
	if decoded.PromptFeedback.BlockReason != "" {
		return nil, &BlockedError{Reason: decoded.PromptFeedback.BlockReason}
	}
	if len(decoded.Candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if decoded.Candidates[0].FinishReason == "SAFETY" {
		return nil, &BlockedError{Reason: "SAFETY"}
	}
	return &decoded, nil
}

func collectText(resp *response) string {
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
