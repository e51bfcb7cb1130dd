package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"focus-agent/internal/domain"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// chatMessage is the wire shape for one message. Content is either a plain
// string or, for vision requests, an array of typed parts.
type chatMessage struct {
	Role       string            `json:"role"`
	Content    any               `json:"content"`
	ToolCalls  []domain.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Tools       []Tool        `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

// chatResponse is the minimal response shape returned by the Chat
// Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string            `json:"role"`
			Content   string            `json:"content"`
			ToolCalls []domain.ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Tool is a function definition offered to the model for tool calling.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ModelInfo is one entry of the provider's model catalog.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type modelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openrouter: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// KeySource supplies the provider API key. The key is resolved on the first
// request and reused for the lifetime of the process.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource for a key already available in the environment.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	key := strings.TrimSpace(string(k))
	if key == "" {
		return "", errors.New("openrouter: API key is empty")
	}
	return key, nil
}

// ParamGetter is the subset of the paramstore client used for key retrieval.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// ParamStoreKey resolves the API key from SSM Parameter Store.
type ParamStoreKey struct {
	Getter ParamGetter
	Name   string
}

func (k ParamStoreKey) APIKey(ctx context.Context) (string, error) {
	if k.Getter == nil {
		return "", errors.New("openrouter: paramstore getter is nil")
	}
	name := strings.TrimSpace(k.Name)
	if name == "" {
		return "", errors.New("openrouter: token parameter name is empty")
	}

	raw, err := k.Getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openrouter: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openrouter: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("openrouter: API token is empty")
	}
	return tp.Token, nil
}

// Client is a focused OpenRouter-compatible client for chat completions and
// image analysis. One attempt per model; the only resilience is the ordered
// backup-model list.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	keys         KeySource
	model        string
	backupModels []string
	visionModel  string
	referer      string
	title        string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBackupModels sets the ordered fallback list tried when the primary
// model fails.
func WithBackupModels(models []string) Option {
	return func(c *Client) {
		c.backupModels = models
	}
}

// WithVisionModel sets the default model for AnalyzeImage.
func WithVisionModel(model string) Option {
	return func(c *Client) {
		c.visionModel = strings.TrimSpace(model)
	}
}

// NewClient creates a Client for the given primary model. The API key is
// fetched from the KeySource on the first call and cached.
func NewClient(keys KeySource, model string, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("openrouter: key source must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("openrouter: model must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		keys:        keys,
		model:       model,
		visionModel: "openai/gpt-4-turbo",
		referer:     "https://github.com/focus-agent/focus-agent",
		title:       "Virtual AI Assistant",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured primary model.
func (c *Client) Model() string { return c.model }

// BackupModels returns the configured fallback list.
func (c *Client) BackupModels() []string { return c.backupModels }

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = c.keys.APIKey(ctx)
	})
	return c.apiKey, c.keyErr
}

// GenerateInput configures one completion request.
type GenerateInput struct {
	Model       string // overrides the client's primary model when set
	Messages    []domain.ChatMessage
	Temperature float64
	MaxTokens   int
	Tools       []Tool
	ToolChoice  string
	UseBackup   bool
}

// Result is the normalized completion outcome.
type Result struct {
	Content   string
	ToolCalls []domain.ToolCall
	ModelUsed string
	WasBackup bool
}

// Generate requests a completion, walking the backup-model list in order
// when the primary fails. Each model gets exactly one attempt.
func (c *Client) Generate(ctx context.Context, in GenerateInput) (Result, error) {
	msgs := make([]chatMessage, 0, len(in.Messages))
	for _, m := range in.Messages {
		msgs = append(msgs, chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}

	req := chatRequest{
		Messages:    msgs,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Tools:       in.Tools,
	}
	if len(in.Tools) > 0 {
		req.ToolChoice = in.ToolChoice
		if req.ToolChoice == "" {
			req.ToolChoice = "auto"
		}
	}

	primary := in.Model
	if primary == "" {
		primary = c.model
	}
	models := []string{primary}
	if in.UseBackup {
		models = append(models, c.backupModels...)
	}
	return c.tryModels(ctx, req, models)
}

// AnalyzeImageInput configures one vision request. ImageBase64 may carry a
// data-URL header; it is stripped before forwarding.
type AnalyzeImageInput struct {
	ImageBase64 string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	UseBackup   bool
}

// AnalyzeImage sends an image plus prompt to a multimodal model. Backup
// models are filtered to vision-capable ones before the fallback walk.
func (c *Client) AnalyzeImage(ctx context.Context, in AnalyzeImageInput) (Result, error) {
	b64 := strings.TrimSpace(in.ImageBase64)
	if b64 == "" {
		return Result{}, errors.New("openrouter: image must not be empty")
	}
	if strings.HasPrefix(b64, "data:image") {
		if i := strings.Index(b64, ","); i >= 0 {
			b64 = b64[i+1:]
		}
	}

	req := chatRequest{
		Messages: []chatMessage{{
			Role: domain.RoleUser,
			Content: []contentPart{
				{Type: "text", Text: in.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + b64}},
			},
		}},
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}

	model := in.Model
	if model == "" {
		model = c.visionModel
	}
	models := []string{model}
	if in.UseBackup {
		models = append(models, visionCapable(c.backupModels)...)
	}
	return c.tryModels(ctx, req, models)
}

// visionCapable keeps only backup models that plausibly accept images.
func visionCapable(models []string) []string {
	keywords := []string{"gpt-4", "claude-3", "gemini", "vision"}
	out := make([]string, 0, len(models))
	for _, m := range models {
		lower := strings.ToLower(m)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (c *Client) tryModels(ctx context.Context, req chatRequest, models []string) (Result, error) {
	var lastErr error
	for i, model := range models {
		res, err := c.complete(ctx, req, model)
		if err != nil {
			lastErr = err
			continue
		}
		res.WasBackup = i > 0
		return res, nil
	}
	return Result{}, fmt.Errorf("openrouter: all models failed: %w", lastErr)
}

func (c *Client) complete(ctx context.Context, req chatRequest, model string) (Result, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return Result{}, err
	}

	req.Model = model
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("openrouter: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("HTTP-Referer", c.referer)
	httpReq.Header.Set("X-Title", c.title)

	raw, err := c.doJSONRequest(httpReq, url)
	if err != nil {
		return Result{}, fmt.Errorf("openrouter: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return Result{}, fmt.Errorf("openrouter: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return Result{}, errors.New("openrouter: no choices in response")
	}
	msg := payload.Choices[0].Message

	return Result{
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
		ModelUsed: model,
	}, nil
}

// Models fetches the provider's model catalog.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.baseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("openrouter: models request failed: %w", err)
	}

	var payload modelsResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("openrouter: decode models response: %w", err)
	}
	return payload.Data, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
