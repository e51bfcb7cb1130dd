package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	sttModelID     = "scribe_v1"
)

// VoiceSettings tunes the synthesized voice. The defaults match the
// assistant's configured personality.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings returns the settings used for every assistant reply.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.2,
		UseSpeakerBoost: true,
	}
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type sttResponse struct {
	Text          string `json:"text"`
	Transcription string `json:"transcription"`
}

type voicesResponse struct {
	Voices []Voice `json:"voices"`
}

// Voice is one entry of the account's voice catalog.
type Voice struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

// Speech is the outcome of a text-to-speech call.
type Speech struct {
	Audio     []byte
	Base64    string
	Format    string
	SizeBytes int
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("elevenlabs: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused ElevenLabs client for speech synthesis and
// transcription.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	voiceID    string
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

func WithVoiceID(voiceID string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(voiceID); v != "" {
			c.voiceID = v
		}
	}
}

// NewClient creates a Client with the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("elevenlabs: API key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		voiceID:    defaultVoiceID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TextToSpeech synthesizes speech for the given text with the client's
// voice and settings, returning MP3 audio.
func (c *Client) TextToSpeech(ctx context.Context, text string, settings VoiceSettings) (Speech, error) {
	if strings.TrimSpace(text) == "" {
		return Speech{}, errors.New("elevenlabs: text must not be empty")
	}

	body, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       "eleven_monolingual_v1",
		VoiceSettings: settings,
	})
	if err != nil {
		return Speech{}, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/text-to-speech/" + c.voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Speech{}, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	audio, err := c.doRequest(req, url)
	if err != nil {
		return Speech{}, fmt.Errorf("elevenlabs: request failed: %w", err)
	}

	return Speech{
		Audio:     audio,
		Base64:    base64.StdEncoding.EncodeToString(audio),
		Format:    "mp3",
		SizeBytes: len(audio),
	}, nil
}

// SpeechToText transcribes audio bytes. mimeType describes the uploaded
// audio (e.g. "audio/webm"). An empty transcript is treated as an error so
// callers never feed silence into the chat pipeline.
func (c *Client) SpeechToText(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("elevenlabs: audio must not be empty")
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", fmt.Errorf("elevenlabs: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("elevenlabs: write form file: %w", err)
	}
	if err := mw.WriteField("model_id", sttModelID); err != nil {
		return "", fmt.Errorf("elevenlabs: write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("elevenlabs: close multipart writer: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/speech-to-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	raw, err := c.doRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: transcription request failed: %w", err)
	}

	var payload sttResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("elevenlabs: decode transcription response: %w", err)
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		text = strings.TrimSpace(payload.Transcription)
	}
	if text == "" {
		return "", errors.New("elevenlabs: no transcription text in response")
	}
	return text, nil
}

// Voices fetches the account's voice catalog.
func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	url := strings.TrimRight(c.baseURL, "/") + "/voices"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create voices request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	raw, err := c.doRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: voices request failed: %w", err)
	}

	var payload voicesResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices response: %w", err)
	}
	return payload.Voices, nil
}

func (c *Client) doRequest(req *http.Request, url string) ([]byte, error) {
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

	buf, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
