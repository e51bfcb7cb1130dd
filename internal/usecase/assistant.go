package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"focus-agent/internal/domain"
	"focus-agent/internal/integrations/elevenlabs"
	"focus-agent/internal/integrations/openrouter"
	"focus-agent/internal/media"
	"focus-agent/internal/timers"
)

const (
	chatTemperature    = 0.85
	chatMaxTokens      = 300
	welcomeTemperature = 0.9
	welcomeMaxTokens   = 150
	archiveTimeout     = 10 * time.Second
)

// LLMClient is the provider surface the assistant depends on.
type LLMClient interface {
	Generate(ctx context.Context, in openrouter.GenerateInput) (openrouter.Result, error)
	AnalyzeImage(ctx context.Context, in openrouter.AnalyzeImageInput) (openrouter.Result, error)
}

// SpeechClient is the optional TTS/STT surface.
type SpeechClient interface {
	TextToSpeech(ctx context.Context, text string, settings elevenlabs.VoiceSettings) (elevenlabs.Speech, error)
	SpeechToText(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Archiver receives completed exchanges, fire-and-forget.
type Archiver interface {
	ArchiveExchange(ctx context.Context, sessionID, question, answer string, turns int) error
}

// TimerScheduler is the timer surface the assistant dispatches tool calls to.
type TimerScheduler interface {
	Set(clock string) (domain.Timer, error)
}

// Assistant is the conversational dispatcher. It owns the in-process
// conversation history (mutex-guarded, append-only, cleared on reset) and
// the tool-call round trip for the timer function.
type Assistant struct {
	llm       LLMClient
	speech    SpeechClient
	scheduler TimerScheduler
	archive   Archiver
	audio     media.Saver
	logger    *slog.Logger

	model        string
	backupModels []string

	mu        sync.Mutex
	active    bool
	sessionID string
	history   []domain.ChatMessage
	turns     int

	welcomeMu   sync.Mutex
	welcomeText string
	welcomeClip *domain.AudioClip
}

type AssistantOption func(*Assistant)

// WithSpeech enables TTS/STT. Without it, audio fields are simply omitted
// and voice input is rejected.
func WithSpeech(s SpeechClient) AssistantOption {
	return func(a *Assistant) {
		a.speech = s
	}
}

// WithArchive enables the optional transcript archive.
func WithArchive(ar Archiver) AssistantOption {
	return func(a *Assistant) {
		a.archive = ar
	}
}

// WithAudioSaver enables debug copies of generated audio.
func WithAudioSaver(s media.Saver) AssistantOption {
	return func(a *Assistant) {
		a.audio = s
	}
}

func WithLogger(l *slog.Logger) AssistantOption {
	return func(a *Assistant) {
		a.logger = l
	}
}

// NewAssistant creates the dispatcher. model and backupModels are only used
// for status reporting; routing lives in the provider client.
func NewAssistant(llm LLMClient, scheduler TimerScheduler, model string, backupModels []string, opts ...AssistantOption) (*Assistant, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if scheduler == nil {
		return nil, errors.New("usecase: timer scheduler must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	a := &Assistant{
		llm:          llm,
		scheduler:    scheduler,
		logger:       slog.Default(),
		model:        model,
		backupModels: backupModels,
		sessionID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start marks the assistant active. Idempotent.
func (a *Assistant) Start() {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
}

// IsActive reports whether the assistant has been started.
func (a *Assistant) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Status describes the assistant for the /status endpoint.
type Status struct {
	Active        bool
	Model         string
	BackupModels  []string
	SpeechEnabled bool
}

func (a *Assistant) Status() Status {
	return Status{
		Active:        a.IsActive(),
		Model:         a.model,
		BackupModels:  a.backupModels,
		SpeechEnabled: a.speech != nil,
	}
}

// Reset clears the conversation history and the welcome-audio cache and
// starts a fresh session.
func (a *Assistant) Reset() {
	a.mu.Lock()
	a.history = nil
	a.turns = 0
	a.sessionID = uuid.NewString()
	a.active = true
	a.mu.Unlock()

	a.welcomeMu.Lock()
	a.welcomeText = ""
	a.welcomeClip = nil
	a.welcomeMu.Unlock()
}

// History returns a copy of the current conversation history.
func (a *Assistant) History() []domain.ChatMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.ChatMessage, len(a.history))
	copy(out, a.history)
	return out
}

// Welcome generates the welcome message with optional audio. The audio clip
// is cached per welcome text so repeated calls do not re-synthesize.
func (a *Assistant) Welcome(ctx context.Context) (string, *domain.AudioClip) {
	a.Start()

	message := fallbackWelcome
	res, err := a.llm.Generate(ctx, openrouter.GenerateInput{
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: systemPrompt()},
			{Role: domain.RoleUser, Content: welcomeInstruction()},
		},
		Temperature: welcomeTemperature,
		MaxTokens:   welcomeMaxTokens,
		UseBackup:   true,
	})
	if err != nil {
		a.logger.Warn("welcome generation failed, using fallback", "err", err)
	} else if strings.TrimSpace(res.Content) != "" {
		message = res.Content
	}

	a.welcomeMu.Lock()
	defer a.welcomeMu.Unlock()
	if a.welcomeText == message && a.welcomeClip != nil {
		return message, a.welcomeClip
	}

	clip := a.synthesize(ctx, message)
	a.welcomeText = message
	a.welcomeClip = clip
	return message, clip
}

// ChatOutput is one completed assistant turn.
type ChatOutput struct {
	Reply string
	// TimerClock is the requested duration in hh:mm:ss form when the user
	// message expressed a timer request, empty otherwise.
	TimerClock string
	Audio      *domain.AudioClip
}

// Chat processes one user message: timer shortcut, completion with the
// conditional timer tool, at most one tool round trip, then speech.
func (a *Assistant) Chat(ctx context.Context, message string) (ChatOutput, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if !a.IsActive() {
		a.Start()
	}

	timerClock, _ := timers.DetectRequest(message)

	// Regex shortcut: a clearly expressed timer request is scheduled
	// directly, without a provider round trip. Mirrors the provider-side
	// tool as a fallback for models that miss the call.
	if timerClock != "" {
		t, err := a.scheduler.Set(timerClock)
		if err != nil {
			return ChatOutput{}, newError(ErrorInvalidInput, "invalid_timer_duration", err)
		}
		reply := fmt.Sprintf("Timer set for %s!", t.Clock)
		return ChatOutput{
			Reply:      reply,
			TimerClock: t.Clock,
			Audio:      a.synthesize(ctx, reply),
		}, nil
	}

	a.mu.Lock()
	a.history = append(a.history, domain.ChatMessage{Role: domain.RoleUser, Content: message})
	msgs := a.promptMessages()
	a.mu.Unlock()

	var tools []openrouter.Tool
	if timers.MentionsTimer(message) {
		tools = []openrouter.Tool{timerTool()}
	}

	res, err := a.llm.Generate(ctx, openrouter.GenerateInput{
		Messages:    msgs,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
		Tools:       tools,
		UseBackup:   true,
	})
	if err != nil && len(tools) > 0 {
		// Some models reject tool definitions outright; retry once bare.
		if status, ok := upstreamStatusCode(err); ok && status == 400 {
			a.logger.Warn("tool calling failed, retrying without tools", "err", err)
			res, err = a.llm.Generate(ctx, openrouter.GenerateInput{
				Messages:    msgs,
				Temperature: chatTemperature,
				MaxTokens:   chatMaxTokens,
				UseBackup:   true,
			})
		}
	}
	if err != nil {
		return ChatOutput{}, providerError("chat_completion", err)
	}

	reply := res.Content
	if len(res.ToolCalls) > 0 {
		reply, err = a.runToolCalls(ctx, msgs, res)
		if err != nil {
			return ChatOutput{}, err
		}
	} else {
		if strings.TrimSpace(reply) == "" {
			reply = fallbackReply
		}
		a.appendAssistant(reply)
	}

	a.archiveExchange(message, reply)

	return ChatOutput{
		Reply:      reply,
		TimerClock: timerClock,
		Audio:      a.synthesize(ctx, reply),
	}, nil
}

// VoiceOutput is a chat turn that originated as audio.
type VoiceOutput struct {
	Transcription string
	ChatOutput
}

// Voice transcribes the audio payload and routes the transcript through
// Chat.
func (a *Assistant) Voice(ctx context.Context, audio media.Payload) (VoiceOutput, error) {
	if a.speech == nil {
		return VoiceOutput{}, newError(ErrorUpstream, "speech_not_configured",
			errors.New("speech-to-text requires an ElevenLabs API key"))
	}

	raw, err := audio.Decode()
	if err != nil {
		return VoiceOutput{}, newError(ErrorInvalidInput, "invalid_audio_base64", err)
	}

	transcript, err := a.speech.SpeechToText(ctx, raw, audio.MIME)
	if err != nil {
		return VoiceOutput{}, providerError("transcription", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return VoiceOutput{}, newError(ErrorInvalidInput, "empty_transcription", nil)
	}

	out, err := a.Chat(ctx, transcript)
	if err != nil {
		return VoiceOutput{}, err
	}
	return VoiceOutput{Transcription: transcript, ChatOutput: out}, nil
}

// promptMessages builds the provider message list: system preamble plus the
// full history. Caller must hold a.mu.
func (a *Assistant) promptMessages() []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(a.history)+1)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt()})
	msgs = append(msgs, a.history...)
	return msgs
}

func (a *Assistant) appendAssistant(content string) {
	a.mu.Lock()
	a.history = append(a.history, domain.ChatMessage{Role: domain.RoleAssistant, Content: content})
	a.turns++
	a.mu.Unlock()
}

// runToolCalls executes the provider-requested timer calls, appends the
// synthetic tool results and issues exactly one wrap-up completion.
func (a *Assistant) runToolCalls(ctx context.Context, msgs []domain.ChatMessage, res openrouter.Result) (string, error) {
	assistantMsg := domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   res.Content,
		ToolCalls: res.ToolCalls,
	}

	toolResults := make([]domain.ChatMessage, 0, len(res.ToolCalls))
	for _, call := range res.ToolCalls {
		if call.Function.Name != "set_timer" {
			continue
		}
		toolResults = append(toolResults, domain.ChatMessage{
			Role:       domain.RoleTool,
			Content:    a.executeSetTimer(call.Function.Arguments),
			ToolCallID: call.ID,
			Name:       call.Function.Name,
		})
	}

	a.mu.Lock()
	a.history = append(a.history, assistantMsg)
	a.history = append(a.history, toolResults...)
	a.mu.Unlock()

	followUp := append(append([]domain.ChatMessage{}, msgs...), assistantMsg)
	followUp = append(followUp, toolResults...)

	final, err := a.llm.Generate(ctx, openrouter.GenerateInput{
		Messages:    followUp,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
		UseBackup:   true,
	})
	if err != nil {
		return "", providerError("tool_followup_completion", err)
	}

	reply := final.Content
	if strings.TrimSpace(reply) == "" {
		reply = fallbackReply
	}
	a.appendAssistant(reply)
	return reply, nil
}

// executeSetTimer runs the local timer function and returns the
// JSON-encoded tool result.
func (a *Assistant) executeSetTimer(arguments string) string {
	var args struct {
		Time string `json:"time"`
	}
	result := map[string]any{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		result["success"] = false
		result["error"] = "malformed arguments: " + err.Error()
	} else if t, err := a.scheduler.Set(args.Time); err != nil {
		result["success"] = false
		result["error"] = err.Error()
	} else {
		result["success"] = true
		result["message"] = "Timer set for " + t.Clock
		result["time"] = t.Clock
		result["seconds"] = t.Seconds
	}
	encoded, _ := json.Marshal(result)
	return string(encoded)
}

// synthesize produces a TTS clip for the reply. Failures are logged and the
// text response goes out without audio.
func (a *Assistant) synthesize(ctx context.Context, text string) *domain.AudioClip {
	if a.speech == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	sp, err := a.speech.TextToSpeech(ctx, text, elevenlabs.DefaultVoiceSettings())
	if err != nil {
		a.logger.Warn("audio generation failed", "err", err)
		return nil
	}

	if path, err := a.audio.Save(sp.Audio, text, ".mp3"); err != nil {
		a.logger.Warn("saving audio failed", "err", err)
	} else if path != "" {
		a.logger.Info("saved audio", "path", path)
	}

	return &domain.AudioClip{
		Base64:  sp.Base64,
		Format:  sp.Format,
		DataURL: "data:audio/" + sp.Format + ";base64," + sp.Base64,
	}
}

// archiveExchange hands the completed turn to the transcript archive off
// the request goroutine. Errors are logged, never surfaced.
func (a *Assistant) archiveExchange(question, answer string) {
	if a.archive == nil {
		return
	}
	a.mu.Lock()
	sessionID := a.sessionID
	turns := a.turns
	a.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := a.archive.ArchiveExchange(ctx, sessionID, question, answer, turns); err != nil {
			a.logger.Warn("transcript archive failed", "session_id", sessionID, "err", err)
		}
	}()
}

// timerTool is the function definition offered to the model when the
// message looks timer-related.
func timerTool() openrouter.Tool {
	return openrouter.Tool{
		Type: "function",
		Function: openrouter.ToolFunction{
			Name: "set_timer",
			Description: "Set a timer for a specified duration. Parse time from user input in hh:mm:ss format, " +
				"mm:ss format, or natural language (e.g., '5 minutes', '30 seconds', '1 hour'). " +
				"Always use this function when the user wants to set a timer.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"time": {
						"type": "string",
						"description": "Time duration in hh:mm:ss format (e.g., '00:05:00' for 5 minutes, '01:30:00' for 1 hour 30 minutes, '00:00:30' for 30 seconds). Convert natural language times to this format."
					}
				},
				"required": ["time"]
			}`),
		},
	}
}
