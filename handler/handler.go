package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"focus-agent/internal/domain"
	"focus-agent/internal/media"
	"focus-agent/internal/usecase"
)

const maxBodyBytes = 32 << 20

// AssistantService is the conversational surface the handler depends on.
type AssistantService interface {
	Welcome(ctx context.Context) (string, *domain.AudioClip)
	Chat(ctx context.Context, message string) (usecase.ChatOutput, error)
	Voice(ctx context.Context, audio media.Payload) (usecase.VoiceOutput, error)
	Reset()
	Status() usecase.Status
}

// DetectionService is the capture-analysis surface.
type DetectionService interface {
	AnalyzeScreen(ctx context.Context, image media.Payload) (domain.ScreenReport, error)
	AnalyzeCamera(ctx context.Context, image media.Payload) (domain.CameraReport, error)
	Caption(ctx context.Context, kind string, p media.Payload) (string, string, error)
	SaveVideo(p media.Payload) (string, int, error)
}

// TimerStore lists and cancels in-flight timers.
type TimerStore interface {
	List() []domain.Timer
	Cancel(id string) bool
}

// Predictor is the placeholder ML surface.
type Predictor interface {
	Predict(data any) any
}

type Handler struct {
	assistant       AssistantService
	detection       DetectionService
	timers          TimerStore
	predictor       Predictor
	logger          *slog.Logger
	captureInterval int
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithCaptureInterval sets the capture cadence hint reported to the
// frontend via /status, in seconds.
func WithCaptureInterval(seconds int) Option {
	return func(h *Handler) {
		h.captureInterval = seconds
	}
}

func NewHandler(assistant AssistantService, detection DetectionService, timers TimerStore, predictor Predictor, opts ...Option) (*Handler, error) {
	if assistant == nil {
		return nil, errors.New("handler: assistant service must not be nil")
	}
	if detection == nil {
		return nil, errors.New("handler: detection service must not be nil")
	}
	if timers == nil {
		return nil, errors.New("handler: timer store must not be nil")
	}
	if predictor == nil {
		return nil, errors.New("handler: predictor must not be nil")
	}
	h := &Handler{
		assistant:       assistant,
		detection:       detection,
		timers:          timers,
		predictor:       predictor,
		logger:          slog.Default(),
		captureInterval: 10,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Router builds the full route table wrapped in the middleware chain.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/welcome", h.welcome).Methods(http.MethodGet)
	r.HandleFunc("/chat", h.chat).Methods(http.MethodPost)
	r.HandleFunc("/voice", h.voice).Methods(http.MethodPost)
	r.HandleFunc("/reset", h.reset).Methods(http.MethodPost)
	r.HandleFunc("/detectscreen", h.detectScreen).Methods(http.MethodPost)
	r.HandleFunc("/detectcamera", h.detectCamera).Methods(http.MethodPost)
	r.HandleFunc("/predict", h.predict).Methods(http.MethodPost)
	r.HandleFunc("/timers", h.listTimers).Methods(http.MethodGet)
	r.HandleFunc("/timers/{id}", h.cancelTimer).Methods(http.MethodDelete)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/screen", h.capture("screen", "image")).Methods(http.MethodPost)
	api.HandleFunc("/camera", h.capture("camera", "image")).Methods(http.MethodPost)
	api.HandleFunc("/video", h.video).Methods(http.MethodPost)
	api.HandleFunc("/text", h.chat).Methods(http.MethodPost)
	api.HandleFunc("/voice", h.voice).Methods(http.MethodPost)

	return chain(r,
		recoverPanic(h.logger),
		cors,
		correlationID,
		requestLog(h.logger),
	)
}

type audioResponse struct {
	Data    string `json:"data"`
	Format  string `json:"format"`
	DataURL string `json:"data_url"`
}

func toAudioResponse(clip *domain.AudioClip) *audioResponse {
	if clip == nil {
		return nil
	}
	return &audioResponse{Data: clip.Base64, Format: clip.Format, DataURL: clip.DataURL}
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Active          bool     `json:"active"`
	Model           string   `json:"model"`
	BackupModels    []string `json:"backup_models"`
	SpeechEnabled   bool     `json:"speech_enabled"`
	CaptureInterval int      `json:"capture_interval_seconds"`
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	st := h.assistant.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Active:          st.Active,
		Model:           st.Model,
		BackupModels:    st.BackupModels,
		SpeechEnabled:   st.SpeechEnabled,
		CaptureInterval: h.captureInterval,
	})
}

type welcomeResponse struct {
	Message string         `json:"message"`
	Audio   *audioResponse `json:"audio,omitempty"`
}

func (h *Handler) welcome(w http.ResponseWriter, r *http.Request) {
	message, clip := h.assistant.Welcome(r.Context())
	writeJSON(w, http.StatusOK, welcomeResponse{Message: message, Audio: toAudioResponse(clip)})
}

type chatRequest struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

type chatResponse struct {
	Response string         `json:"response"`
	Time     string         `json:"time,omitempty"`
	Audio    *audioResponse `json:"audio,omitempty"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	message := req.Message
	if message == "" {
		message = req.Text
	}

	out, err := h.assistant.Chat(r.Context(), message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response: out.Reply,
		Time:     out.TimerClock,
		Audio:    toAudioResponse(out.Audio),
	})
}

type voiceResponse struct {
	Transcription string         `json:"transcription"`
	Response      string         `json:"response"`
	Time          string         `json:"time,omitempty"`
	Audio         *audioResponse `json:"audio,omitempty"`
}

func (h *Handler) voice(w http.ResponseWriter, r *http.Request) {
	payload, err := requestPayload(r, "audio", "file")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.assistant.Voice(r.Context(), payload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, voiceResponse{
		Transcription: out.Transcription,
		Response:      out.Reply,
		Time:          out.TimerClock,
		Audio:         toAudioResponse(out.Audio),
	})
}

func (h *Handler) reset(w http.ResponseWriter, _ *http.Request) {
	h.assistant.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type screenResponse struct {
	TextExtracted   string         `json:"text_extracted"`
	Activity        string         `json:"activity"`
	IsStudying      bool           `json:"is_studying"`
	Details         string         `json:"details"`
	Analysis        string         `json:"analysis"`
	OCRModelUsed    string         `json:"ocr_model_used,omitempty"`
	VisionModelUsed string         `json:"vision_model_used,omitempty"`
	WarningMessage  string         `json:"warning_message,omitempty"`
	WarningAudio    *audioResponse `json:"warning_audio,omitempty"`
}

func (h *Handler) detectScreen(w http.ResponseWriter, r *http.Request) {
	payload, err := requestPayload(r, "image", "file")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	report, err := h.detection.AnalyzeScreen(r.Context(), payload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, screenResponse{
		TextExtracted:   report.TextExtracted,
		Activity:        report.Activity,
		IsStudying:      report.IsStudying,
		Details:         report.Details,
		Analysis:        report.Analysis,
		OCRModelUsed:    report.OCRModelUsed,
		VisionModelUsed: report.VisionModelUsed,
		WarningMessage:  report.WarningMessage,
		WarningAudio:    toAudioResponse(report.WarningAudio),
	})
}

type cameraResponse struct {
	PersonPresent   bool           `json:"person_present"`
	Activity        string         `json:"activity"`
	IsStudying      bool           `json:"is_studying"`
	Details         string         `json:"details"`
	Analysis        string         `json:"analysis"`
	VisionModelUsed string         `json:"vision_model_used,omitempty"`
	WarningMessage  string         `json:"warning_message,omitempty"`
	WarningAudio    *audioResponse `json:"warning_audio,omitempty"`
}

func (h *Handler) detectCamera(w http.ResponseWriter, r *http.Request) {
	payload, err := requestPayload(r, "image", "file")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	report, err := h.detection.AnalyzeCamera(r.Context(), payload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cameraResponse{
		PersonPresent:   report.PersonPresent,
		Activity:        report.Activity,
		IsStudying:      report.IsStudying,
		Details:         report.Details,
		Analysis:        report.Analysis,
		VisionModelUsed: report.VisionModelUsed,
		WarningMessage:  report.WarningMessage,
		WarningAudio:    toAudioResponse(report.WarningAudio),
	})
}

type captureResponse struct {
	Status    string `json:"status"`
	Analysis  string `json:"analysis"`
	SavedPath string `json:"saved_path,omitempty"`
}

// capture serves the earlier-revision /api/screen and /api/camera surface:
// save a debug copy, return a short caption.
func (h *Handler) capture(kind, jsonKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := requestPayload(r, jsonKey, "file")
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		analysis, path, err := h.detection.Caption(r.Context(), kind, payload)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, captureResponse{Status: "ok", Analysis: analysis, SavedPath: path})
	}
}

type videoResponse struct {
	Status    string `json:"status"`
	SavedPath string `json:"saved_path,omitempty"`
	SizeBytes int    `json:"size_bytes"`
}

func (h *Handler) video(w http.ResponseWriter, r *http.Request) {
	payload, err := requestPayload(r, "video", "file")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	path, size, err := h.detection.SaveVideo(payload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, videoResponse{Status: "saved", SavedPath: path, SizeBytes: size})
}

type predictRequest struct {
	Value any `json:"value"`
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prediction": h.predictor.Predict(req.Value)})
}

func (h *Handler) listTimers(w http.ResponseWriter, _ *http.Request) {
	timers := h.timers.List()
	if timers == nil {
		timers = []domain.Timer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"timers": timers})
}

func (h *Handler) cancelTimer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.timers.Cancel(id) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "timer_not_found", Status: http.StatusNotFound})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Status int    `json:"status"`
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	code := string(usecase.ErrorInternal)
	reason := ""

	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		code = string(ucErr.Code)
		reason = ucErr.Reason
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			status = http.StatusBadRequest
		case usecase.ErrorRateLimited:
			status = http.StatusTooManyRequests
		case usecase.ErrorUpstream:
			status = http.StatusBadGateway
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "reason", reason, "err", err)
	} else {
		logger.Warn("request rejected", "code", code, "reason", reason)
	}
	writeJSON(w, status, errorResponse{Error: code, Reason: reason, Status: status})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return usecase.NewInvalidInput("unreadable_body", err)
	}
	if len(body) == 0 {
		return usecase.NewInvalidInput("empty_body", nil)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return usecase.NewInvalidInput("malformed_json", err)
	}
	return nil
}

// requestPayload accepts either a multipart upload (fileField) or a JSON
// body carrying a base64 string under jsonKey, with an optional data-URL
// prefix.
func requestPayload(r *http.Request, jsonKey, fileField string) (media.Payload, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return media.Payload{}, usecase.NewInvalidInput("malformed_multipart", err)
		}
		file, header, err := r.FormFile(fileField)
		if err != nil {
			return media.Payload{}, usecase.NewInvalidInput("missing_"+jsonKey, err)
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxBodyBytes))
		if err != nil {
			return media.Payload{}, usecase.NewInvalidInput("unreadable_upload", err)
		}
		payload, err := media.FromBytes(header.Filename, data, header.Header.Get("Content-Type"))
		if err != nil {
			return media.Payload{}, usecase.NewInvalidInput("empty_upload", err)
		}
		return payload, nil
	}

	var body map[string]string
	if err := decodeJSON(r, &body); err != nil {
		return media.Payload{}, err
	}
	value := strings.TrimSpace(body[jsonKey])
	if value == "" {
		return media.Payload{}, usecase.NewInvalidInput("missing_"+jsonKey, media.ErrNoPayload)
	}
	fallbackMIME := ""
	if format := body["format"]; format != "" {
		fallbackMIME = jsonKey + "/" + format
	}
	payload, err := media.FromBase64(value, fallbackMIME)
	if err != nil {
		return media.Payload{}, usecase.NewInvalidInput("missing_"+jsonKey, err)
	}
	return payload, nil
}
