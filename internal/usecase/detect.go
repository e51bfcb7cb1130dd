package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"focus-agent/internal/domain"
	"focus-agent/internal/integrations/elevenlabs"
	"focus-agent/internal/integrations/openrouter"
	"focus-agent/internal/media"
)

const (
	ocrTemperature      = 0.1
	ocrMaxTokens        = 2000
	activityTemperature = 0.3
	activityMaxTokens   = 1000
	captionTemperature  = 0.3
	captionMaxTokens    = 300
)

// DetectionService analyzes screen captures and camera frames to decide
// whether the user is studying.
type DetectionService struct {
	llm      LLMClient
	speech   SpeechClient
	uploads  media.Saver
	logger   *slog.Logger
	ocrModel string
}

type DetectionOption func(*DetectionService)

// WithWarningSpeech enables spoken focus warnings.
func WithWarningSpeech(s SpeechClient) DetectionOption {
	return func(d *DetectionService) {
		d.speech = s
	}
}

// WithUploadSaver enables debug copies of received captures.
func WithUploadSaver(s media.Saver) DetectionOption {
	return func(d *DetectionService) {
		d.uploads = s
	}
}

// WithOCRModel overrides the model used for the text-extraction pass.
func WithOCRModel(model string) DetectionOption {
	return func(d *DetectionService) {
		d.ocrModel = model
	}
}

func WithDetectionLogger(l *slog.Logger) DetectionOption {
	return func(d *DetectionService) {
		d.logger = l
	}
}

func NewDetectionService(llm LLMClient, opts ...DetectionOption) (*DetectionService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	d := &DetectionService{
		llm:    llm,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// AnalyzeScreen runs the two-pass screenshot analysis: an OCR pass to pull
// visible text, then an activity pass grounded on that text. An OCR failure
// degrades to an empty extraction instead of failing the request.
func (d *DetectionService) AnalyzeScreen(ctx context.Context, image media.Payload) (domain.ScreenReport, error) {
	if strings.TrimSpace(image.Base64) == "" {
		return domain.ScreenReport{}, newError(ErrorInvalidInput, "missing_image", nil)
	}

	report := domain.ScreenReport{}

	ocrRes, err := d.llm.AnalyzeImage(ctx, openrouter.AnalyzeImageInput{
		ImageBase64: image.Base64,
		Prompt:      ocrPrompt(),
		Model:       d.resolveOCRModel(),
		Temperature: ocrTemperature,
		MaxTokens:   ocrMaxTokens,
	})
	if err != nil {
		d.logger.Warn("ocr pass failed, continuing without extracted text", "err", err)
	} else {
		report.TextExtracted = strings.TrimSpace(ocrRes.Content)
		report.OCRModelUsed = ocrRes.ModelUsed
	}

	actRes, err := d.llm.AnalyzeImage(ctx, openrouter.AnalyzeImageInput{
		ImageBase64: image.Base64,
		Prompt:      screenActivityPrompt(report.TextExtracted),
		Temperature: activityTemperature,
		MaxTokens:   activityMaxTokens,
		UseBackup:   true,
	})
	if err != nil {
		return domain.ScreenReport{}, providerError("screen_analysis", err)
	}

	parsed := parseAnalysis(actRes.Content)
	report.Analysis = actRes.Content
	report.VisionModelUsed = actRes.ModelUsed
	report.Activity = parsed.activity
	report.IsStudying = parsed.isStudying
	report.Details = parsed.details

	if !report.IsStudying {
		report.WarningMessage = warningMessage(report.Activity)
		report.WarningAudio = d.warnClip(ctx, report.WarningMessage)
	}
	return report, nil
}

// AnalyzeCamera runs the single-pass camera frame analysis. A frame with no
// visible person is never counted as studying.
func (d *DetectionService) AnalyzeCamera(ctx context.Context, image media.Payload) (domain.CameraReport, error) {
	if strings.TrimSpace(image.Base64) == "" {
		return domain.CameraReport{}, newError(ErrorInvalidInput, "missing_image", nil)
	}

	res, err := d.llm.AnalyzeImage(ctx, openrouter.AnalyzeImageInput{
		ImageBase64: image.Base64,
		Prompt:      cameraPrompt(),
		Temperature: activityTemperature,
		MaxTokens:   activityMaxTokens,
		UseBackup:   true,
	})
	if err != nil {
		return domain.CameraReport{}, providerError("camera_analysis", err)
	}

	parsed := parseAnalysis(res.Content)
	report := domain.CameraReport{
		PersonPresent:   parsed.personPresent,
		Activity:        parsed.activity,
		IsStudying:      parsed.isStudying,
		Details:         parsed.details,
		Analysis:        res.Content,
		VisionModelUsed: res.ModelUsed,
	}
	if !report.PersonPresent {
		report.IsStudying = false
		if report.Activity == "" {
			report.Activity = "No person detected"
		}
	}

	if !report.IsStudying {
		report.WarningMessage = warningMessage(report.Activity)
		report.WarningAudio = d.warnClip(ctx, report.WarningMessage)
	}
	return report, nil
}

// Caption describes a capture with a short vision prompt, keeping a debug
// copy on disk when a saver is configured. kind is "screen" or "camera".
func (d *DetectionService) Caption(ctx context.Context, kind string, p media.Payload) (string, string, error) {
	raw, err := p.Decode()
	if err != nil {
		return "", "", newError(ErrorInvalidInput, "invalid_image_base64", err)
	}

	path, err := d.uploads.Save(raw, kind, extForMIME(p.MIME, ".png"))
	if err != nil {
		d.logger.Warn("saving capture failed", "kind", kind, "err", err)
	}

	res, err := d.llm.AnalyzeImage(ctx, openrouter.AnalyzeImageInput{
		ImageBase64: p.Base64,
		Prompt:      captionPrompt(kind),
		Temperature: captionTemperature,
		MaxTokens:   captionMaxTokens,
		UseBackup:   true,
	})
	if err != nil {
		return "", path, providerError(kind+"_caption", err)
	}
	return res.Content, path, nil
}

// SaveVideo persists a video clip; no provider accepts video input, so the
// clip is only acknowledged.
func (d *DetectionService) SaveVideo(p media.Payload) (string, int, error) {
	raw, err := p.Decode()
	if err != nil {
		return "", 0, newError(ErrorInvalidInput, "invalid_video_base64", err)
	}
	path, err := d.uploads.Save(raw, "video", extForMIME(p.MIME, ".webm"))
	if err != nil {
		return "", 0, newError(ErrorInternal, "video_save_failed", err)
	}
	return path, len(raw), nil
}

// resolveOCRModel applies the configured OCR model, rejecting the retired
// gemini-pro-vision identifier in favor of the client default.
func (d *DetectionService) resolveOCRModel() string {
	if strings.Contains(d.ocrModel, "gemini-pro-vision") {
		d.logger.Warn("configured ocr model is retired, using default vision model", "model", d.ocrModel)
		return ""
	}
	return d.ocrModel
}

func (d *DetectionService) warnClip(ctx context.Context, text string) *domain.AudioClip {
	if d.speech == nil {
		return nil
	}
	sp, err := d.speech.TextToSpeech(ctx, text, elevenlabs.DefaultVoiceSettings())
	if err != nil {
		d.logger.Warn("warning audio generation failed", "err", err)
		return nil
	}
	return &domain.AudioClip{
		Base64:  sp.Base64,
		Format:  sp.Format,
		DataURL: "data:audio/" + sp.Format + ";base64," + sp.Base64,
	}
}

func warningMessage(activity string) string {
	if strings.TrimSpace(activity) == "" {
		activity = "something else"
	}
	return fmt.Sprintf("Hey! Looks like you are doing %s, you should be focusing!", activity)
}

// parsedAnalysis holds the fields pulled out of a structured model reply.
type parsedAnalysis struct {
	activity      string
	details       string
	isStudying    bool
	personPresent bool
}

// parseAnalysis reads the ACTIVITY / IS_STUDYING / DETAILS /
// PERSON_PRESENT lines from a model reply. DETAILS absorbs continuation
// lines. When the model skips the labels entirely, keyword heuristics over
// the whole reply decide.
func parseAnalysis(text string) parsedAnalysis {
	var p parsedAnalysis
	sawStudying := false
	inDetails := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		switch {
		case strings.HasPrefix(upper, "ACTIVITY:"):
			p.activity = strings.TrimSpace(trimmed[len("ACTIVITY:"):])
			inDetails = false
		case strings.HasPrefix(upper, "IS_STUDYING:"):
			val := strings.ToLower(strings.TrimSpace(trimmed[len("IS_STUDYING:"):]))
			p.isStudying = strings.HasPrefix(val, "yes") || strings.HasPrefix(val, "true")
			sawStudying = true
			inDetails = false
		case strings.HasPrefix(upper, "PERSON_PRESENT:"):
			val := strings.ToLower(strings.TrimSpace(trimmed[len("PERSON_PRESENT:"):]))
			p.personPresent = strings.HasPrefix(val, "yes") || strings.HasPrefix(val, "true")
			inDetails = false
		case strings.HasPrefix(upper, "DETAILS:"):
			p.details = strings.TrimSpace(trimmed[len("DETAILS:"):])
			inDetails = true
		case inDetails && trimmed != "":
			p.details += "\n" + trimmed
		}
	}

	if !sawStudying {
		p.isStudying = guessStudying(text)
	}
	if p.activity == "" {
		p.activity = guessActivity(text)
	}
	return p
}

var studyKeywords = []string{
	"studying", "coding", "programming", "writing code",
	"taking notes", "working on", "reading a document", "solving",
}

var distractionKeywords = []string{
	"not studying", "distract", "youtube", "social media",
	"playing a game", "playing games", "watching",
}

func guessStudying(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range distractionKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, kw := range studyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func guessActivity(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range append(append([]string{}, studyKeywords...), distractionKeywords...) {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

func extForMIME(mime, fallback string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "audio/webm":
		return ".webm"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	}
	return fallback
}
