package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"focus-agent/handler"
	"focus-agent/internal/integrations/elevenlabs"
	"focus-agent/internal/integrations/openrouter"
	"focus-agent/internal/integrations/paramstore"
	"focus-agent/internal/media"
	"focus-agent/internal/model"
	"focus-agent/internal/repository"
	"focus-agent/internal/timers"
	"focus-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded .env")
	}

	// ---- Configuration (read only here) ----
	port := envOr("PORT", "8000")
	chatModel := envOr("OPENROUTER_MODEL", "openai/gpt-4o-mini")
	backupModels := splitList(os.Getenv("OPENROUTER_BACKUP_MODELS"))
	visionModel := os.Getenv("OPENROUTER_VISION_MODEL")
	ocrModel := os.Getenv("OPENROUTER_OCR_MODEL")
	baseURL := os.Getenv("OPENROUTER_BASE_URL")
	paramPrefix := os.Getenv("PARAM_PREFIX")
	transcriptTable := os.Getenv("TRANSCRIPT_TABLE")
	timerCallbackURL := os.Getenv("TIMER_CALLBACK_URL")
	audioDir := os.Getenv("AUDIO_OUTPUT_DIR")
	uploadDir := os.Getenv("UPLOAD_DIR")
	captureInterval := envInt("CAPTURE_INTERVAL_SECONDS", 10)

	// ---- AWS SDK config (only when a feature needs it) ----
	var ssmAPI *awsssm.Client
	var dynamoAPI *awsdynamodb.Client
	if paramPrefix != "" || transcriptTable != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		if paramPrefix != "" {
			ssmAPI = awsssm.NewFromConfig(cfg)
		}
		if transcriptTable != "" {
			dynamoAPI = awsdynamodb.NewFromConfig(cfg)
		}
	}

	// ---- Provider key ----
	var keys openrouter.KeySource
	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		keys = openrouter.StaticKey(apiKey)
	} else if ssmAPI != nil {
		ssmClient, err := paramstore.New(ssmAPI)
		if err != nil {
			logger.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		keys = openrouter.ParamStoreKey{Getter: ssmClient, Name: paramPrefix + "openrouter-api-key"}
	} else {
		logger.Error("no provider credentials: set OPENROUTER_API_KEY or PARAM_PREFIX")
		os.Exit(1)
	}

	// ---- Clients ----
	routerOpts := []openrouter.Option{openrouter.WithBackupModels(backupModels)}
	if baseURL != "" {
		routerOpts = append(routerOpts, openrouter.WithBaseURL(baseURL))
	}
	if visionModel != "" {
		routerOpts = append(routerOpts, openrouter.WithVisionModel(visionModel))
	}
	llm, err := openrouter.NewClient(keys, chatModel, routerOpts...)
	if err != nil {
		logger.Error("failed to create OpenRouter client", "err", err)
		os.Exit(1)
	}

	var speech usecase.SpeechClient
	if apiKey := os.Getenv("ELEVENLABS_API_KEY"); apiKey != "" {
		var opts []elevenlabs.Option
		if voiceID := os.Getenv("ELEVENLABS_VOICE_ID"); voiceID != "" {
			opts = append(opts, elevenlabs.WithVoiceID(voiceID))
		}
		client, err := elevenlabs.NewClient(apiKey, opts...)
		if err != nil {
			logger.Error("failed to create ElevenLabs client", "err", err)
			os.Exit(1)
		}
		speech = client
	} else {
		logger.Warn("ELEVENLABS_API_KEY not set, speech disabled")
	}

	scheduler := timers.NewScheduler(timerCallbackURL, timers.WithLogger(logger))

	// ---- Services ----
	assistantOpts := []usecase.AssistantOption{
		usecase.WithLogger(logger),
		usecase.WithAudioSaver(media.Saver{Dir: audioDir}),
	}
	if speech != nil {
		assistantOpts = append(assistantOpts, usecase.WithSpeech(speech))
	}
	if dynamoAPI != nil {
		archive, err := repository.New(dynamoAPI, transcriptTable)
		if err != nil {
			logger.Error("failed to create transcript archive", "err", err)
			os.Exit(1)
		}
		assistantOpts = append(assistantOpts, usecase.WithArchive(archive))
	}
	assistant, err := usecase.NewAssistant(llm, scheduler, chatModel, backupModels, assistantOpts...)
	if err != nil {
		logger.Error("failed to create assistant", "err", err)
		os.Exit(1)
	}

	detectionOpts := []usecase.DetectionOption{
		usecase.WithDetectionLogger(logger),
		usecase.WithUploadSaver(media.Saver{Dir: uploadDir}),
		usecase.WithOCRModel(ocrModel),
	}
	if speech != nil {
		detectionOpts = append(detectionOpts, usecase.WithWarningSpeech(speech))
	}
	detection, err := usecase.NewDetectionService(llm, detectionOpts...)
	if err != nil {
		logger.Error("failed to create detection service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(assistant, detection, scheduler, model.New(),
		handler.WithLogger(logger),
		handler.WithCaptureInterval(captureInterval),
	)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("listening", "port", port, "model", chatModel)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
