package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"focus-agent/internal/domain"
)

type recordedRequest struct {
	path    string
	auth    string
	payload chatRequest
}

// newCompletionServer returns a test server whose responder is invoked per
// chat-completions call, plus the recorded requests.
func newCompletionServer(t *testing.T, respond func(call int, w http.ResponseWriter)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var recorded []recordedRequest
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		recorded = append(recorded, recordedRequest{
			path:    r.URL.Path,
			auth:    r.Header.Get("Authorization"),
			payload: payload,
		})
		call := calls
		calls++
		mu.Unlock()
		respond(call, w)
	}))
	t.Cleanup(srv.Close)
	return srv, &recorded
}

func completionBody(content string) string {
	return `{"id":"gen-1","choices":[{"index":0,"message":{"role":"assistant","content":` +
		string(mustJSON(content)) + `}}]}`
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient(nil, "model")
	require.Error(t, err)

	_, err = NewClient(StaticKey("key"), " ")
	require.Error(t, err)
}

func TestGenerate_HappyPath(t *testing.T) {
	srv, recorded := newCompletionServer(t, func(_ int, w http.ResponseWriter) {
		_, _ = w.Write([]byte(completionBody("hello meow")))
	})
	c, err := NewClient(StaticKey("sk-test"), "openai/gpt-4o-mini", WithBaseURL(srv.URL))
	require.NoError(t, err)

	res, err := c.Generate(context.Background(), GenerateInput{
		Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		Temperature: 0.85,
		MaxTokens:   300,
	})
	require.NoError(t, err)
	require.Equal(t, "hello meow", res.Content)
	require.Equal(t, "openai/gpt-4o-mini", res.ModelUsed)
	require.False(t, res.WasBackup)

	require.Len(t, *recorded, 1)
	req := (*recorded)[0]
	require.Equal(t, "/chat/completions", req.path)
	require.Equal(t, "Bearer sk-test", req.auth)
	require.Equal(t, "openai/gpt-4o-mini", req.payload.Model)
	require.Empty(t, req.payload.ToolChoice)
}

func TestGenerate_ToolChoiceDefaultsToAuto(t *testing.T) {
	srv, recorded := newCompletionServer(t, func(_ int, w http.ResponseWriter) {
		_, _ = w.Write([]byte(completionBody("ok")))
	})
	c, err := NewClient(StaticKey("sk-test"), "m", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), GenerateInput{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "set a timer"}},
		Tools:    []Tool{{Type: "function", Function: ToolFunction{Name: "set_timer"}}},
	})
	require.NoError(t, err)
	require.Equal(t, "auto", (*recorded)[0].payload.ToolChoice)
}

func TestGenerate_ReturnsToolCalls(t *testing.T) {
	srv, _ := newCompletionServer(t, func(_ int, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"",` +
			`"tool_calls":[{"id":"call-1","type":"function","function":{"name":"set_timer","arguments":"{\"time\":\"00:05:00\"}"}}]}}]}`))
	})
	c, err := NewClient(StaticKey("sk-test"), "m", WithBaseURL(srv.URL))
	require.NoError(t, err)

	res, err := c.Generate(context.Background(), GenerateInput{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "timer please"}},
	})
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	require.Equal(t, "set_timer", res.ToolCalls[0].Function.Name)
	require.Equal(t, `{"time":"00:05:00"}`, res.ToolCalls[0].Function.Arguments)
}

func TestGenerate_BackupFallback(t *testing.T) {
	srv, recorded := newCompletionServer(t, func(call int, w http.ResponseWriter) {
		if call == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(completionBody("from backup")))
	})
	c, err := NewClient(StaticKey("sk-test"), "primary/model",
		WithBaseURL(srv.URL),
		WithBackupModels([]string{"backup/model"}),
	)
	require.NoError(t, err)

	res, err := c.Generate(context.Background(), GenerateInput{
		Messages:  []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		UseBackup: true,
	})
	require.NoError(t, err)
	require.Equal(t, "from backup", res.Content)
	require.Equal(t, "backup/model", res.ModelUsed)
	require.True(t, res.WasBackup)

	require.Len(t, *recorded, 2)
	require.Equal(t, "primary/model", (*recorded)[0].payload.Model)
	require.Equal(t, "backup/model", (*recorded)[1].payload.Model)
}

func TestGenerate_NoBackupWithoutFlag(t *testing.T) {
	srv, recorded := newCompletionServer(t, func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c, err := NewClient(StaticKey("sk-test"), "primary/model",
		WithBaseURL(srv.URL),
		WithBackupModels([]string{"backup/model"}),
	)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), GenerateInput{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	require.Len(t, *recorded, 1)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.HTTPStatusCode())
}

func TestAnalyzeImage_StripsDataURLAndBuildsParts(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(completionBody("a screenshot")))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(StaticKey("sk-test"), "m", WithBaseURL(srv.URL), WithVisionModel("openai/gpt-4-turbo"))
	require.NoError(t, err)

	res, err := c.AnalyzeImage(context.Background(), AnalyzeImageInput{
		ImageBase64: "data:image/png;base64,aW1n",
		Prompt:      "what is this",
	})
	require.NoError(t, err)
	require.Equal(t, "a screenshot", res.Content)
	require.Equal(t, "openai/gpt-4-turbo", captured["model"])

	messages := captured["messages"].([]any)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Equal(t, "what is this", parts[0].(map[string]any)["text"])
	imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	require.Equal(t, "data:image/jpeg;base64,aW1n", imageURL)
}

func TestAnalyzeImage_EmptyImage(t *testing.T) {
	c, err := NewClient(StaticKey("sk-test"), "m")
	require.NoError(t, err)

	_, err = c.AnalyzeImage(context.Background(), AnalyzeImageInput{Prompt: "p"})
	require.Error(t, err)
}

func TestVisionCapable(t *testing.T) {
	filtered := visionCapable([]string{
		"openai/gpt-4-turbo",
		"anthropic/claude-3-haiku",
		"meta-llama/llama-3-8b",
		"google/gemini-flash",
		"some/vision-model",
	})
	require.Equal(t, []string{
		"openai/gpt-4-turbo",
		"anthropic/claude-3-haiku",
		"google/gemini-flash",
		"some/vision-model",
	}, filtered)
}

func TestStaticKey(t *testing.T) {
	key, err := StaticKey("sk-abc").APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-abc", key)
}

type stubGetter struct {
	value string
	err   error
	name  string
}

func (s *stubGetter) GetParameter(_ context.Context, name string) (string, error) {
	s.name = name
	return s.value, s.err
}

func TestParamStoreKey(t *testing.T) {
	getter := &stubGetter{value: `{"token":"sk-from-ssm"}`}
	key, err := ParamStoreKey{Getter: getter, Name: "/app/openrouter-api-key"}.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", key)
	require.Equal(t, "/app/openrouter-api-key", getter.name)
}

func TestParamStoreKey_Errors(t *testing.T) {
	_, err := ParamStoreKey{Name: "n"}.APIKey(context.Background())
	require.Error(t, err)

	_, err = ParamStoreKey{Getter: &stubGetter{value: "{}"}, Name: "n"}.APIKey(context.Background())
	require.Error(t, err)

	_, err = ParamStoreKey{Getter: &stubGetter{value: "not-json"}, Name: "n"}.APIKey(context.Background())
	require.Error(t, err)

	_, err = ParamStoreKey{Getter: &stubGetter{err: errors.New("denied")}, Name: "n"}.APIKey(context.Background())
	require.Error(t, err)
}

func TestKeyResolvedOnce(t *testing.T) {
	srv, _ := newCompletionServer(t, func(_ int, w http.ResponseWriter) {
		_, _ = w.Write([]byte(completionBody("ok")))
	})
	getter := &stubGetter{value: `{"token":"sk-once"}`}
	calls := 0
	counting := keySourceFunc(func(ctx context.Context) (string, error) {
		calls++
		return ParamStoreKey{Getter: getter, Name: "n"}.APIKey(ctx)
	})

	c, err := NewClient(counting, "m", WithBaseURL(srv.URL))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = c.Generate(context.Background(), GenerateInput{
			Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		})
		require.NoError(t, err)
	}
	require.Equal(t, 1, calls)
}

type keySourceFunc func(ctx context.Context) (string, error)

func (f keySourceFunc) APIKey(ctx context.Context) (string, error) {
	return f(ctx)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":"openai/gpt-4o-mini","name":"GPT-4o mini"}]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(StaticKey("sk-test"), "m", WithBaseURL(srv.URL))
	require.NoError(t, err)

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "openai/gpt-4o-mini", models[0].ID)
}
