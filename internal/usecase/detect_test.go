package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"focus-agent/internal/integrations/openrouter"
	"focus-agent/internal/media"
)

// seqLLM returns canned AnalyzeImage results in order.
type seqLLM struct {
	results []openrouter.Result
	errs    []error
	calls   []openrouter.AnalyzeImageInput
}

func (s *seqLLM) Generate(context.Context, openrouter.GenerateInput) (openrouter.Result, error) {
	return openrouter.Result{}, errors.New("not used")
}

func (s *seqLLM) AnalyzeImage(_ context.Context, in openrouter.AnalyzeImageInput) (openrouter.Result, error) {
	idx := len(s.calls)
	s.calls = append(s.calls, in)
	var res openrouter.Result
	var err error
	if idx < len(s.results) {
		res = s.results[idx]
	}
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	return res, err
}

func TestParseAnalysis(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		activity string
		studying bool
		details  string
		person   bool
	}{
		{
			name:     "structured screen reply",
			in:       "ACTIVITY: Writing code in VS Code\nIS_STUDYING: yes\nDETAILS: Editing main.go in a Go project",
			activity: "Writing code in VS Code",
			studying: true,
			details:  "Editing main.go in a Go project",
		},
		{
			name:     "structured camera reply",
			in:       "PERSON_PRESENT: yes\nACTIVITY: Looking at the screen\nIS_STUDYING: yes\nDETAILS: Engaged at desk",
			activity: "Looking at the screen",
			studying: true,
			details:  "Engaged at desk",
			person:   true,
		},
		{
			name:     "details continuation lines",
			in:       "ACTIVITY: Browsing Reddit\nIS_STUDYING: no\nDETAILS: Scrolling the front page\nMultiple tabs open",
			activity: "Browsing Reddit",
			studying: false,
			details:  "Scrolling the front page\nMultiple tabs open",
		},
		{
			name:     "lowercase labels",
			in:       "activity: reading a textbook\nis_studying: Yes\ndetails: chapter 4",
			activity: "reading a textbook",
			studying: true,
			details:  "chapter 4",
		},
		{
			name:     "keyword fallback studying",
			in:       "The user appears to be coding in an IDE.",
			activity: "coding",
			studying: true,
		},
		{
			name:     "keyword fallback distraction",
			in:       "The user is watching YouTube videos.",
			activity: "youtube",
			studying: false,
		},
		{
			name:     "no signal",
			in:       "Unable to determine anything from this image.",
			studying: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := parseAnalysis(tc.in)
			require.Equal(t, tc.activity, p.activity)
			require.Equal(t, tc.studying, p.isStudying)
			require.Equal(t, tc.details, p.details)
			require.Equal(t, tc.person, p.personPresent)
		})
	}
}

func TestAnalyzeScreen_MissingImage(t *testing.T) {
	d, err := NewDetectionService(&seqLLM{})
	require.NoError(t, err)

	_, err = d.AnalyzeScreen(context.Background(), media.Payload{})
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInvalidInput, ucErr.Code)
}

func TestAnalyzeScreen_TwoPasses(t *testing.T) {
	llm := &seqLLM{results: []openrouter.Result{
		{Content: "Visual Studio Code\nmain.go", ModelUsed: "openai/gpt-4-turbo"},
		{Content: "ACTIVITY: Writing Go code\nIS_STUDYING: yes\nDETAILS: main.go open", ModelUsed: "openai/gpt-4o"},
	}}
	d, err := NewDetectionService(llm)
	require.NoError(t, err)

	report, err := d.AnalyzeScreen(context.Background(), media.Payload{Base64: "aW1n"})
	require.NoError(t, err)
	require.Equal(t, "Visual Studio Code\nmain.go", report.TextExtracted)
	require.Equal(t, "Writing Go code", report.Activity)
	require.True(t, report.IsStudying)
	require.Equal(t, "openai/gpt-4-turbo", report.OCRModelUsed)
	require.Equal(t, "openai/gpt-4o", report.VisionModelUsed)
	require.Empty(t, report.WarningMessage)
	require.Nil(t, report.WarningAudio)

	require.Len(t, llm.calls, 2)
	require.False(t, llm.calls[0].UseBackup)
	require.InDelta(t, 0.1, llm.calls[0].Temperature, 0.001)
	require.True(t, llm.calls[1].UseBackup)
	require.Contains(t, llm.calls[1].Prompt, "Visual Studio Code")
}

func TestAnalyzeScreen_OCRFailureDegrades(t *testing.T) {
	llm := &seqLLM{
		results: []openrouter.Result{{}, {Content: "ACTIVITY: Reading docs\nIS_STUDYING: yes\nDETAILS: browser"}},
		errs:    []error{errors.New("ocr model down")},
	}
	d, err := NewDetectionService(llm)
	require.NoError(t, err)

	report, err := d.AnalyzeScreen(context.Background(), media.Payload{Base64: "aW1n"})
	require.NoError(t, err)
	require.Empty(t, report.TextExtracted)
	require.Equal(t, "Reading docs", report.Activity)
}

func TestAnalyzeScreen_WarningWhenNotStudying(t *testing.T) {
	llm := &seqLLM{results: []openrouter.Result{
		{Content: "Discord"},
		{Content: "ACTIVITY: chatting on Discord\nIS_STUDYING: no\nDETAILS: messaging"},
	}}
	speech := &stubSpeech{}
	d, err := NewDetectionService(llm, WithWarningSpeech(speech))
	require.NoError(t, err)

	report, err := d.AnalyzeScreen(context.Background(), media.Payload{Base64: "aW1n"})
	require.NoError(t, err)
	require.False(t, report.IsStudying)
	require.Equal(t, "Hey! Looks like you are doing chatting on Discord, you should be focusing!", report.WarningMessage)
	require.NotNil(t, report.WarningAudio)
	require.Equal(t, []string{report.WarningMessage}, speech.ttsCalls)
}

func TestAnalyzeScreen_RetiredOCRModelRejected(t *testing.T) {
	llm := &seqLLM{results: []openrouter.Result{{Content: "text"}, {Content: "ACTIVITY: x\nIS_STUDYING: yes\nDETAILS: y"}}}
	d, err := NewDetectionService(llm, WithOCRModel("google/gemini-pro-vision"))
	require.NoError(t, err)

	_, err = d.AnalyzeScreen(context.Background(), media.Payload{Base64: "aW1n"})
	require.NoError(t, err)
	require.Empty(t, llm.calls[0].Model)
}

func TestAnalyzeCamera_PersonAbsentForcesNotStudying(t *testing.T) {
	llm := &seqLLM{results: []openrouter.Result{
		{Content: "PERSON_PRESENT: no\nACTIVITY:\nIS_STUDYING: yes\nDETAILS: empty chair"},
	}}
	d, err := NewDetectionService(llm)
	require.NoError(t, err)

	report, err := d.AnalyzeCamera(context.Background(), media.Payload{Base64: "aW1n"})
	require.NoError(t, err)
	require.False(t, report.PersonPresent)
	require.False(t, report.IsStudying)
	require.Equal(t, "No person detected", report.Activity)
	require.NotEmpty(t, report.WarningMessage)
}

func TestAnalyzeCamera_Studying(t *testing.T) {
	llm := &seqLLM{results: []openrouter.Result{
		{Content: "PERSON_PRESENT: yes\nACTIVITY: Looking at the screen\nIS_STUDYING: yes\nDETAILS: engaged"},
	}}
	d, err := NewDetectionService(llm)
	require.NoError(t, err)

	report, err := d.AnalyzeCamera(context.Background(), media.Payload{Base64: "aW1n"})
	require.NoError(t, err)
	require.True(t, report.PersonPresent)
	require.True(t, report.IsStudying)
	require.Empty(t, report.WarningMessage)
}

func TestAnalyzeCamera_UpstreamError(t *testing.T) {
	llm := &seqLLM{errs: []error{&openrouter.HTTPStatusError{StatusCode: 502}}}
	d, err := NewDetectionService(llm)
	require.NoError(t, err)

	_, err = d.AnalyzeCamera(context.Background(), media.Payload{Base64: "aW1n"})
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorUpstream, ucErr.Code)
}

func TestCaption_SavesAndAnalyzes(t *testing.T) {
	llm := &seqLLM{results: []openrouter.Result{{Content: "A code editor is open."}}}
	d, err := NewDetectionService(llm, WithUploadSaver(media.Saver{Dir: t.TempDir()}))
	require.NoError(t, err)

	analysis, path, err := d.Caption(context.Background(), "screen", media.Payload{Base64: "aW1n", MIME: "image/png"})
	require.NoError(t, err)
	require.Equal(t, "A code editor is open.", analysis)
	require.Contains(t, path, ".png")
	require.Contains(t, llm.calls[0].Prompt, "screen")
}

func TestCaption_InvalidBase64(t *testing.T) {
	d, err := NewDetectionService(&seqLLM{})
	require.NoError(t, err)

	_, _, err = d.Caption(context.Background(), "camera", media.Payload{Base64: "!!!"})
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInvalidInput, ucErr.Code)
}

func TestSaveVideo(t *testing.T) {
	d, err := NewDetectionService(&seqLLM{}, WithUploadSaver(media.Saver{Dir: t.TempDir()}))
	require.NoError(t, err)

	path, size, err := d.SaveVideo(media.Payload{Base64: "dmlkZW8=", MIME: "video/webm"})
	require.NoError(t, err)
	require.Equal(t, 5, size)
	require.Contains(t, path, ".webm")
}
