package transcribe

import (
	"context"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/subtitle"
)

// OpenAIBackend transcribes via an OpenAI-compatible Whisper endpoint,
// grounded on the go-openai client the rest of the pack uses for LLM
// calls. The API returns segment timestamps in one response rather than
// streaming them, so Transcribe "replays" them through emit in order,
// which still lets the coordinator start translating the earliest batches
// while later ones in the same response are still being emitted.
type OpenAIBackend struct {
	Client  *openai.Client
	Model   string
	Timeout time.Duration
}

func NewOpenAIBackend(apiKey string) *OpenAIBackend {
	return &OpenAIBackend{
		Client:  openai.NewClient(apiKey),
		Model:   openai.Whisper1,
		Timeout: 30 * time.Minute,
	}
}

func (b *OpenAIBackend) Transcribe(ctx context.Context, audioPath string, sourceLanguage string, emit Emitter) (Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Result{}, errors.Newf(errors.AudioDecodeFailed, err, "failed opening audio file %s", audioPath)
	}
	defer f.Close()

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    b.Model,
		Reader:   f,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: sourceLanguage,
	}

	resp, err := b.Client.CreateTranscription(ctx, req)
	if err != nil {
		return Result{}, classifyOpenAIError(err)
	}

	for i, s := range resp.Segments {
		seg := subtitle.Segment{
			Index:   i,
			StartMs: int64(s.Start * 1000),
			EndMs:   int64(s.End * 1000),
			Text:    s.Text,
		}
		if err := emit.Emit(ctx, seg); err != nil {
			return Result{}, err
		}
	}

	lang := resp.Language
	if lang == "" {
		lang = sourceLanguage
	}
	return Result{Language: lang}, nil
}

func classifyOpenAIError(err error) *errors.TypedError {
	var apiErr *openai.APIError
	if e, ok := err.(*openai.APIError); ok {
		apiErr = e
	}
	if apiErr != nil {
		switch {
		case apiErr.HTTPStatusCode == 408 || apiErr.HTTPStatusCode == 504:
			return errors.New(errors.BackendTimeout, "transcription backend timed out", err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return errors.New(errors.BackendUnavailable, "transcription backend unavailable", err)
		case apiErr.HTTPStatusCode == 400:
			return errors.New(errors.AudioDecodeFailed, "transcription backend rejected the audio", err)
		}
	}
	return errors.New(errors.BackendUnavailable, "transcription request failed", err)
}
