package translate

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/subtitler/pipeline/errors"
)

// SimpleProvider is the minimal capability the simple backend needs from a
// translation vendor: one string in, one string out.
type SimpleProvider interface {
	TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// SimpleBackend translates strings one at a time with exponential backoff
// on transient provider errors (§4.1: base 500ms, cap 8s, max 5 attempts).
// It has no real batch API, so TranslateBatch simply loops.
type SimpleBackend struct {
	Provider SimpleProvider
}

func (b *SimpleBackend) TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	var result string
	operation := func() error {
		out, err := b.Provider.TranslateOne(ctx, text, sourceLang, targetLang)
		if err != nil {
			if !errors.IsRetriable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = out
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 8 * time.Second
	bo.MaxElapsedTime = 0
	boCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 4), ctx)
	if err := backoff.Retry(operation, boCtx); err != nil {
		return "", err
	}
	return result, nil
}

func (b *SimpleBackend) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		translated, err := b.TranslateOne(ctx, t, sourceLang, targetLang)
		if err != nil {
			return nil, err
		}
		out[i] = translated
	}
	return out, nil
}

// OpenAISimpleProvider translates one string per chat completion call, the
// "simple" vendor implementation behind SimpleBackend.
type OpenAISimpleProvider struct {
	Client *openai.Client
	Model  string
}

func NewOpenAISimpleProvider(apiKey string) *OpenAISimpleProvider {
	return &OpenAISimpleProvider{Client: openai.NewClient(apiKey), Model: openai.GPT4oMini}
}

func (p *OpenAISimpleProvider) TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	resp, err := p.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Translate the user's text from " + sourceLang + " to " + targetLang + ". Reply with the translation only."},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", classifyProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.BackendUnavailable, "provider returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyProviderError(err error) *errors.TypedError {
	if apiErr, ok := err.(*openai.APIError); ok {
		switch {
		case apiErr.HTTPStatusCode == 408 || apiErr.HTTPStatusCode == 504:
			return errors.New(errors.BackendTimeout, "translation provider timed out", err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return errors.New(errors.BackendUnavailable, "translation provider unavailable", err)
		}
	}
	return errors.New(errors.BackendUnavailable, "translation request failed", err)
}
