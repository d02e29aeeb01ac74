// Package summary implements the Summary Hook (§4.9): a single post-task
// LLM call that condenses a translated subtitle artifact into markdown.
// Grounded on translate/llm.go's OpenAI chat-completion client, trimmed
// to a single non-retried call since a summary is advisory output, not a
// pipeline artifact subject to the retry/incomplete protocol.
package summary

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/subtitler/pipeline/config"
	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/log"
	"github.com/subtitler/pipeline/subtitle"
)

// Provider is the minimal capability the hook needs: one chat-style call.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Hook summarizes a task's translated subtitles. It runs only after a
// task reaches Succeeded and is never counted against the pipeline's
// stage timing budget (§4.9).
type Hook struct {
	Provider Provider
}

func NewHook(provider Provider) *Hook {
	return &Hook{Provider: provider}
}

// Summarize reads translatedSRTPath, builds a prompt, and returns the
// provider's markdown response. customPrompt, if non-empty, replaces the
// default instruction and is the only part of the prompt bounded by
// config.SummaryPromptMaxChars (§4.9) — the transcript body itself is
// unbounded.
func (h *Hook) Summarize(ctx context.Context, taskID, translatedSRTPath, summaryLang, customPrompt string) (string, error) {
	raw, err := os.ReadFile(translatedSRTPath)
	if err != nil {
		return "", errors.Newf(errors.Internal, err, "failed reading translated subtitles for summary")
	}

	segments, err := subtitle.Parse(string(raw))
	if err != nil {
		return "", errors.Newf(errors.Internal, err, "failed parsing translated subtitles for summary")
	}

	maxChars := config.SummaryPromptMaxChars
	if maxChars <= 0 {
		maxChars = 1500
	}
	if len(customPrompt) > maxChars {
		return "", errors.Newf(errors.PromptTooLong, nil, "custom summary prompt of %d characters exceeds the %d character limit", len(customPrompt), maxChars)
	}

	prompt := buildPrompt(segments, summaryLang, customPrompt)

	log.Log(taskID, "summary hook dispatching", "prompt_chars", len(prompt))
	markdown, err := h.Provider.Complete(ctx, prompt)
	if err != nil {
		return "", classifyProviderError(err)
	}
	return markdown, nil
}

func buildPrompt(segments []subtitle.Segment, summaryLang, customPrompt string) string {
	instruction := customPrompt
	if instruction == "" {
		instruction = fmt.Sprintf("Summarize the following subtitle transcript in %s as concise markdown with a short title and bullet points.", summaryLang)
	}

	var body string
	for _, s := range segments {
		body += s.Text + "\n"
	}
	return instruction + "\n\n" + body
}

func classifyProviderError(err error) *errors.TypedError {
	if e, ok := err.(*openai.APIError); ok {
		switch {
		case e.HTTPStatusCode == 408 || e.HTTPStatusCode == 504:
			return errors.New(errors.BackendTimeout, "summary backend timed out", err)
		case e.HTTPStatusCode == 429 || e.HTTPStatusCode >= 500:
			return errors.New(errors.BackendUnavailable, "summary backend unavailable", err)
		}
	}
	return errors.New(errors.BackendUnavailable, "summary request failed", err)
}

// OpenAIProvider is the default Provider, backed by a chat completion call.
type OpenAIProvider struct {
	Client  *openai.Client
	Model   string
	Timeout time.Duration
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{Client: openai.NewClient(apiKey), Model: openai.GPT4oMini, Timeout: 60 * time.Second}
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.Model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.BackendUnavailable, "provider returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
