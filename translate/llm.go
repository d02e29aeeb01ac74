package translate

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/subtitler/pipeline/errors"
	"github.com/subtitler/pipeline/log"
)

const sentinel = "###TRANSLATION_COMPLETE###"

// LLMProvider is the minimal capability the batched LLM backend needs: one
// chat-style call per attempt.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMBackend implements the batched sentinel-discipline protocol (§4.1):
// each call sends numbered segments plus an end-sentinel the model must
// echo; missing indices are recovered with up to MaxRetries additional
// calls scoped to just the gap before the batch is declared incomplete.
type LLMBackend struct {
	Provider   LLMProvider
	Limiter    *rate.Limiter
	MaxRetries int
	TaskID     string
}

func NewLLMBackend(provider LLMProvider, maxRetries int) *LLMBackend {
	return &LLMBackend{Provider: provider, MaxRetries: maxRetries, Limiter: rate.NewLimiter(rate.Limit(4), 4)}
}

func (b *LLMBackend) TranslateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	out, err := b.TranslateBatch(ctx, []string{text}, sourceLang, targetLang)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// TranslateBatch runs the sentinel retry protocol across indices
// [0, len(texts)), re-issuing calls scoped to just the still-missing
// indices until MaxRetries is exhausted.
func (b *LLMBackend) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	out, _, err := b.translateBatch(ctx, texts, sourceLang, targetLang)
	return out, err
}

// TranslateBatchStats is TranslateBatch plus the retry count the sentinel
// protocol needed, satisfying translate.StatefulBatchTranslator.
func (b *LLMBackend) TranslateBatchStats(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, BatchStats, error) {
	out, retries, err := b.translateBatch(ctx, texts, sourceLang, targetLang)
	return out, BatchStats{RetryCount: retries}, err
}

func (b *LLMBackend) translateBatch(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, int, error) {
	result := make([]string, len(texts))
	have := make([]bool, len(texts))
	missing := allIndices(len(texts))

	retryCount := 0
	for attempt := 0; attempt <= b.MaxRetries && len(missing) > 0; attempt++ {
		if attempt > 0 {
			retryCount++
		}
		if err := b.Limiter.Wait(ctx); err != nil {
			return nil, retryCount, errors.New(errors.Cancelled, "translation cancelled while rate-limited", err)
		}

		prompt := buildPrompt(texts, missing, sourceLang, targetLang)
		resp, err := b.Provider.Complete(ctx, prompt)
		if err != nil {
			return nil, retryCount, classifyProviderError(err)
		}

		parsed, truncated := parseResponse(resp, missing)
		if truncated {
			log.Log(b.TaskID, "translation response missing sentinel, treating as truncated", "attempt", attempt)
		} else {
			for idx, text := range parsed {
				result[idx] = text
				have[idx] = true
			}
		}
		missing = stillMissing(have)
	}

	if len(missing) > 0 {
		return nil, retryCount, errors.New(errors.TranslationIncomplete, fmt.Sprintf("translation incomplete after %d retries", retryCount), nil).WithMissing(missing)
	}
	return result, retryCount, nil
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func stillMissing(have []bool) []int {
	var missing []int
	for i, ok := range have {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// buildPrompt renders the numbered-segment request described in §4.1: one
// line per requested index, followed by an instruction to echo the
// sentinel once the response is complete.
func buildPrompt(texts []string, indices []int, sourceLang, targetLang string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Translate each numbered line from %s to %s. Reply with one numbered line per input, preserving the numbers, followed by a final line containing exactly %s.\n", sourceLang, targetLang, sentinel)
	for _, idx := range indices {
		fmt.Fprintf(&sb, "%d: %s\n", idx, texts[idx])
	}
	return sb.String()
}

// parseResponse locates the sentinel and extracts numbered lines matching
// requested indices (§4.1 steps 1-2). truncated is true when the sentinel
// is absent, meaning the whole response must be treated as cut short.
func parseResponse(resp string, requested []int) (map[int]string, bool) {
	wanted := make(map[int]bool, len(requested))
	for _, idx := range requested {
		wanted[idx] = true
	}

	out := make(map[int]string)
	sawSentinel := false
	scanner := bufio.NewScanner(strings.NewReader(resp))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == sentinel {
			sawSentinel = true
			continue
		}
		idx, text, ok := parseNumberedLine(line)
		if !ok || !wanted[idx] {
			continue
		}
		out[idx] = text
	}
	return out, !sawSentinel
}

func parseNumberedLine(line string) (int, string, bool) {
	sep := strings.IndexByte(line, ':')
	if sep < 0 {
		return 0, "", false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(line[:sep]))
	if err != nil {
		return 0, "", false
	}
	return idx, strings.TrimSpace(line[sep+1:]), true
}

// OpenAILLMProvider is the default LLMProvider, backed by a chat
// completion call.
type OpenAILLMProvider struct {
	Client  *openai.Client
	Model   string
	Timeout time.Duration
}

func NewOpenAILLMProvider(apiKey string) *OpenAILLMProvider {
	return &OpenAILLMProvider{Client: openai.NewClient(apiKey), Model: openai.GPT4oMini, Timeout: 90 * time.Second}
}

func (p *OpenAILLMProvider) Complete(ctx context.Context, prompt string) (string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
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
