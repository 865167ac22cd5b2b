package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/newsdigest/internal/cache"
)

const (
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 400
	DefaultCallsPerMinute = 20
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = time.Second
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("empty completion")

// Prompt is one system+user exchange. Zero Temperature and MaxTokens take
// the package defaults.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer produces a text completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ChatCompleter calls a chat model through Client with rate limiting and
// exponential-backoff retry on transient failures.
type ChatCompleter struct {
	Client  Client
	Model   string
	Limiter *RateLimiter
	// MaxAttempts includes the first call.
	MaxAttempts int
	// BaseDelay doubles after each failed attempt.
	BaseDelay time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
	// Cache memoizes completions by model and prompt text when set.
	Cache *cache.LLMCache
}

// NewChatCompleter returns a completer with the default limits.
func NewChatCompleter(client Client, model string) *ChatCompleter {
	return &ChatCompleter{
		Client:      client,
		Model:       model,
		Limiter:     NewRateLimiter(DefaultCallsPerMinute),
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

func (c *ChatCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.Client == nil {
		return "", errors.New("llm client not configured")
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	logger := zerolog.Ctx(ctx)

	key := cache.KeyFrom(c.Model, p.System+"\n\n"+p.User)
	if c.Cache != nil {
		if b, ok, err := c.Cache.Get(ctx, key); err == nil && ok {
			logger.Debug().Str("model", c.Model).Msg("llm cache hit")
			return string(b), nil
		}
	}

	req := openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		N:           1,
	}
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := c.BaseDelay
	if delay <= 0 {
		delay = DefaultBaseDelay
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := c.Limiter.Wait(ctx); err != nil {
			return "", err
		}
		resp, err := c.Client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", ErrEmptyResponse
			}
			text := strings.TrimSpace(resp.Choices[0].Message.Content)
			if c.Cache != nil {
				if err := c.Cache.Save(ctx, key, []byte(text)); err != nil {
					logger.Debug().Err(err).Msg("llm cache save failed")
				}
			}
			return text, nil
		}
		lastErr = err
		if !IsTransient(err) || i == attempts-1 || ctx.Err() != nil {
			break
		}
		wait := delay << i
		logger.Warn().Err(err).Int("attempt", i+1).Dur("backoff", wait).Msg("transient llm error, retrying")
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("chat completion: %w", lastErr)
}

func (c *ChatCompleter) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

// IsTransient reports whether err is worth retrying: rate limiting, server
// unavailability or a timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
