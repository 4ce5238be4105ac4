package consistency

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/novelflow/internal/telemetry"
)

const (
	defaultMaxRetries     = 2
	defaultInitialBackoff = 1 * time.Second
	maxReplyTokens        = 1024
)

// ErrOracleUnavailable is returned when no API key is configured.
var ErrOracleUnavailable = errors.New("consistency oracle unavailable")

// Oracle judges one consistency prompt and returns the raw reply text.
type Oracle interface {
	Judge(ctx context.Context, prompt string) (string, error)
}

// AnthropicOracle asks a Claude model for consistency judgments.
type AnthropicOracle struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicOracle creates an oracle. ANTHROPIC_API_KEY takes precedence
// over apiKey; with neither set it returns ErrOracleUnavailable.
func NewAnthropicOracle(apiKey, model string, opts ...option.RequestOption) (*AnthropicOracle, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or ai.api-key", ErrOracleUnavailable)
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	// Judge owns retries.
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	aiMetricsOnce.Do(initAIMetrics)

	return &AnthropicOracle{
		client:         anthropic.NewClient(opts...),
		model:          anthropic.Model(model),
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}, nil
}

// SetRetries overrides the retry policy.
func (o *AnthropicOracle) SetRetries(maxRetries int, initial time.Duration) {
	o.maxRetries = maxRetries
	o.initialBackoff = initial
}

// Model returns the model name, recorded in the audit log.
func (o *AnthropicOracle) Model() string {
	return string(o.model)
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/steveyegge/novelflow/ai")
	aiMetrics.inputTokens, _ = m.Int64Counter("nf.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("nf.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("nf.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Judge sends prompt and returns the first text block of the reply.
// Rate limits, 5xx responses and network timeouts are retried with
// exponential backoff.
func (o *AnthropicOracle) Judge(ctx context.Context, prompt string) (string, error) {
	tracer := telemetry.Tracer("github.com/steveyegge/novelflow/ai")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	modelAttr := attribute.String("nf.ai.model", string(o.model))
	span.SetAttributes(modelAttr, attribute.String("nf.ai.operation", "consistency"))

	params := anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: maxReplyTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	attempts := 0
	var text string
	op := func() error {
		attempts++
		t0 := time.Now()
		message, err := o.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !isRetryable(err) {
				return backoff.Permanent(fmt.Errorf("non-retryable error: %w", err))
			}
			return err
		}

		if aiMetrics.inputTokens != nil {
			aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
		}
		span.SetAttributes(
			attribute.Int64("nf.ai.input_tokens", message.Usage.InputTokens),
			attribute.Int64("nf.ai.output_tokens", message.Usage.OutputTokens),
		)

		if len(message.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("unexpected response format: no content blocks"))
		}
		content := message.Content[0]
		if content.Type != "text" {
			return backoff.Permanent(fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type))
		}
		text = content.Text
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(o.maxRetries, 0))), ctx)

	err := backoff.Retry(op, policy)
	span.SetAttributes(attribute.Int("nf.ai.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}
