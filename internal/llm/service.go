package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/docchat/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrNoVariants    = errors.New("llm: no model variants configured")
	ErrEmptyResponse = errors.New("empty response from model")
)

// Variant is one model configuration in the fallback chain.
type Variant struct {
	Model   string
	Timeout time.Duration
}

// Service sends prompts to the provider, walking an ordered list of model
// variants until one of them answers.
type Service struct {
	llm      llms.Model
	variants []Variant
	logger   *zap.Logger
}

func New(model llms.Model, variants []Variant, logger *zap.Logger) (*Service, error) {
	if model == nil {
		return nil, errors.New("llm: model must not be nil")
	}
	if len(variants) == 0 {
		return nil, ErrNoVariants
	}
	for i, v := range variants {
		if strings.TrimSpace(v.Model) == "" {
			return nil, fmt.Errorf("llm: variant %d has no model name", i)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		llm:      model,
		variants: append([]Variant(nil), variants...),
		logger:   logger,
	}, nil
}

// Variants returns the fallback chain in priority order.
func (s *Service) Variants() []Variant {
	return append([]Variant(nil), s.variants...)
}

// Generate tries each variant once, in order, and returns the first non-empty
// reply. Every call starts again from the first variant. When all of them
// fail the error is an *ExhaustedError. If ctx ends partway through the chain
// the returned error wraps ctx.Err() and every *AttemptError seen so far.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	var errs error
	for i, v := range s.variants {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("llm: generation stopped before model %s: %w",
				v.Model, multierr.Append(err, errs))
		}

		s.logger.Info("Trying model",
			zap.String("model", v.Model),
			zap.Int("attempt", i+1),
			zap.Int("variants", len(s.variants)))

		start := time.Now()
		text, err := s.attempt(ctx, v, prompt)
		metrics.GenerationDuration.WithLabelValues(v.Model).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.GenerationAttempts.WithLabelValues(v.Model, metrics.OutcomeSuccess).Inc()
			return text, nil
		}

		metrics.GenerationAttempts.WithLabelValues(v.Model, metrics.OutcomeFailure).Inc()
		s.logger.Warn("Model failed, trying next",
			zap.String("model", v.Model),
			zap.Int("attempt", i+1),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		errs = multierr.Append(errs, &AttemptError{Model: v.Model, Err: err})
	}
	return "", &ExhaustedError{errs: errs}
}

func (s *Service) attempt(ctx context.Context, v Variant, prompt string) (text string, err error) {
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	// A malformed provider payload can panic inside the SDK; treat it as a
	// failed attempt.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("provider panic: %v", r)
		}
	}()

	text, err = llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, llms.WithModel(v.Model))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// AttemptError records why one variant failed.
type AttemptError struct {
	Model string
	Err   error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every variant failed.
type ExhaustedError struct {
	errs error
}

// Attempts returns the failure of every variant in the order they were tried.
func (e *ExhaustedError) Attempts() []*AttemptError {
	var out []*AttemptError
	for _, err := range multierr.Errors(e.errs) {
		var ae *AttemptError
		if errors.As(err, &ae) {
			out = append(out, ae)
		}
	}
	return out
}

// Last returns the failure of the last variant tried.
func (e *ExhaustedError) Last() *AttemptError {
	attempts := e.Attempts()
	if len(attempts) == 0 {
		return nil
	}
	return attempts[len(attempts)-1]
}

func (e *ExhaustedError) Error() string {
	last := e.Last()
	if last == nil {
		return "llm: all model variants failed"
	}
	return fmt.Sprintf("llm: all %d model variants failed, last error from %s: %v",
		len(e.Attempts()), last.Model, last.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.errs
}
