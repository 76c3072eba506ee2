package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

type reply struct {
	text      string
	err       error
	noChoices bool
	block     bool
	panics    bool
}

// scriptedModel answers per model name and records which models were asked.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []string
	prompts []string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	m.mu.Lock()
	m.calls = append(m.calls, opts.Model)
	if len(msgs) > 0 && len(msgs[0].Parts) > 0 {
		if tc, ok := msgs[0].Parts[0].(llms.TextContent); ok {
			m.prompts = append(m.prompts, tc.Text)
		}
	}
	r, ok := m.replies[opts.Model]
	m.mu.Unlock()

	switch {
	case !ok:
		return nil, fmt.Errorf("unknown model %s", opts.Model)
	case r.block:
		<-ctx.Done()
		return nil, ctx.Err()
	case r.panics:
		panic("nil candidate")
	case r.err != nil:
		return nil, r.err
	case r.noChoices:
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.text}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) calledModels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func variants(names ...string) []Variant {
	out := make([]Variant, 0, len(names))
	for _, n := range names {
		out = append(out, Variant{Model: n, Timeout: time.Second})
	}
	return out
}

func newTestService(t *testing.T, model llms.Model, vs []Variant) *Service {
	t.Helper()
	svc, err := New(model, vs, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNew_ValidatesArguments(t *testing.T) {
	_, err := New(nil, variants("a"), zap.NewNop())
	require.Error(t, err)

	_, err = New(&scriptedModel{}, nil, zap.NewNop())
	require.ErrorIs(t, err, ErrNoVariants)

	_, err = New(&scriptedModel{}, []Variant{{Model: " "}}, zap.NewNop())
	require.Error(t, err)

	svc, err := New(&scriptedModel{}, variants("a", "b"), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, []string{svc.Variants()[0].Model, svc.Variants()[1].Model})
}

func TestGenerate_FirstVariantSucceeds(t *testing.T) {
	model := &scriptedModel{replies: map[string]reply{
		"a": {text: "Hi there"},
		"b": {text: "unused"},
	}}
	svc := newTestService(t, model, variants("a", "b"))

	text, err := svc.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hi there", text)
	require.Equal(t, []string{"a"}, model.calledModels())
	require.Equal(t, []string{"Hello"}, model.prompts)
}

func TestGenerate_StopsAtFirstSuccess(t *testing.T) {
	model := &scriptedModel{replies: map[string]reply{
		"a": {err: errors.New("quota exceeded")},
		"b": {text: "from b"},
		"c": {text: "from c"},
	}}
	svc := newTestService(t, model, variants("a", "b", "c"))

	text, err := svc.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "from b", text)
	require.Equal(t, []string{"a", "b"}, model.calledModels())
}

func TestGenerate_AllVariantsFail(t *testing.T) {
	lastCause := errors.New("model overloaded")
	model := &scriptedModel{replies: map[string]reply{
		"a": {err: errors.New("quota exceeded")},
		"b": {text: "   "},
		"c": {err: lastCause},
	}}
	svc := newTestService(t, model, variants("a", "b", "c"))

	_, err := svc.Generate(context.Background(), "prompt")
	require.Error(t, err)
	require.Equal(t, []string{"a", "b", "c"}, model.calledModels())

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "c", exhausted.Last().Model)
	require.Contains(t, err.Error(), "c")
	require.Contains(t, err.Error(), "model overloaded")
	require.ErrorIs(t, err, lastCause)
	require.ErrorIs(t, err, ErrEmptyResponse)

	attempts := exhausted.Attempts()
	require.Len(t, attempts, 3)
	require.Equal(t, "a", attempts[0].Model)
	require.EqualError(t, attempts[0].Err, "quota exceeded")
	require.Equal(t, "b", attempts[1].Model)
	require.ErrorIs(t, attempts[1].Err, ErrEmptyResponse)
}

func TestGenerate_EmptyAndMalformedPayloadsFallThrough(t *testing.T) {
	model := &scriptedModel{replies: map[string]reply{
		"empty":    {text: ""},
		"nochoice": {noChoices: true},
		"panics":   {panics: true},
		"ok":       {text: "answer"},
	}}
	svc := newTestService(t, model, variants("empty", "nochoice", "panics", "ok"))

	text, err := svc.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "answer", text)
	require.Equal(t, []string{"empty", "nochoice", "panics", "ok"}, model.calledModels())
}

func TestGenerate_PerVariantTimeout(t *testing.T) {
	model := &scriptedModel{replies: map[string]reply{
		"slow": {block: true},
		"fast": {text: "quick"},
	}}
	svc := newTestService(t, model, []Variant{
		{Model: "slow", Timeout: 20 * time.Millisecond},
		{Model: "fast", Timeout: time.Second},
	})

	text, err := svc.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "quick", text)
	require.Equal(t, []string{"slow", "fast"}, model.calledModels())
}

func TestGenerate_RestartsFromTopEachCall(t *testing.T) {
	model := &scriptedModel{replies: map[string]reply{
		"a": {err: errors.New("down")},
		"b": {text: "ok"},
	}}
	svc := newTestService(t, model, variants("a", "b"))

	for i := 0; i < 2; i++ {
		_, err := svc.Generate(context.Background(), "prompt")
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a", "b", "a", "b"}, model.calledModels())
}

func TestGenerate_CanceledContext(t *testing.T) {
	model := &scriptedModel{replies: map[string]reply{"a": {text: "never"}}}
	svc := newTestService(t, model, variants("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Generate(ctx, "prompt")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, model.calledModels())
}

func TestGenerate_CanceledMidChainKeepsAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cause := errors.New("quota exceeded")
	model := &cancelingModel{
		scriptedModel: scriptedModel{replies: map[string]reply{
			"a": {err: cause},
			"b": {text: "never"},
		}},
		cancel: cancel,
	}
	svc := newTestService(t, model, variants("a", "b"))

	_, err := svc.Generate(ctx, "prompt")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, cause)
	require.ErrorContains(t, err, "before model b")

	var attempt *AttemptError
	require.ErrorAs(t, err, &attempt)
	require.Equal(t, "a", attempt.Model)
	require.Equal(t, []string{"a"}, model.calledModels())
}

// cancelingModel cancels the caller's context after answering.
type cancelingModel struct {
	scriptedModel
	cancel context.CancelFunc
}

func (m *cancelingModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	defer m.cancel()
	return m.scriptedModel.GenerateContent(ctx, msgs, options...)
}

func (m *cancelingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
