// Package workflow drives complete analysis cycles: it feeds button
// events through a session state machine, calls the model API with
// retry, parses the response, and optionally persists the audit trail.
package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketlens/marketlens-cli/internal/fsm"
	"github.com/marketlens/marketlens-cli/internal/model"
	"github.com/marketlens/marketlens-cli/internal/parser"
	"github.com/marketlens/marketlens-cli/internal/resilience"
	"github.com/marketlens/marketlens-cli/internal/store"
	"github.com/marketlens/marketlens-cli/pkg/anthropic"
)

// Result is the outcome of one analysis cycle.
type Result struct {
	SessionID  string
	Button     model.ButtonType
	Ticker     string
	Prompt     string
	Response   string
	Parse      *model.ParseResult
	FinalState model.AppState
	Err        error
}

// Runner executes analysis cycles. Safe for concurrent use; each cycle
// runs on its own session state machine.
type Runner struct {
	client    anthropic.Client
	parser    *parser.Parser
	store     store.Store
	log       *zap.Logger
	model     string
	maxTokens int64
	timeout   time.Duration
	retry     resilience.RetryConfig
	pricing   anthropic.Pricing
	fsmOpts   []fsm.Option
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore enables audit persistence for sessions, transitions, and
// parse results.
func WithStore(st store.Store) Option {
	return func(r *Runner) { r.store = st }
}

// WithModel sets the model ID used for message requests.
func WithModel(id string) Option {
	return func(r *Runner) { r.model = id }
}

// WithMaxTokens caps response length.
func WithMaxTokens(n int64) Option {
	return func(r *Runner) { r.maxTokens = n }
}

// WithTimeout bounds each model API call.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithRetry overrides the retry policy for model API calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(r *Runner) { r.retry = cfg }
}

// WithPricing sets token pricing for cost attribution logs.
func WithPricing(p anthropic.Pricing) Option {
	return func(r *Runner) { r.pricing = p }
}

// WithManagerOptions forwards options to each cycle's state machine.
func WithManagerOptions(opts ...fsm.Option) Option {
	return func(r *Runner) { r.fsmOpts = append(r.fsmOpts, opts...) }
}

// New creates a Runner.
func New(client anthropic.Client, p *parser.Parser, log *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		client:    client,
		parser:    p,
		log:       log,
		model:     "claude-sonnet-4-5-20250929",
		maxTokens: 1024,
		timeout:   30 * time.Second,
		retry:     resilience.DefaultRetryConfig(),
		pricing:   anthropic.Pricing{InputPerMTok: 3.00, OutputPerMTok: 15.00},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs one full cycle for the given button and ticker. The
// returned Result always carries the final state and session ID; Err is
// set when the cycle ended in the error state instead of completing.
func (r *Runner) Execute(ctx context.Context, button model.ButtonType, ticker string) (*Result, error) {
	m := fsm.New("", r.log, r.fsmOpts...)
	res := &Result{SessionID: m.SessionID(), Button: button}
	defer r.persist(ctx, m, res)

	if !m.Transition(fsm.EventButtonClick, fsm.WithButton(button), fsm.WithTicker(ticker)) {
		res.FinalState = m.CurrentState()
		res.Err = eris.Errorf("workflow: button %q rejected", string(button))
		return res, res.Err
	}
	if !m.Transition(fsm.EventStartAIProcessing) {
		res.FinalState = m.CurrentState()
		res.Err = eris.New("workflow: prompt build failed")
		return res, res.Err
	}

	snap := m.Snapshot()
	res.Ticker = snap.Ticker
	res.Prompt = snap.Prompt

	text, err := r.callModel(ctx, snap.Prompt)
	if err != nil {
		if resilience.IsTimeout(err) {
			m.Transition(fsm.EventAITimeout, fsm.WithTimeout(r.timeout))
		} else {
			m.Transition(fsm.EventAIError, fsm.WithError(err.Error()))
		}
		res.FinalState = m.CurrentState()
		res.Err = err
		return res, err
	}
	res.Response = text

	if !m.Transition(fsm.EventResponseReceived, fsm.WithAIResponse(text)) {
		m.Transition(fsm.EventAIError, fsm.WithError("empty response"))
		res.FinalState = m.CurrentState()
		res.Err = eris.New("workflow: empty model response")
		return res, res.Err
	}

	parsed, err := r.parser.ParseAny(text, button.DataType(), res.Ticker)
	if err != nil {
		m.Transition(fsm.EventDisplayError, fsm.WithError(err.Error()))
		res.FinalState = m.CurrentState()
		res.Err = err
		return res, err
	}
	res.Parse = parsed

	if parsed.Confidence == model.ConfidenceFailed {
		m.Transition(fsm.EventParseFailed, fsm.WithParseResult(parsed))
	} else {
		m.Transition(fsm.EventParseSuccess, fsm.WithParseResult(parsed))
	}
	m.Transition(fsm.EventDisplayComplete)

	res.FinalState = m.CurrentState()
	return res, nil
}

// ExecuteAll runs one cycle per button concurrently against the same
// ticker, at most limit cycles at a time. Results keep button order.
// Cycles that end in the error state report through their Result; the
// returned error covers infrastructure failures only.
func (r *Runner) ExecuteAll(ctx context.Context, buttons []model.ButtonType, ticker string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = len(buttons)
	}
	results := make([]*Result, len(buttons))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, button := range buttons {
		g.Go(func() error {
			res, _ := r.Execute(ctx, button, ticker)
			results[i] = res
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "workflow: batch")
	}
	return results, nil
}

func (r *Runner) callModel(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger("create_message")

	resp, err := resilience.DoVal(callCtx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.model,
			MaxTokens: r.maxTokens,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return "", eris.Wrap(err, "workflow: model call")
	}

	resp.Usage.LogCost(r.model, r.pricing)
	return resp.Text(), nil
}

// persist writes the session, its transition history, and any parse
// result to the store. Persistence failures are logged, not returned:
// the cycle outcome stands on its own.
func (r *Runner) persist(ctx context.Context, m *fsm.Manager, res *Result) {
	if r.store == nil {
		return
	}
	// Audit writes should survive cancellation of the cycle context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.store.CreateSession(ctx, m.SessionID()); err != nil {
		r.log.Warn("persist session failed", zap.Error(err))
		return
	}
	for _, rec := range m.History() {
		if err := r.store.AppendTransition(ctx, m.SessionID(), rec); err != nil {
			r.log.Warn("persist transition failed", zap.Error(err))
		}
	}
	if res.Parse != nil {
		if err := r.store.SaveParseResult(ctx, m.SessionID(), res.Ticker, res.Parse); err != nil {
			r.log.Warn("persist parse result failed", zap.Error(err))
		}
	}
}
