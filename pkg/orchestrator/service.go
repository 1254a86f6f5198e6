// Package orchestrator runs a conversational turn: it prepares the session
// context, decides whether tools are needed, executes one plan per intent and
// synthesizes the answer, either as a whole or as a stream of events.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/compile"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/intent"
	"github.com/aretw0/waypoint/pkg/metrics"
	"github.com/aretw0/waypoint/pkg/plan"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/prompts"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/aretw0/waypoint/pkg/timeparse"
	"github.com/google/uuid"
)

// Turn modes reported to metrics.
const (
	ModeOrchestrated = "orchestrated"
	ModePlain        = "plain"
)

// DefaultStreamTimeout bounds a streamed turn.
const DefaultStreamTimeout = 30 * time.Second

// TimeoutMessage is the error text of a turn that ran out of time.
const TimeoutMessage = "The request took too long. Please try again."

const (
	chunkSize       = 48
	plainNoModelMsg = "I can help you plan trips, check departures, weather and snow, compare CO2 and look up train formations. Ask me for a connection, for example \"trains from Zurich to Bern tomorrow at 9\"."
)

// Service is the orchestration façade.
type Service struct {
	sessions    *session.Manager
	tools       plan.ToolRunner
	gen         ports.Generator
	extractor   ports.IntentExtractor
	prompts     ports.PromptSource
	decider     Decider
	compiler    *compile.Compiler
	parser      *timeparse.Parser
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
	preparer    *ContextPreparer
	coordinator *Coordinator
	synthesizer *Synthesizer
}

// Option configures the Service.
type Option func(*Service)

// WithGenerator configures the language model.
func WithGenerator(gen ports.Generator) Option {
	return func(s *Service) {
		s.gen = gen
	}
}

// WithExtractor replaces the intent extractor. By default an LLMExtractor is
// used when a generator is configured, the RuleExtractor otherwise.
func WithExtractor(e ports.IntentExtractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// WithPrompts configures the prompt templates.
func WithPrompts(src ports.PromptSource) Option {
	return func(s *Service) {
		s.prompts = src
	}
}

// WithDecider configures the orchestration decision.
func WithDecider(d Decider) Option {
	return func(s *Service) {
		s.decider = d
	}
}

// WithCompiler replaces the result compiler.
func WithCompiler(c *compile.Compiler) Option {
	return func(s *Service) {
		s.compiler = c
	}
}

// WithStreamTimeout configures the overall timeout of Stream.
func WithStreamTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// WithClock configures the time source for date resolution.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics configures metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService wires the façade over sessions and a tool runner.
func NewService(sessions *session.Manager, tools plan.ToolRunner, opts ...Option) *Service {
	s := &Service{
		sessions: sessions,
		tools:    tools,
		prompts:  prompts.Defaults(),
		decider:  NewDecider(),
		compiler: compile.NewCompiler(),
		timeout:  DefaultStreamTimeout,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = timeparse.New(timeparse.WithClock(s.now))
	if s.extractor == nil {
		rules := intent.NewRuleExtractor(intent.WithClock(s.now), intent.WithLogger(s.logger))
		if s.gen != nil {
			s.extractor = intent.NewLLMExtractor(s.gen,
				intent.WithPrompts(s.prompts),
				intent.WithFallback(rules),
				intent.WithLLMClock(s.now),
				intent.WithLLMLogger(s.logger),
			)
		} else {
			s.extractor = rules
		}
	}

	factory := plan.NewFactory(sessions, plan.WithTimeParser(s.parser), plan.WithLogger(s.logger))
	executor := plan.NewExecutor(tools, sessions, plan.WithExecutorLogger(s.logger), plan.WithMetrics(s.metrics))
	s.preparer = NewContextPreparer(sessions, s.extractor, s.parser, s.logger)
	s.coordinator = NewCoordinator(factory, executor, s.logger)
	s.synthesizer = NewSynthesizer(s.gen, s.prompts, s.logger)
	return s
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// Preview returns the plans a message would run, without executing them.
// Session state is updated as for a real turn.
func (s *Service) Preview(ctx context.Context, req Request) ([]*domain.ExecutionPlan, []domain.Intent, error) {
	if !nonEmpty(req.Message) {
		return nil, nil, domain.ErrEmptyMessage
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	var (
		plans   []*domain.ExecutionPlan
		intents []domain.Intent
	)
	err := s.sessions.WithTurn(ctx, req.SessionID, func(ctx context.Context) error {
		prep, err := s.preparer.Prepare(ctx, req)
		if err != nil {
			return err
		}
		intents = prep.Intents
		plans = s.coordinator.Plans(prep.Intents, prep.Context)
		return nil
	})
	return plans, intents, err
}

// Chat runs a turn and returns the complete answer.
func (s *Service) Chat(ctx context.Context, req Request) (*Response, error) {
	return s.run(ctx, req, nil)
}

// Stream runs a turn and emits its events: tool_call and tool_result per
// executed step, chunk frames of the answer, then complete. Failures are
// emitted as a final error frame; the returned error is only non-nil when emit
// itself fails.
func (s *Service) Stream(ctx context.Context, req Request, emit func(domain.StreamEvent) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out := &sink{emit: emit}
	resp, err := s.run(ctx, req, out)
	if out.err != nil {
		return out.err
	}
	if err != nil {
		return emit(errorEvent(ctx, err))
	}
	return emit(domain.CompleteEvent(resp.ToolCalls))
}

func errorEvent(ctx context.Context, err error) domain.StreamEvent {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.ErrorEvent(domain.StreamErrorTimeout, TimeoutMessage, true)
	case errors.Is(err, domain.ErrEmptyMessage):
		return domain.ErrorEvent(domain.StreamErrorGeneral, err.Error(), false)
	default:
		return domain.ErrorEvent(domain.StreamErrorGeneral, err.Error(), true)
	}
}

func (s *Service) run(ctx context.Context, req Request, out *sink) (*Response, error) {
	if !nonEmpty(req.Message) {
		return nil, domain.ErrEmptyMessage
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	var resp *Response
	err := s.sessions.WithTurn(ctx, req.SessionID, func(ctx context.Context) error {
		var err error
		resp, err = s.turn(ctx, req, out)
		return err
	})
	return resp, err
}

func (s *Service) turn(ctx context.Context, req Request, out *sink) (*Response, error) {
	log := s.logger.With("session_id", req.SessionID)

	// 1. Prepare
	prep, err := s.preparer.Prepare(ctx, req)
	if err != nil {
		s.metrics.Turn(ModePlain, false)
		return nil, err
	}
	c := prep.Context
	lang := req.Language
	if lang == "" {
		lang = c.Language
	}
	resp := &Response{SessionID: c.SessionID, Intents: prep.Intents}

	// 2. Decide and orchestrate
	if s.decider.RequiresOrchestration(req.Message, prep.Intents) {
		var obs plan.Observer
		if out != nil {
			obs = out
		}
		res, err := s.coordinator.Run(ctx, prep.Intents, c, obs)
		switch {
		case err == nil:
			summary := s.compiler.Compile(res)
			formatted := s.compiler.Format(res)
			opts := SynthesisOptions{Message: req.Message, Language: lang, Voice: req.VoiceEnabled}

			text, err := s.synthesize(ctx, formatted, summary, opts, out)
			if err != nil {
				s.metrics.Turn(ModeOrchestrated, false)
				return nil, err
			}
			resp.Response = text
			resp.ToolCalls = res.ToolCalls
			resp.Orchestrated = true
			resp.Plan = res
			resp.Summary = &summary
			s.metrics.Turn(ModeOrchestrated, res.Success)
			log.Info("Turn orchestrated", "plan_id", res.PlanID, "success", res.Success, "tools", len(res.ToolCalls))
			return resp, nil
		case errors.Is(err, domain.ErrNoPlan):
			log.Debug("No plan, answering directly")
		default:
			s.metrics.Turn(ModeOrchestrated, false)
			return nil, err
		}
	}

	// 3. Plain answer
	text, err := s.plain(ctx, req, lang, out)
	if err != nil {
		s.metrics.Turn(ModePlain, false)
		return nil, err
	}
	resp.Response = text
	s.metrics.Turn(ModePlain, true)
	return resp, nil
}

func (s *Service) synthesize(ctx context.Context, formatted string, summary compile.Summary, opts SynthesisOptions, out *sink) (string, error) {
	if out == nil {
		return s.synthesizer.Synthesize(ctx, formatted, summary, opts)
	}
	var b strings.Builder
	err := s.synthesizer.SynthesizeStream(ctx, formatted, summary, opts, func(chunk string) error {
		b.WriteString(chunk)
		return out.chunk(chunk)
	})
	return b.String(), err
}

func (s *Service) plain(ctx context.Context, req Request, lang string, out *sink) (string, error) {
	deliver := func(text string) (string, error) {
		if out != nil {
			if err := out.chunk(text); err != nil {
				return "", err
			}
		}
		return text, nil
	}
	if s.gen == nil {
		return deliver(plainNoModelMsg)
	}

	prompt, err := prompts.Render(s.prompts, prompts.PlainChat, lang, map[string]any{
		"Language": lang,
		"Message":  req.Message,
		"History":  req.History,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	err = generate(ctx, s.gen, prompt, func(chunk string) error {
		b.WriteString(chunk)
		if out != nil {
			return out.chunk(chunk)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// sink serializes stream events coming from plan goroutines and the model.
type sink struct {
	mu   sync.Mutex
	emit func(domain.StreamEvent) error
	err  error
}

func (o *sink) send(ev domain.StreamEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.err = o.emit(ev)
	return o.err
}

// chunk emits text, split into frames of about chunkSize bytes at spaces.
func (o *sink) chunk(text string) error {
	for _, part := range splitChunks(text, chunkSize) {
		if err := o.send(domain.ChunkEvent(part)); err != nil {
			return err
		}
	}
	return nil
}

func (o *sink) StepStarted(step domain.ExecutionStep, params map[string]any) {
	_ = o.send(domain.ToolCallEvent(step.ToolName, params))
}

func (o *sink) StepFinished(r domain.StepResult) {
	if r.Skipped {
		return
	}
	_ = o.send(domain.ToolResultEvent(domain.ToolResult{
		ToolName: r.ToolName,
		Params:   r.Params,
		Success:  r.Success,
		Data:     r.Data,
		Error:    r.Error,
	}))
}

func splitChunks(text string, size int) []string {
	if len(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	var out []string
	for len(text) > size {
		cut := strings.LastIndexByte(text[:size], ' ')
		if cut <= 0 {
			cut = strings.IndexByte(text[size:], ' ')
			if cut < 0 {
				break
			}
			cut += size
		}
		out = append(out, text[:cut+1])
		text = text[cut+1:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
