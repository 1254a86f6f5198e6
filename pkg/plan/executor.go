package plan

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/metrics"
	"github.com/aretw0/waypoint/pkg/session"
)

// ToolRunner executes a single tool call. *tools.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, name string, params map[string]any) domain.ToolResult
}

// Observer is notified as steps start and finish. Calls come from the wave
// goroutines and may be concurrent.
type Observer interface {
	StepStarted(step domain.ExecutionStep, params map[string]any)
	StepFinished(result domain.StepResult)
}

// Executor runs plans in dependency waves.
type Executor struct {
	tools    ToolRunner
	sessions *session.Manager
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// ExecutorOption configures the Executor.
type ExecutorOption func(*Executor)

// WithExecutorClock configures the clock used for durations.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// WithExecutorLogger configures a logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics configures plan metrics.
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an Executor. With a nil sessions manager results are
// neither cached nor recorded as mentions.
func NewExecutor(tools ToolRunner, sessions *session.Manager, opts ...ExecutorOption) *Executor {
	e := &Executor{
		tools:    tools,
		sessions: sessions,
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs p against the session context c.
//
// Each wave holds every pending step whose dependencies have completed; the
// wave runs in parallel and its results are folded in before the next wave is
// computed. Failed and skipped steps count as completed. When pending steps
// remain but none can run, execution stops and the result is marked Stalled.
func (e *Executor) Execute(ctx context.Context, p *domain.ExecutionPlan, c *domain.ConversationContext) *domain.PlanExecutionResult {
	return e.ExecuteObserved(ctx, p, c, nil)
}

// ExecuteObserved is Execute with step notifications. Skipped steps are
// reported as finished without being started.
func (e *Executor) ExecuteObserved(ctx context.Context, p *domain.ExecutionPlan, c *domain.ConversationContext, obs Observer) *domain.PlanExecutionResult {
	start := e.now()
	res := &domain.PlanExecutionResult{
		PlanID:    p.ID,
		Steps:     make(domain.StepResults, len(p.Steps)),
		Order:     make([]string, 0, len(p.Steps)),
		ToolCalls: []domain.ToolResult{},
	}
	log := e.logger.With("plan_id", p.ID)

	completed := make(map[string]bool, len(p.Steps))
	pending := make([]domain.ExecutionStep, len(p.Steps))
	copy(pending, p.Steps)

	for len(pending) > 0 {
		if ctx.Err() != nil {
			log.Warn("Plan execution canceled", "pending", len(pending), "err", ctx.Err())
			break
		}

		// 1. Collect the wave
		var wave, rest []domain.ExecutionStep
		for _, step := range pending {
			if ready(step, completed) {
				wave = append(wave, step)
			} else {
				rest = append(rest, step)
			}
		}
		if len(wave) == 0 {
			ids := make([]string, len(rest))
			for i, s := range rest {
				ids[i] = s.ID
			}
			log.Warn("Plan stalled", "pending", ids, "err", domain.ErrPlanStalled)
			res.Stalled = true
			break
		}

		// 2. Run it against a snapshot of earlier results
		prior := make(domain.StepResults, len(res.Steps))
		for k, v := range res.Steps {
			prior[k] = v
		}

		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for _, step := range wave {
			wg.Add(1)
			go func(s domain.ExecutionStep) {
				defer wg.Done()
				r := e.runStep(ctx, s, prior, c, obs, log)
				if obs != nil {
					obs.StepFinished(r)
				}

				// 3. Fold in completion order
				mu.Lock()
				defer mu.Unlock()
				res.Steps[s.ID] = r
				res.Order = append(res.Order, s.ID)
				if r.Success && !r.Skipped {
					res.ToolCalls = append(res.ToolCalls, domain.ToolResult{
						ToolName: r.ToolName,
						Params:   r.Params,
						Success:  true,
						Data:     r.Data,
					})
				}
			}(step)
		}
		wg.Wait()

		for _, s := range wave {
			completed[s.ID] = true
		}
		pending = rest
	}

	res.Success = succeeded(p, res)
	res.Duration = e.now().Sub(start)
	e.metrics.PlanRun(p.Name, res.Success)
	log.Debug("Plan executed", "name", p.Name, "success", res.Success, "steps", len(res.Order), "duration", res.Duration)
	return res
}

func ready(step domain.ExecutionStep, completed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// succeeded reports whether every non-optional step succeeded or was skipped.
func succeeded(p *domain.ExecutionPlan, res *domain.PlanExecutionResult) bool {
	for _, step := range p.Steps {
		if step.Optional {
			continue
		}
		r, ok := res.Steps[step.ID]
		if !ok || !(r.Success || r.Skipped) {
			return false
		}
	}
	return true
}

func (e *Executor) runStep(ctx context.Context, s domain.ExecutionStep, prior domain.StepResults, c *domain.ConversationContext, obs Observer, log *slog.Logger) (r domain.StepResult) {
	start := e.now()
	r = domain.StepResult{StepID: s.ID, ToolName: s.ToolName}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Step panicked", "step_id", s.ID, "tool", s.ToolName, "panic", rec, "stack", string(debug.Stack()))
			r.Success = false
			r.Error = fmt.Sprintf("step %s panicked: %v", s.ID, rec)
		}
		r.Duration = e.now().Sub(start)
	}()

	if s.Condition != nil && !s.Condition(prior) {
		log.Debug("Step skipped", "step_id", s.ID, "tool", s.ToolName)
		r.Skipped = true
		return r
	}

	params := map[string]any{}
	if s.Params != nil {
		if got := s.Params.Resolve(prior); got != nil {
			params = got
		}
	}
	r.Params = params
	if obs != nil {
		obs.StepStarted(s, params)
	}

	if e.sessions != nil && c != nil {
		if data, hit := e.sessions.CachedToolResult(c, s.ToolName, params); hit {
			log.Debug("Step served from cache", "step_id", s.ID, "tool", s.ToolName)
			r.Success, r.Data, r.Cached = true, data, true
			e.sessions.RecordMentions(c, s.ToolName, data)
			return r
		}
	}

	tr := e.tools.Execute(ctx, s.ToolName, params)
	r.Success, r.Data, r.Error = tr.Success, tr.Data, tr.Error
	if !tr.Success {
		log.Warn("Step failed", "step_id", s.ID, "tool", s.ToolName, "err", tr.Error)
		return r
	}

	if e.sessions != nil && c != nil {
		if err := e.sessions.CacheToolResult(c, s.ToolName, params, tr.Data); err != nil {
			log.Warn("Failed to cache tool result", "step_id", s.ID, "tool", s.ToolName, "err", err)
		}
		e.sessions.RecordMentions(c, s.ToolName, tr.Data)
	}
	return r
}
