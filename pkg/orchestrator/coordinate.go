package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/plan"
)

// Coordinator builds and runs one plan per intent.
type Coordinator struct {
	factory  *plan.Factory
	executor *plan.Executor
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(factory *plan.Factory, executor *plan.Executor, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{factory: factory, executor: executor, logger: logger}
}

// Plans returns the plans of intents in priority order, leaving out intents without one.
func (co *Coordinator) Plans(intents []domain.Intent, c *domain.ConversationContext) []*domain.ExecutionPlan {
	var plans []*domain.ExecutionPlan
	for _, in := range domain.SortByPriority(intents) {
		p := co.factory.Create(in, c)
		if p == nil || len(p.Steps) == 0 {
			co.logger.Debug("No plan for intent", "intent", in.Type)
			continue
		}
		plans = append(plans, p)
	}
	return plans
}

// Run executes the plans of intents one after another in priority order.
// A single plan's result is returned as is; several are combined. It returns
// domain.ErrNoPlan when no intent yields a plan with steps.
func (co *Coordinator) Run(ctx context.Context, intents []domain.Intent, c *domain.ConversationContext, obs plan.Observer) (*domain.PlanExecutionResult, error) {
	plans := co.Plans(intents, c)
	if len(plans) == 0 {
		return nil, domain.ErrNoPlan
	}

	results := make([]*domain.PlanExecutionResult, 0, len(plans))
	for _, p := range plans {
		if ctx.Err() != nil {
			break
		}
		co.logger.Debug("Running plan", "plan_id", p.ID, "name", p.Name, "steps", len(p.Steps))
		results = append(results, co.executor.ExecuteObserved(ctx, p, c, obs))
	}
	if len(results) == 0 {
		return nil, ctx.Err()
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return combine(results), nil
}

// combine concatenates results. Step ids repeated across plans are suffixed
// with the plan position.
func combine(results []*domain.PlanExecutionResult) *domain.PlanExecutionResult {
	out := &domain.PlanExecutionResult{
		Success:   true,
		Steps:     domain.StepResults{},
		ToolCalls: []domain.ToolResult{},
	}
	ids := make([]string, 0, len(results))
	for i, r := range results {
		ids = append(ids, r.PlanID)
		for _, step := range r.Ordered() {
			key := step.StepID
			if _, taken := out.Steps[key]; taken {
				key = fmt.Sprintf("%s#%d", step.StepID, i+1)
				step.StepID = key
			}
			out.Steps[key] = step
			out.Order = append(out.Order, key)
		}
		out.ToolCalls = append(out.ToolCalls, r.ToolCalls...)
		out.Success = out.Success && r.Success
		out.Stalled = out.Stalled || r.Stalled
		out.Duration += r.Duration
	}
	out.PlanID = strings.Join(ids, "+")
	return out
}
