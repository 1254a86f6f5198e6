package domain

import "time"

// StepResults maps step ids to their outcome. It is the input of downstream
// ParamsResolver and Condition functions.
type StepResults map[string]StepResult

// ParamsResolver produces a step's parameters from the results of earlier steps.
type ParamsResolver interface {
	Resolve(prior StepResults) map[string]any
}

// StaticParams is a ParamsResolver for parameters known at plan-build time.
type StaticParams map[string]any

// Resolve returns a copy of the static parameters.
func (p StaticParams) Resolve(StepResults) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamsFunc adapts a function into a ParamsResolver.
type ParamsFunc func(prior StepResults) map[string]any

// Resolve calls f.
func (f ParamsFunc) Resolve(prior StepResults) map[string]any {
	return f(prior)
}

// Condition decides, from prior results, whether a step should run.
type Condition func(prior StepResults) bool

// ExecutionStep is one tool call of a plan.
// DependsOn must only reference ids of earlier steps.
type ExecutionStep struct {
	ID        string
	ToolName  string
	Params    ParamsResolver
	DependsOn []string
	Optional  bool
	Condition Condition
}

// ExecutionPlan is a small DAG of tool calls derived from one intent.
type ExecutionPlan struct {
	ID          string
	Name        string
	Description string
	Steps       []ExecutionStep
}

// StepResult is the outcome of one executed (or skipped) step.
type StepResult struct {
	StepID   string         `json:"stepId"`
	ToolName string         `json:"toolName"`
	Params   map[string]any `json:"params,omitempty"`
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
	Skipped  bool           `json:"skipped,omitempty"`
	Cached   bool           `json:"cached,omitempty"`
}

// PlanExecutionResult aggregates the outcome of a plan (or of several plans for multi-intent turns).
type PlanExecutionResult struct {
	PlanID string `json:"planId"`
	// Success is true iff every non-optional step succeeded or was skipped.
	Success bool        `json:"success"`
	Steps   StepResults `json:"steps"`
	// Order lists step ids in completion order.
	Order []string `json:"order"`
	// ToolCalls holds the successful tool invocations, in completion order.
	ToolCalls []ToolResult  `json:"toolCalls"`
	Duration  time.Duration `json:"duration"`
	// Stalled is set when execution stopped with pending, never-runnable steps.
	Stalled bool `json:"stalled,omitempty"`
}

// Ordered returns the step results in completion order.
func (r *PlanExecutionResult) Ordered() []StepResult {
	out := make([]StepResult, 0, len(r.Order))
	for _, id := range r.Order {
		if res, ok := r.Steps[id]; ok {
			out = append(out, res)
		}
	}
	return out
}
