package plan_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/plan"
	"github.com/aretw0/waypoint/pkg/registry"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/aretw0/waypoint/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	results map[string]domain.ToolResult
}

func (f *fakeRunner) Execute(_ context.Context, name string, params map[string]any) domain.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if r, ok := f.results[name]; ok {
		r.ToolName, r.Params = name, params
		return r
	}
	return domain.ToolResult{ToolName: name, Params: params, Success: true, Data: map[string]any{"tool": name}}
}

func (f *fakeRunner) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func static(p map[string]any) domain.ParamsResolver { return domain.StaticParams(p) }

func TestExecutor_SkippedStepUnblocksDependents(t *testing.T) {
	runner := &fakeRunner{}
	ex := plan.NewExecutor(runner, nil)

	p := &domain.ExecutionPlan{ID: "p1", Name: "test", Steps: []domain.ExecutionStep{
		{ID: "a", ToolName: "toolA", Params: static(nil)},
		{ID: "b", ToolName: "toolB", DependsOn: []string{"a"}, Condition: func(domain.StepResults) bool { return false }},
		{ID: "c", ToolName: "toolC", DependsOn: []string{"b"}},
	}}

	res := ex.Execute(context.Background(), p, nil)

	assert.True(t, res.Success)
	assert.False(t, res.Stalled)
	assert.True(t, res.Steps["b"].Skipped)
	assert.Equal(t, []string{"toolA", "toolC"}, runner.called(), "skipped step is never invoked")
	assert.Equal(t, []string{"a", "b", "c"}, res.Order)

	for _, tc := range res.ToolCalls {
		assert.NotEqual(t, "toolB", tc.ToolName)
	}
	assert.Len(t, res.ToolCalls, 2)
}

func TestExecutor_WavesSeePriorResults(t *testing.T) {
	runner := &fakeRunner{results: map[string]domain.ToolResult{
		"lookup": {Success: true, Data: []any{map[string]any{"id": "8507000"}}},
	}}
	ex := plan.NewExecutor(runner, nil)

	var seen map[string]any
	p := &domain.ExecutionPlan{ID: "p2", Steps: []domain.ExecutionStep{
		{ID: "lookup", ToolName: "lookup"},
		{ID: "board", ToolName: "board", DependsOn: []string{"lookup"}, Params: domain.ParamsFunc(func(prior domain.StepResults) map[string]any {
			data := prior["lookup"].Data.([]any)
			seen = map[string]any{"placeId": data[0].(map[string]any)["id"]}
			return seen
		})},
	}}

	res := ex.Execute(context.Background(), p, nil)
	require.True(t, res.Success)
	assert.Equal(t, "8507000", seen["placeId"])
	assert.Equal(t, seen, res.Steps["board"].Params)
}

func TestExecutor_FailureSemantics(t *testing.T) {
	runner := &fakeRunner{results: map[string]domain.ToolResult{
		"required": {Success: false, Error: "boom"},
		"optional": {Success: false, Error: "meh"},
	}}
	ex := plan.NewExecutor(runner, nil)

	optionalOnly := &domain.ExecutionPlan{ID: "p3", Steps: []domain.ExecutionStep{
		{ID: "ok", ToolName: "fine"},
		{ID: "opt", ToolName: "optional", Optional: true},
	}}
	res := ex.Execute(context.Background(), optionalOnly, nil)
	assert.True(t, res.Success, "optional failures do not fail the plan")
	assert.Len(t, res.ToolCalls, 1)

	required := &domain.ExecutionPlan{ID: "p4", Steps: []domain.ExecutionStep{
		{ID: "req", ToolName: "required"},
		{ID: "after", ToolName: "fine", DependsOn: []string{"req"}},
	}}
	res = ex.Execute(context.Background(), required, nil)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Steps["req"].Error)
	assert.True(t, res.Steps["after"].Success, "dependents still run after a failure")
}

func TestExecutor_StallStopsWithPartialResult(t *testing.T) {
	runner := &fakeRunner{}
	ex := plan.NewExecutor(runner, nil)

	p := &domain.ExecutionPlan{ID: "p5", Steps: []domain.ExecutionStep{
		{ID: "a", ToolName: "toolA"},
		{ID: "b", ToolName: "toolB", DependsOn: []string{"c"}},
		{ID: "c", ToolName: "toolC", DependsOn: []string{"b"}},
	}}

	res := ex.Execute(context.Background(), p, nil)
	assert.True(t, res.Stalled)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"a"}, res.Order)
	assert.Equal(t, []string{"toolA"}, runner.called())
}

func TestExecutor_CacheHitSkipsTool(t *testing.T) {
	runner := &fakeRunner{}
	m := session.NewManager()
	c := m.GetOrCreate("s1", "en")
	ex := plan.NewExecutor(runner, m)

	p := &domain.ExecutionPlan{ID: "p6", Steps: []domain.ExecutionStep{
		{ID: "w", ToolName: domain.ToolGetWeather, Params: static(map[string]any{"location": "Bern"})},
	}}

	first := ex.Execute(context.Background(), p, c)
	require.True(t, first.Success)
	assert.False(t, first.Steps["w"].Cached)

	second := ex.Execute(context.Background(), p, c)
	require.True(t, second.Success)
	assert.True(t, second.Steps["w"].Cached)
	assert.Len(t, second.ToolCalls, 1, "cache hits are reported as tool calls")
	assert.Equal(t, []string{domain.ToolGetWeather}, runner.called(), "second run served from cache")
}

func TestExecutor_CanceledContextStops(t *testing.T) {
	runner := &fakeRunner{}
	ex := plan.NewExecutor(runner, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := ex.Execute(ctx, &domain.ExecutionPlan{ID: "p7", Steps: []domain.ExecutionStep{{ID: "a", ToolName: "x"}}}, nil)
	assert.False(t, res.Success)
	assert.Empty(t, runner.called())
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	ex := plan.NewExecutor(&fakeRunner{}, nil)
	p := &domain.ExecutionPlan{ID: "p8", Steps: []domain.ExecutionStep{
		{ID: "bad", ToolName: "x", Params: domain.ParamsFunc(func(domain.StepResults) map[string]any { panic("nope") })},
	}}

	res := ex.Execute(context.Background(), p, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Steps["bad"].Error, "panicked")
}

func TestFactoryAndExecutor_DemoTools(t *testing.T) {
	m := session.NewManager(session.WithClock(clock))
	c := m.GetOrCreate("s1", "en")
	f := plan.NewFactory(m)
	ex := plan.NewExecutor(tools.NewExecutor(registry.NewDemo()), m)

	p := f.Create(intentOf(domain.IntentTripPlanning, map[string]any{
		"origin": "Zurich", "destination": "Bern", "date": "2024-01-16", "time": "09:00",
	}), c)
	require.NotNil(t, p)

	res := ex.Execute(context.Background(), p, c)
	require.True(t, res.Success)
	assert.True(t, res.Steps[plan.StepEcoComparison].Success)
	assert.Equal(t, []string{plan.StepFindTrips, plan.StepEcoComparison}, res.Order)

	trips, _ := m.Mentions(c)
	assert.Len(t, trips, 3)

	st := f.Create(intentOf(domain.IntentStationSearch, map[string]any{"station": "Bern"}), c)
	res = ex.Execute(context.Background(), st, c)
	require.True(t, res.Success, res.Steps[plan.StepStationEvents].Error)
	assert.Equal(t, "8507000", res.Steps[plan.StepStationEvents].Params["placeId"])

	w := f.Create(intentOf(domain.IntentWeatherCheck, map[string]any{"location": "St. Moritz", "message": "ski in St. Moritz"}), c)
	res = ex.Execute(context.Background(), w, c)
	require.True(t, res.Success, res.Steps[plan.StepWeather].Error)
	assert.True(t, res.Steps[plan.StepSnow].Success)
}

type recorder struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (r *recorder) StepStarted(s domain.ExecutionStep, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, s.ID)
}

func (r *recorder) StepFinished(res domain.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res.StepID)
}

func TestExecutor_Observer(t *testing.T) {
	ex := plan.NewExecutor(&fakeRunner{}, nil)
	p := &domain.ExecutionPlan{ID: "p9", Steps: []domain.ExecutionStep{
		{ID: "a", ToolName: "x"},
		{ID: "b", ToolName: "y", DependsOn: []string{"a"}, Condition: func(domain.StepResults) bool { return false }},
	}}

	rec := &recorder{}
	ex.ExecuteObserved(context.Background(), p, nil, rec)

	assert.Equal(t, []string{"a"}, rec.started)
	assert.Equal(t, []string{"a", "b"}, rec.finished)
}
