// Package drill runs consistency experiments against a live database: a
// steady state is checked, load or faults are applied, the system is
// observed and assertions decide whether the hypothesis held.
package drill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Experiment defines one drill.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	// Duration is how long to keep sampling after the method ran. Zero
	// samples once.
	Duration    time.Duration
	SampleEvery time.Duration
}

// Metric is a measurable property of the system.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

func (t Threshold) holds(v float64) bool {
	switch t.Operator {
	case ">":
		return v > t.Value
	case "<":
		return v < t.Value
	case ">=":
		return v >= t.Value
	case "<=":
		return v <= t.Value
	case "==":
		return v == t.Value
	default:
		return false
	}
}

// Action applies load or a fault, or undoes one.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the last observed value of a metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

type Result struct {
	Experiment       string                 `json:"experiment"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []Violation            `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	FailedAssertions []string               `json:"failed_assertions"`
}

// Last returns the final observed value of a metric.
func (r *Result) Last(metric string) (float64, bool) {
	points := r.Observations[metric]
	if len(points) == 0 {
		return 0, false
	}
	return points[len(points)-1].Value, true
}

type Violation struct {
	Metric    string    `json:"metric"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// ErrSteadyState aborts an experiment whose starting state already
// violates a threshold.
var ErrSteadyState = errors.New("steady state invalid, experiment aborted")

// Engine runs registered experiments.
type Engine struct {
	tracer      trace.Tracer
	logger      *zap.Logger
	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{tracer: otel.Tracer("rentify/drill"), logger: logger}
}

func (e *Engine) Register(exps ...Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exps...)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns every result recorded so far.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes one experiment: steady state, method, observation, rollback
// and validation, in that order.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "drill.run", trace.WithAttributes(
		attribute.String("experiment.name", exp.Name),
	))
	defer span.End()

	result := &Result{
		Experiment:   exp.Name,
		StartTime:    time.Now(),
		Observations: make(map[string][]DataPoint),
	}
	log := e.logger.With(zap.String("experiment", exp.Name))
	log.Info("experiment started", zap.String("hypothesis", exp.Hypothesis))

	span.AddEvent("validating_steady_state")
	if violations := e.steadyState(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		log.Warn("steady state invalid", zap.Int("violations", len(violations)))
		e.record(result)
		return result, ErrSteadyState
	}
	result.SteadyStateValid = true

	span.AddEvent("applying_method")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
			log.Warn("action failed", zap.String("action", action.Type), zap.Error(err))
		}
	}

	span.AddEvent("observing")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
			log.Warn("rollback failed", zap.String("action", action.Type), zap.Error(err))
		}
	}

	span.AddEvent("validating_assertions")
	for _, a := range exp.Validation {
		v, ok := result.Last(a.Metric)
		if !ok || !a.Condition(v) {
			result.FailedAssertions = append(result.FailedAssertions, a.Message)
		}
	}
	result.HypothesisHeld = len(result.FailedAssertions) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.record(result)

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	e.report(log, result)
	return result, nil
}

// RunAll runs every registered experiment in order and reports whether all
// hypotheses held.
func (e *Engine) RunAll(ctx context.Context) (bool, error) {
	held := true
	for _, exp := range e.Experiments() {
		result, err := e.Run(ctx, exp)
		if err != nil {
			if errors.Is(err, ErrSteadyState) {
				held = false
				continue
			}
			return false, fmt.Errorf("experiment %s: %w", exp.Name, err)
		}
		held = held && result.HypothesisHeld
	}
	return held, nil
}

func (e *Engine) steadyState(ctx context.Context, metrics []Metric) []Violation {
	var violations []Violation
	for _, m := range metrics {
		v, err := m.Query(ctx)
		if err != nil {
			v = -1
		}
		if err != nil || !m.Threshold.holds(v) {
			violations = append(violations, Violation{Metric: m.Name, Expected: m.Threshold.Value, Actual: v, Timestamp: time.Now()})
		}
	}
	return violations
}

func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	sample := func() {
		for _, m := range exp.SteadyState {
			v, err := m.Query(ctx)
			if err != nil {
				result.recordError(m.Name, err)
				continue
			}
			now := time.Now()
			result.Observations[m.Name] = append(result.Observations[m.Name], DataPoint{Timestamp: now, Value: v})
			if !m.Threshold.holds(v) {
				result.Violations = append(result.Violations, Violation{Metric: m.Name, Expected: m.Threshold.Value, Actual: v, Timestamp: now})
			}
		}
	}

	sample()
	if exp.Duration <= 0 {
		return
	}
	every := exp.SampleEvery
	if every <= 0 {
		every = time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

func (e *Engine) record(r *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, *r)
}

func (r *Result) recordError(component string, err error) {
	r.ErrorEvents = append(r.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: component})
}

func (e *Engine) report(log *zap.Logger, r *Result) {
	fields := []zap.Field{
		zap.Bool("hypothesis_held", r.HypothesisHeld),
		zap.Int("violations", len(r.Violations)),
		zap.Int("errors", len(r.ErrorEvents)),
		zap.Duration("duration", r.Duration),
	}
	for name := range r.Observations {
		if v, ok := r.Last(name); ok {
			fields = append(fields, zap.Float64(name, v))
		}
	}
	if r.HypothesisHeld {
		log.Info("hypothesis held", fields...)
		return
	}
	log.Error("hypothesis violated", append(fields, zap.Strings("failed_assertions", r.FailedAssertions))...)
}
