// internal/chaos/chaos.go
package chaos

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrSteadyStateInvalid = errors.New("steady state invalid - aborting experiment")

// Experiment defines a chaos engineering test
type Experiment struct {
	Name        string
	Hypothesis  string
	Setup       func(context.Context) error
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
}

// Metric defines a measurable system property
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action represents a fault injection or recovery action
type Action struct {
	Type    string // latency, conflict, concurrent-requests
	Target  string
	Execute func(context.Context) error
}

// Assertion validates experiment outcome against the last observation of
// a metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// Result captures experiment execution data
type Result struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	FailedAssertions []string               `json:"failed_assertions,omitempty"`
	MTTR             *time.Duration         `json:"mttr,omitempty"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
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

// Engine orchestrates chaos experiments
type Engine struct {
	tracer      trace.Tracer
	logger      *slog.Logger
	sampleEvery time.Duration
	experiments []Experiment
	results     []Result
	mu          sync.Mutex
}

// NewEngine returns an engine sampling steady-state metrics every
// sampleEvery while an experiment is observed.
func NewEngine(logger *slog.Logger, sampleEvery time.Duration) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if sampleEvery <= 0 {
		sampleEvery = time.Second
	}
	return &Engine{
		tracer:      otel.Tracer("hipsterbar/chaos"),
		logger:      logger.With("component", "chaos"),
		sampleEvery: sampleEvery,
	}
}

// RegisterExperiment adds an experiment to the suite
func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// RunExperiment executes a single chaos experiment
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(
			attribute.String("experiment.name", exp.Name),
		),
	)
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    make([]ErrorEvent, 0),
	}

	if exp.Setup != nil {
		span.AddEvent("setup")
		if err := exp.Setup(ctx); err != nil {
			span.RecordError(err)
			return result, err
		}
	}

	span.AddEvent("validating_steady_state")
	if valid, violations := e.validateSteadyState(ctx, exp.SteadyState); !valid {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.HypothesisHeld = e.validateAssertions(exp.Validation, result)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// observe samples the steady-state metrics until the experiment duration
// elapses, then takes one final sample.
func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(e.sampleEvery)
	defer ticker.Stop()

	var recoveryStart time.Time
	recovered := false
	sample := func() {
		for _, metric := range exp.SteadyState {
			value, err := metric.Query(ctx)
			if err != nil {
				result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
					Timestamp: time.Now(),
					Error:     err.Error(),
					Component: metric.Name,
				})
				continue
			}
			result.Observations[metric.Name] = append(
				result.Observations[metric.Name],
				DataPoint{Timestamp: time.Now(), Value: value},
			)
			if !evaluateThreshold(value, metric.Threshold) {
				if recoveryStart.IsZero() {
					recoveryStart = time.Now()
				}
				result.Violations = append(result.Violations, MetricViolation{
					MetricName: metric.Name,
					Expected:   metric.Threshold.Value,
					Actual:     value,
					Timestamp:  time.Now(),
				})
			} else if !recoveryStart.IsZero() && !recovered {
				mttr := time.Since(recoveryStart)
				result.MTTR = &mttr
				recovered = true
			}
		}
	}

	for {
		select {
		case <-observationCtx.Done():
			sample()
			return
		case <-ticker.C:
			sample()
		}
	}
}

func (e *Engine) validateSteadyState(ctx context.Context, metrics []Metric) (bool, []MetricViolation) {
	violations := make([]MetricViolation, 0)
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     -1,
				Timestamp:  time.Now(),
			})
			continue
		}
		if !evaluateThreshold(value, metric.Threshold) {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return len(violations) == 0, violations
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

func (e *Engine) validateAssertions(assertions []Assertion, result *Result) bool {
	held := true
	for _, assertion := range assertions {
		observations := result.Observations[assertion.Metric]
		if len(observations) == 0 || !assertion.Condition(observations[len(observations)-1].Value) {
			result.FailedAssertions = append(result.FailedAssertions, assertion.Message)
			held = false
		}
	}
	return held
}

// GameDay orchestrates a series of chaos experiments.
type GameDay struct {
	Name      string
	Scenarios []Experiment
	// Pause is waited between scenarios.
	Pause time.Duration
}

// ExecuteGameDay runs every scenario in order and reports whether all of
// their hypotheses held.
func (e *Engine) ExecuteGameDay(ctx context.Context, gameDay GameDay) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(
			attribute.String("gameday.name", gameDay.Name),
		),
	)
	defer span.End()

	e.logger.Info("starting game day", "name", gameDay.Name, "scenarios", len(gameDay.Scenarios))
	allHeld := true
	for i, scenario := range gameDay.Scenarios {
		e.logger.Info("running experiment",
			"index", i+1,
			"name", scenario.Name,
			"hypothesis", scenario.Hypothesis,
		)
		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			e.logger.Error("experiment failed", "name", scenario.Name, "error", err)
			allHeld = false
		} else {
			e.logResult(result)
			allHeld = allHeld && result.HypothesisHeld
		}

		if i < len(gameDay.Scenarios)-1 && gameDay.Pause > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(gameDay.Pause):
			}
		}
	}
	return allHeld, nil
}

func (e *Engine) logResult(result *Result) {
	attrs := []any{
		"name", result.ExperimentName,
		"hypothesis_held", result.HypothesisHeld,
		"violations", len(result.Violations),
		"errors", len(result.ErrorEvents),
		"duration", result.Duration,
	}
	if result.MTTR != nil {
		attrs = append(attrs, "mttr", *result.MTTR)
	}
	if result.HypothesisHeld {
		e.logger.Info("hypothesis held", attrs...)
		return
	}
	e.logger.Warn("hypothesis violated", append(attrs, "failed", result.FailedAssertions)...)
}
