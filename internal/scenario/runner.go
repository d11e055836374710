package scenario

import (
	"context"
	"fmt"
	"time"

	"marketconformance/config"
	"marketconformance/pkg/marketdata"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes features. NewREST and NewWS are called once per scenario
// so that no client state leaks between scenarios.
type Runner struct {
	Config  *config.Config
	Logger  *zap.Logger
	NewREST func() *marketdata.RESTClient
	NewWS   func() *marketdata.WSClient
}

// NewRunner returns a Runner whose clients are built from cfg.
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		Config: cfg,
		Logger: logger,
		NewREST: func() *marketdata.RESTClient {
			return marketdata.NewRESTClient(cfg.Exchange.REST, logger.Named("rest"))
		},
		NewWS: func() *marketdata.WSClient {
			return marketdata.NewWSClient(cfg.Exchange.WS, logger.Named("ws"))
		},
	}
}

// Result is the outcome of one scenario.
type Result struct {
	ID         string
	Feature    string
	Scenario   string
	Tags       []string
	Passed     bool
	StepsRun   int
	StepsTotal int
	FailedStep string
	Err        error
	Duration   time.Duration
}

type Report struct {
	Results  []Result
	Started  time.Time
	Duration time.Duration
}

func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Results) - r.Passed()
}

// OK reports whether every selected scenario passed.
func (r *Report) OK() bool {
	return r.Failed() == 0
}

// Failures returns the failed results in run order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Run executes every scenario of features selected by filter, in order.
// Cancelling ctx fails the scenario in progress and skips the rest.
func (r *Runner) Run(ctx context.Context, features []Feature, filter Filter) *Report {
	report := &Report{Started: time.Now()}
	for _, f := range features {
		for _, s := range f.Scenarios {
			if !filter.Match(f, s) {
				continue
			}
			if ctx.Err() != nil {
				r.Logger.Warn("run cancelled", zap.Error(ctx.Err()))
				report.Duration = time.Since(report.Started)
				return report
			}
			report.Results = append(report.Results, r.runScenario(ctx, f, s))
		}
	}
	report.Duration = time.Since(report.Started)
	r.Logger.Info("run finished",
		zap.Int("scenarios", len(report.Results)),
		zap.Int("passed", report.Passed()),
		zap.Int("failed", report.Failed()),
		zap.Duration("elapsed", report.Duration))
	return report
}

func (r *Runner) runScenario(ctx context.Context, f Feature, s Scenario) Result {
	id := uuid.NewString()
	logger := r.Logger.With(zap.String("scenario_id", id), zap.String("scenario", s.Name))
	sc := r.before(id, logger)
	defer r.after(sc)

	res := Result{ID: id, Feature: f.Name, Scenario: s.Name, Tags: s.Tags, StepsTotal: len(s.Steps)}
	start := time.Now()
	logger.Info("scenario started", zap.String("feature", f.Name))

	for _, step := range s.Steps {
		res.StepsRun++
		if err := runStep(ctx, step, sc); err != nil {
			res.FailedStep = step.Phrase
			res.Err = err
			break
		}
		logger.Debug("step passed", zap.String("step", step.Phrase))
	}

	res.Passed = res.Err == nil
	res.Duration = time.Since(start)
	if res.Passed {
		logger.Info("scenario passed", zap.Duration("elapsed", res.Duration))
	} else {
		logger.Error("scenario failed",
			zap.String("step", res.FailedStep),
			zap.Error(res.Err),
			zap.Duration("elapsed", res.Duration))
	}
	return res
}

// runStep turns a panicking step into a failure of that step.
func runStep(ctx context.Context, step Step, sc *Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("step panicked: %v", p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return step.Run(ctx, sc)
}

func (r *Runner) before(id string, logger *zap.Logger) *Context {
	sc := &Context{ID: id, Config: r.Config, Logger: logger}
	if r.NewREST != nil {
		sc.REST = r.NewREST()
	}
	if r.NewWS != nil {
		sc.WS = r.NewWS()
	}
	return sc
}

func (r *Runner) after(sc *Context) {
	if sc.WS != nil {
		sc.WS.Disconnect()
	}
}
