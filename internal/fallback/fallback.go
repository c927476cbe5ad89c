// Package fallback runs an ordered list of provider attempts until the first
// one succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/celemqhele/cvtailorpro/internal/logger"

	"go.uber.org/zap"
)

var (
	// ErrNotConfigured is returned when a chain has no attempts to run.
	ErrNotConfigured = errors.New("no providers are configured")
	// ErrExhausted is matched by errors.Is when every attempt has failed.
	ErrExhausted = errors.New("all providers failed")
)

// Call performs one outbound request for an attempt. The credential is bound
// into the closure so it never travels with the attempt metadata.
type Call[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Attempt is one (provider, credential, model) combination.
type Attempt[Req, Res any] struct {
	Provider string
	Model    string
	// Rank is the static priority. Lower runs first.
	Rank int
	Call Call[Req, Res]
}

// Info identifies an attempt without its transport.
type Info struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Rank     int    `json:"rank"`
}

func (i Info) String() string {
	if i.Model == "" {
		return fmt.Sprintf("#%d %s", i.Rank, i.Provider)
	}
	return fmt.Sprintf("#%d %s/%s", i.Rank, i.Provider, i.Model)
}

// Failure records why a single attempt did not produce a result.
type Failure struct {
	Info
	Err error
}

// Result is the successful branch of a chain run.
type Result[Res any] struct {
	Value    Res
	Attempt  Info
	Failures []Failure
}

// Report is passed to the Observer after every attempt.
type Report struct {
	Chain    string
	Attempt  Info
	Duration time.Duration
	Err      error
}

// Observer receives one report per attempt.
type Observer func(Report)

// Chain is a statically ordered fallback chain.
type Chain[Req, Res any] struct {
	name     string
	attempts []Attempt[Req, Res]
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// Option configures a Chain.
type Option func(*options)

type options struct {
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// WithAttemptTimeout bounds every single attempt. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger used for advisory failure logs.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers a callback invoked after each attempt.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// New builds a chain. Attempts are ordered by Rank; equal ranks keep their
// input order.
func New[Req, Res any](name string, attempts []Attempt[Req, Res], opts ...Option) *Chain[Req, Res] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	ordered := make([]Attempt[Req, Res], len(attempts))
	copy(ordered, attempts)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	return &Chain[Req, Res]{
		name:     name,
		attempts: ordered,
		timeout:  o.timeout,
		logger:   logger.WithFields(o.logger, zap.String(logger.FieldChain, name)),
		observer: o.observer,
	}
}

// Name returns the chain name used in logs and metrics.
func (c *Chain[Req, Res]) Name() string { return c.name }

// Len returns the number of attempts in the chain.
func (c *Chain[Req, Res]) Len() int { return len(c.attempts) }

// Describe lists the attempts in run order.
func (c *Chain[Req, Res]) Describe() []Info {
	return describe(c.attempts)
}

// Run invokes the attempts in order and returns the first success. Every
// attempt is tried at most once.
func (c *Chain[Req, Res]) Run(ctx context.Context, req Req) (Result[Res], error) {
	if len(c.attempts) == 0 {
		return Result[Res]{}, fmt.Errorf("%s: %w", c.name, ErrNotConfigured)
	}

	var failures []Failure
	for i, attempt := range c.attempts {
		if err := ctx.Err(); err != nil {
			return Result[Res]{}, &ExhaustedError{
				Chain:    c.name,
				Failures: failures,
				Skipped:  describe(c.attempts[i:]),
				Cause:    err,
			}
		}

		value, took, err := c.invoke(ctx, attempt, req)
		c.observe(attempt, took, err)

		if err == nil {
			if len(failures) > 0 {
				c.logger.Info("provider succeeded after fallback",
					append(logger.CommonFields(attempt.Provider, attempt.Model),
						zap.Int("rank", attempt.Rank),
						zap.Int("failed_attempts", len(failures)),
					)...,
				)
			}
			return Result[Res]{Value: value, Attempt: info(attempt), Failures: failures}, nil
		}

		c.logger.Warn("provider attempt failed",
			append(logger.CommonFields(attempt.Provider, attempt.Model),
				zap.Int("rank", attempt.Rank),
				zap.Duration("took", took),
				zap.Error(err),
			)...,
		)
		failures = append(failures, Failure{Info: info(attempt), Err: err})
	}

	return Result[Res]{}, &ExhaustedError{Chain: c.name, Failures: failures}
}

func (c *Chain[Req, Res]) invoke(ctx context.Context, attempt Attempt[Req, Res], req Req) (Res, time.Duration, error) {
	var zero Res
	if attempt.Call == nil {
		return zero, 0, errors.New("attempt has no transport")
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	value, err := attempt.Call(callCtx, req)
	took := time.Since(start)

	if err == nil && callCtx.Err() != nil {
		// Late successes count as timeouts.
		err = callCtx.Err()
	}
	if err != nil {
		return zero, took, err
	}
	return value, took, nil
}

func (c *Chain[Req, Res]) observe(attempt Attempt[Req, Res], took time.Duration, err error) {
	if c.observer == nil {
		return
	}
	c.observer(Report{Chain: c.name, Attempt: info(attempt), Duration: took, Err: err})
}

func info[Req, Res any](a Attempt[Req, Res]) Info {
	return Info{Provider: a.Provider, Model: a.Model, Rank: a.Rank}
}

func describe[Req, Res any](attempts []Attempt[Req, Res]) []Info {
	infos := make([]Info, 0, len(attempts))
	for _, a := range attempts {
		infos = append(infos, info(a))
	}
	return infos
}

// ExhaustedError aggregates every failed attempt of a chain run.
type ExhaustedError struct {
	Chain    string
	Failures []Failure
	// Skipped lists attempts never tried because the context ended first.
	Skipped []Info
	// Cause is set when the run was cut short by the caller's context.
	Cause error
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d attempt(s) failed", e.Chain, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Info, f.Err)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "; stopped with %d attempt(s) left: %v", len(e.Skipped), e.Cause)
	}
	return b.String()
}

// Is reports ErrExhausted so callers do not need the concrete type.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}
