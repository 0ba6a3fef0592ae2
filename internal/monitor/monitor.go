// Package monitor runs the poll, evaluate and act loop for one UPS-protected
// host.
package monitor

import (
	"context"
	"time"

	"codeberg.org/mutker/upsguard/internal/action"
	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/journal"
	"codeberg.org/mutker/upsguard/internal/logger"
	"codeberg.org/mutker/upsguard/internal/power"
	"codeberg.org/mutker/upsguard/internal/sensor"
	"github.com/google/uuid"
)

// Fetcher returns one raw telemetry payload.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Parser decodes a raw telemetry payload.
type Parser interface {
	Parse(raw []byte) ([]sensor.Reading, error)
}

// Outcome is how a single cycle ended.
type Outcome string

const (
	OutcomeFetchFailed    Outcome = "fetch_failed"
	OutcomeParseFailed    Outcome = "parse_failed"
	OutcomeNominal        Outcome = "nominal"
	OutcomeShutdown       Outcome = "shutdown_dispatched"
	OutcomeShutdownFailed Outcome = "shutdown_failed"
)

// Config holds the loop settings.
type Config struct {
	Interval time.Duration
	Policy   power.Policy
}

// Monitor owns one sensor endpoint and one dispatcher target. It keeps no
// state between cycles.
type Monitor struct {
	cfg        Config
	fetcher    Fetcher
	parser     Parser
	dispatcher action.Dispatcher
	journal    journal.Recorder
	log        logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	newID      func() string
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithJournal records every cycle outcome.
func WithJournal(rec journal.Recorder) Option {
	return func(m *Monitor) {
		m.journal = rec
	}
}

// WithSleeper replaces the interval wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Monitor) {
		m.sleep = sleep
	}
}

// WithClock replaces time.Now for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func New(
	cfg Config,
	fetcher Fetcher,
	parser Parser,
	dispatcher action.Dispatcher,
	log logger.Logger,
	opts ...Option,
) (*Monitor, error) {
	errFactory := errors.New()

	if cfg.Interval <= 0 {
		return nil, errFactory.WithData(ErrInvalidInterval, cfg.Interval.String())
	}
	if fetcher == nil || parser == nil || dispatcher == nil || log == nil {
		return nil, errFactory.New(ErrMissingDep)
	}

	m := &Monitor{
		cfg:        cfg,
		fetcher:    fetcher,
		parser:     parser,
		dispatcher: dispatcher,
		journal:    journal.Noop(),
		log:        log,
		sleep:      sleepContext,
		now:        time.Now,
		newID:      uuid.NewString,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Run polls until ctx is cancelled. Faults inside a cycle are logged and the
// loop carries on after the interval. It returns nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info().
		Dur("interval", m.cfg.Interval).
		Int("threshold", m.cfg.Policy.Threshold).
		Str("strategy", m.dispatcher.Strategy().String()).
		Msg("Monitoring UPS")

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.Cycle(ctx)

		if err := m.sleep(ctx, m.cfg.Interval); err != nil {
			return nil
		}
	}
}

// Cycle runs a single poll, evaluate and act pass.
func (m *Monitor) Cycle(ctx context.Context) Outcome {
	cycleID := m.newID()
	log := m.log.With("cycle", cycleID)

	outcome, shutdown, err := m.cycle(ctx, log)
	m.record(ctx, log, cycleID, outcome, shutdown, err)

	return outcome
}

func (m *Monitor) cycle(ctx context.Context, log logger.Logger) (Outcome, bool, error) {
	raw, err := m.fetcher.Fetch(ctx)
	if err != nil {
		log.Debug().Str("stage", "poll").Err(err).Msg("Telemetry fetch failed")
		return OutcomeFetchFailed, false, err
	}

	readings, err := m.parser.Parse(raw)
	if err != nil {
		log.Warn().Str("stage", "parse").Err(err).Msg("Telemetry payload could not be decoded")
		return OutcomeParseFailed, false, err
	}

	state := power.Evaluate(readings)
	shutdown := m.cfg.Policy.Decide(state)

	event := log.Info().
		Stringer("ac_power", state.ACPower).
		Stringer("charging", state.Charging).
		Stringer("discharging", state.Discharging).
		Bool("shutdown_required", shutdown)
	if state.ChargeLevelKnown {
		event.Int("charge_level", state.ChargeLevel)
	}
	event.Msg("UPS status")

	if missing := state.Missing(); len(missing) > 0 {
		log.Debug().Strs("missing", missing).Int("readings", len(readings)).Msg("Incomplete UPS telemetry")
	}

	if !shutdown {
		return OutcomeNominal, false, nil
	}

	log.Warn().
		Int("charge_level", state.ChargeLevel).
		Int("threshold", m.cfg.Policy.Threshold).
		Str("strategy", m.dispatcher.Strategy().String()).
		Msg("UPS battery depleting, shutting down host")

	if err := m.dispatcher.Shutdown(ctx); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			log.ErrorWithCode(coded).Str("stage", "act").Msg("Shutdown dispatch failed")
		} else {
			log.Error().Str("stage", "act").Err(err).Msg("Shutdown dispatch failed")
		}
		return OutcomeShutdownFailed, true, err
	}

	log.Info().Str("stage", "act").Msg("Shutdown dispatched")
	return OutcomeShutdown, true, nil
}

func (m *Monitor) record(ctx context.Context, log logger.Logger, cycleID string, outcome Outcome, shutdown bool, cycleErr error) {
	entry := &journal.Entry{
		Timestamp:        m.now(),
		CycleID:          cycleID,
		Outcome:          string(outcome),
		ShutdownRequired: shutdown,
		Strategy:         m.dispatcher.Strategy().String(),
	}
	if cycleErr != nil {
		entry.Error = cycleErr.Error()
	}

	if err := m.journal.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("Failed to record cycle")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
