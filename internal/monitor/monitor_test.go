package monitor_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/upsguard/internal/action"
	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/journal"
	"codeberg.org/mutker/upsguard/internal/logger"
	"codeberg.org/mutker/upsguard/internal/monitor"
	"codeberg.org/mutker/upsguard/internal/power"
	"codeberg.org/mutker/upsguard/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lowBatteryPayload = `[
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charge Level","SensorValue":"12"},
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"AC Power","SensorValue":"0"},
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charging","SensorValue":"0"},
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Discharging","SensorValue":"1"}
	]`
	onACPayload = `[
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charge Level","SensorValue":"100"},
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"AC Power","SensorValue":"1"},
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Charging","SensorValue":"0"},
	  {"SensorApp":"HWiNFO","SensorClass":"UPS","SensorName":"Discharging","SensorValue":"0"}
	]`
)

type fakeFetcher struct {
	fetchFunc func(ctx context.Context) ([]byte, error)
	calls     int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.calls++
	return f.fetchFunc(ctx)
}

type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (d *fakeDispatcher) Shutdown(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.err
}

func (*fakeDispatcher) Strategy() action.Strategy {
	return action.StrategyRemoteShell
}

type memoryJournal struct {
	entries []journal.Entry
	err     error
}

func (j *memoryJournal) Record(_ context.Context, e *journal.Entry) error {
	j.entries = append(j.entries, *e)
	return j.err
}

func (*memoryJournal) Close() error { return nil }

// countingSleeper cancels the run after n sleeps.
func countingSleeper(n int, cancel context.CancelFunc, slept *int) func(context.Context, time.Duration) error {
	return func(ctx context.Context, _ time.Duration) error {
		*slept++
		if *slept >= n {
			cancel()
			return context.Canceled
		}
		return ctx.Err()
	}
}

func payload(body string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) { return []byte(body), nil }
}

func newMonitor(t *testing.T, fetcher monitor.Fetcher, dispatcher action.Dispatcher, opts ...monitor.Option) *monitor.Monitor {
	t.Helper()
	m, err := monitor.New(
		monitor.Config{Interval: time.Minute, Policy: power.DefaultPolicy()},
		fetcher, sensor.JSONParser{}, dispatcher, logger.Nop(), opts...,
	)
	require.NoError(t, err)
	return m
}

func TestRunSurvivesConsecutiveNetworkErrors(t *testing.T) {
	const cycles = 25

	fetcher := &fakeFetcher{fetchFunc: func(context.Context) ([]byte, error) {
		return nil, errors.New().WithMessage(sensor.ErrNetwork, "connection refused")
	}}
	dispatcher := &fakeDispatcher{}
	rec := &memoryJournal{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slept := 0

	m := newMonitor(t, fetcher, dispatcher,
		monitor.WithJournal(rec),
		monitor.WithSleeper(countingSleeper(cycles, cancel, &slept)),
	)

	require.NoError(t, m.Run(ctx))
	assert.Equal(t, cycles, fetcher.calls)
	assert.Equal(t, cycles, slept)
	assert.Zero(t, dispatcher.calls)
	require.Len(t, rec.entries, cycles)
	for _, e := range rec.entries {
		assert.Equal(t, string(monitor.OutcomeFetchFailed), e.Outcome)
		assert.False(t, e.ShutdownRequired)
		assert.Contains(t, e.Error, "connection refused")
	}
}

func TestCycleParseFailureSkipsEvaluation(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	m := newMonitor(t, &fakeFetcher{fetchFunc: payload("<html>")}, dispatcher)

	assert.Equal(t, monitor.OutcomeParseFailed, m.Cycle(context.Background()))
	assert.Zero(t, dispatcher.calls)
}

func TestCycleOnACPowerDoesNotAct(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	m := newMonitor(t, &fakeFetcher{fetchFunc: payload(onACPayload)}, dispatcher)

	assert.Equal(t, monitor.OutcomeNominal, m.Cycle(context.Background()))
	assert.Zero(t, dispatcher.calls)
}

func TestCycleEmptyPayloadDoesNotAct(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	m := newMonitor(t, &fakeFetcher{fetchFunc: payload(`[]`)}, dispatcher)

	assert.Equal(t, monitor.OutcomeNominal, m.Cycle(context.Background()))
	assert.Zero(t, dispatcher.calls)
}

func TestCycleLowBatteryDispatches(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	rec := &memoryJournal{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	m := newMonitor(t, &fakeFetcher{fetchFunc: payload(lowBatteryPayload)}, dispatcher,
		monitor.WithJournal(rec),
		monitor.WithClock(func() time.Time { return now }),
	)

	assert.Equal(t, monitor.OutcomeShutdown, m.Cycle(context.Background()))
	assert.Equal(t, 1, dispatcher.calls)

	require.Len(t, rec.entries, 1)
	assert.True(t, rec.entries[0].ShutdownRequired)
	assert.Equal(t, "remote-shell", rec.entries[0].Strategy)
	assert.Equal(t, now, rec.entries[0].Timestamp)
	assert.NotEmpty(t, rec.entries[0].CycleID)
}

func TestRunRepeatsDispatchWhileConditionHolds(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New().WithMessage(action.ErrAction, "host unreachable")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slept := 0

	m := newMonitor(t, &fakeFetcher{fetchFunc: payload(lowBatteryPayload)}, dispatcher,
		monitor.WithSleeper(countingSleeper(3, cancel, &slept)),
	)

	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 3, dispatcher.calls)
	assert.Equal(t, 3, slept)
}

func TestCycleActionErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	dispatcher := &fakeDispatcher{err: errors.New().WithMessage(action.ErrAction, "auth failed")}

	m, err := monitor.New(
		monitor.Config{Interval: time.Minute, Policy: power.DefaultPolicy()},
		&fakeFetcher{fetchFunc: payload(lowBatteryPayload)}, sensor.JSONParser{}, dispatcher,
		logger.NewWithWriter(&buf, logger.InfoLevel),
	)
	require.NoError(t, err)

	assert.Equal(t, monitor.OutcomeShutdownFailed, m.Cycle(context.Background()))
	assert.Contains(t, buf.String(), "action_dispatch_failed")
	assert.Contains(t, buf.String(), `"stage":"act"`)
}

func TestCycleLogsObservedFlags(t *testing.T) {
	var buf bytes.Buffer
	m, err := monitor.New(
		monitor.Config{Interval: time.Minute, Policy: power.DefaultPolicy()},
		&fakeFetcher{fetchFunc: payload(onACPayload)}, sensor.JSONParser{}, &fakeDispatcher{},
		logger.NewWithWriter(&buf, logger.InfoLevel),
	)
	require.NoError(t, err)

	m.Cycle(context.Background())
	out := buf.String()
	assert.Contains(t, out, `"ac_power":"on"`)
	assert.Contains(t, out, `"charging":"off"`)
	assert.Contains(t, out, `"discharging":"off"`)
	assert.Contains(t, out, `"charge_level":100`)
	assert.Contains(t, out, `"cycle":`)
}

func TestJournalFailureDoesNotStopLoop(t *testing.T) {
	rec := &memoryJournal{err: stderrors.New("disk full")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slept := 0

	fetcher := &fakeFetcher{fetchFunc: payload(onACPayload)}
	m := newMonitor(t, fetcher, &fakeDispatcher{},
		monitor.WithJournal(rec),
		monitor.WithSleeper(countingSleeper(4, cancel, &slept)),
	)

	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 4, fetcher.calls)
}

func TestRunStopsPromptlyOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{fetchFunc: payload(onACPayload)}
	m, err := monitor.New(
		monitor.Config{Interval: time.Hour, Policy: power.DefaultPolicy()},
		fetcher, sensor.JSONParser{}, &fakeDispatcher{}, logger.Nop(),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunWithCancelledContextDoesNothing(t *testing.T) {
	fetcher := &fakeFetcher{fetchFunc: payload(onACPayload)}
	m := newMonitor(t, fetcher, &fakeDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Run(ctx))
	assert.Zero(t, fetcher.calls)
}

func TestNewValidation(t *testing.T) {
	_, err := monitor.New(monitor.Config{}, &fakeFetcher{}, sensor.JSONParser{}, &fakeDispatcher{}, logger.Nop())
	assert.True(t, errors.HasCode(err, monitor.ErrInvalidInterval))

	_, err = monitor.New(monitor.Config{Interval: time.Second}, nil, sensor.JSONParser{}, &fakeDispatcher{}, logger.Nop())
	assert.True(t, errors.HasCode(err, monitor.ErrMissingDep))
}
