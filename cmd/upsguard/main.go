package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/upsguard/internal/action"
	"codeberg.org/mutker/upsguard/internal/config"
	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/journal"
	"codeberg.org/mutker/upsguard/internal/logger"
	"codeberg.org/mutker/upsguard/internal/monitor"
	"codeberg.org/mutker/upsguard/internal/pid"
	"codeberg.org/mutker/upsguard/internal/power"
	"codeberg.org/mutker/upsguard/internal/sensor"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	log := logger.New(level, logger.IsService())

	log.Info().
		Str("version", version).
		Str("sensor", fmt.Sprintf("%s:%d", cfg.SensorHost, cfg.SensorPort)).
		Int("interval", cfg.Interval).
		Int("threshold", cfg.Threshold).
		Str("action", cfg.Action).
		Msg("Starting upsguard")

	if err := pid.Write(cfg.PIDFile); err != nil {
		logError(log, err, "failed to write PID file")
		return 1
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logError(log, err, "failed to remove PID file")
		}
	}()

	m, rec, err := build(cfg, log)
	if err != nil {
		logError(log, err, "failed to initialize")
		return 1
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logError(log, err, "failed to close journal")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, cancel, log)

	if err := m.Run(ctx); err != nil {
		logError(log, errors.New().Wrap(errors.ErrMainLoop, err), "error in main loop")
	}

	log.Info().Msg("Exiting...")
	return 0
}

// build wires the monitor from cfg. Every failure is wrapped as ErrInitApp.
func build(cfg *config.Config, log logger.Logger) (*monitor.Monitor, journal.Recorder, error) {
	errFactory := errors.New()

	client, err := sensor.NewHTTPClient(sensor.Config{
		Host:    cfg.SensorHost,
		Port:    cfg.SensorPort,
		Timeout: cfg.TimeoutDuration(),
	}, log)
	if err != nil {
		return nil, nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	dispatcher, err := action.New(action.Config{
		Strategy:       action.Strategy(cfg.Action),
		Command:        cfg.Command,
		Timeout:        cfg.TimeoutDuration(),
		Shell:          cfg.Shell,
		Host:           cfg.SSHHost,
		Port:           cfg.SSHPort,
		User:           cfg.SSHUser,
		Password:       cfg.SSHPassword,
		KnownHostsFile: cfg.SSHKnownHosts,
		IdleTimeout:    cfg.SSHIdleDuration(),
	}, log)
	if err != nil {
		return nil, nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	jcfg := journal.DefaultConfig()
	jcfg.Enabled = cfg.Journal
	jcfg.DBPath = cfg.JournalDB
	// Every cycle is written as it happens; a cycle runs at most once per interval.
	jcfg.BatchSize = 1
	rec, err := journal.NewService(jcfg, log)
	if err != nil {
		return nil, nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	m, err := monitor.New(monitor.Config{
		Interval: cfg.IntervalDuration(),
		Policy:   power.Policy{Threshold: cfg.Threshold},
	}, client, sensor.JSONParser{}, dispatcher, log, monitor.WithJournal(rec))
	if err != nil {
		_ = rec.Close()
		return nil, nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	return m, rec, nil
}

func handleSignals(ctx context.Context, cancel context.CancelFunc, log logger.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		log.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}

func logError(log logger.Logger, err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		log.ErrorWithCode(appErr).Msg(msg)
		return
	}
	log.Error().Err(err).Msg(msg)
}
