package action

import (
	"context"

	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/logger"
)

// New builds the Dispatcher selected by cfg.Strategy.
func New(cfg Config, log logger.Logger) (Dispatcher, error) {
	switch cfg.Strategy {
	case StrategyLogOnly, "":
		return NewLogOnly(log), nil
	case StrategyLocalCommand:
		return NewLocalCommand(cfg, log)
	case StrategyRemoteShell:
		return NewRemoteShell(cfg, log)
	default:
		return nil, errors.New().WithData(errors.ErrInvalidStrategy, string(cfg.Strategy))
	}
}

// LogOnly records the shutdown intent without acting on it.
type LogOnly struct {
	log logger.Logger
}

func NewLogOnly(log logger.Logger) *LogOnly {
	return &LogOnly{log: log}
}

func (d *LogOnly) Shutdown(ctx context.Context) error {
	d.log.Warn().Str("strategy", string(StrategyLogOnly)).Msg("Shutdown required, no action taken")
	return nil
}

func (*LogOnly) Strategy() Strategy {
	return StrategyLogOnly
}
