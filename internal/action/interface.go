// Package action dispatches the shutdown of the protected host.
package action

import (
	"context"
	"time"

	"codeberg.org/mutker/upsguard/internal/errors"
)

// Dispatcher shuts the protected host down. Calling Shutdown repeatedly is
// allowed; the host may already be going down on the second call.
type Dispatcher interface {
	Shutdown(ctx context.Context) error
	Strategy() Strategy
}

// Strategy selects the Dispatcher implementation.
type Strategy string

const (
	StrategyLogOnly      Strategy = "log-only"
	StrategyLocalCommand Strategy = "local-command"
	StrategyRemoteShell  Strategy = "remote-shell"
)

// IsValid returns whether the strategy is known
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyLogOnly, StrategyLocalCommand, StrategyRemoteShell:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (s Strategy) String() string {
	return string(s)
}

// ParseStrategy validates a configured strategy name.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(name)
	if !s.IsValid() {
		return "", errors.New().WithData(errors.ErrInvalidStrategy, name)
	}

	return s, nil
}

// Config carries the settings of every strategy; only the fields of the
// selected one are used.
type Config struct {
	Strategy Strategy
	Command  string
	Timeout  time.Duration

	// local-command
	Shell string

	// remote-shell
	Host           string
	Port           int
	User           string
	Password       string
	KnownHostsFile string
	IdleTimeout    time.Duration
}
