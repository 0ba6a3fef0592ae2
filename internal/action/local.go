package action

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/logger"
)

const (
	defaultCommandTimeout = 30 * time.Second
	// waitDelay bounds how long Run waits for children holding the output pipe.
	waitDelay = time.Second
)

// DefaultShell returns the platform shell used by LocalCommand.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}

// DefaultLocalCommand returns the platform shutdown command.
func DefaultLocalCommand() string {
	if runtime.GOOS == "windows" {
		return "shutdown /s"
	}
	return "shutdown -h now"
}

// LocalCommand runs the shutdown command through a local shell.
type LocalCommand struct {
	shell   string
	command string
	timeout time.Duration
	log     logger.Logger
}

func NewLocalCommand(cfg Config, log logger.Logger) (*LocalCommand, error) {
	d := &LocalCommand{
		shell:   cfg.Shell,
		command: cfg.Command,
		timeout: cfg.Timeout,
		log:     log,
	}

	if d.shell == "" {
		d.shell = DefaultShell()
	}
	if d.command == "" {
		d.command = DefaultLocalCommand()
	}
	if d.timeout <= 0 {
		d.timeout = defaultCommandTimeout
	}

	return d, nil
}

func (d *LocalCommand) Shutdown(ctx context.Context) error {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.shell, shellFlag(d.shell), d.command)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = waitDelay

	d.log.Info().Str("shell", d.shell).Str("command", d.command).Msg("Shutting down host")

	err := cmd.Run()
	if out := strings.TrimSpace(output.String()); out != "" {
		d.log.Info().Str("output", out).Msg("Shutdown command output")
	}
	if err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("local shutdown command failed")
	}

	return nil
}

func (*LocalCommand) Strategy() Strategy {
	return StrategyLocalCommand
}

func shellFlag(shell string) string {
	base := strings.ToLower(shell)
	if strings.HasSuffix(base, "cmd.exe") || strings.HasSuffix(base, "cmd") {
		return "/C"
	}
	return "-c"
}
