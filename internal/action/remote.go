package action

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/upsguard/internal/errors"
	"codeberg.org/mutker/upsguard/internal/logger"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultSSHPort     = 22
	defaultIdleTimeout = 3 * time.Second
	defaultRemoteCmd   = "shutdown /s"
	terminalType       = "xterm"
	terminalWidth      = 255
	terminalHeight     = 50
	readChunkSize      = 1024
)

// RemoteShell opens an interactive SSH shell on the target host, writes the
// shutdown command and collects output until the stream goes idle.
type RemoteShell struct {
	addr      string
	command   string
	timeout   time.Duration
	idle      time.Duration
	sshConfig *ssh.ClientConfig
	log       logger.Logger
}

func NewRemoteShell(cfg Config, log logger.Logger) (*RemoteShell, error) {
	errFactory := errors.New()

	if cfg.Host == "" {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "remote shell host is required")
	}
	if cfg.User == "" {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "remote shell user is required")
	}

	// Host keys are only verified when a known_hosts file is configured.
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err).WithMessage("failed to load known hosts")
		}
		hostKeyCallback = cb
	}

	port := cfg.Port
	if port <= 0 {
		port = defaultSSHPort
	}

	d := &RemoteShell{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		command: cfg.Command,
		timeout: cfg.Timeout,
		idle:    cfg.IdleTimeout,
		log:     log,
	}

	if d.command == "" {
		d.command = defaultRemoteCmd
	}
	if d.timeout <= 0 {
		d.timeout = defaultCommandTimeout
	}
	if d.idle <= 0 {
		d.idle = defaultIdleTimeout
	}

	password := cfg.Password
	d.sshConfig = &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.timeout,
	}

	return d, nil
}

func (d *RemoteShell) Shutdown(ctx context.Context) error {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	client, err := d.dial(ctx)
	if err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh connection failed")
	}
	defer func() { _ = client.Close() }()

	d.log.Debug().Str("addr", d.addr).Str("server_version", string(client.ServerVersion())).Msg("SSH connected")

	session, err := client.NewSession()
	if err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh session failed")
	}
	defer func() { _ = session.Close() }()

	stdin, err := session.StdinPipe()
	if err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh stdin failed")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh stdout failed")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh stderr failed")
	}

	if err := session.RequestPty(terminalType, terminalHeight, terminalWidth, ssh.TerminalModes{}); err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh pty request failed")
	}
	if err := session.Shell(); err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh shell failed")
	}

	d.log.Info().Str("addr", d.addr).Str("command", d.command).Msg("Shutting down remote host")

	if _, err := io.WriteString(stdin, d.command+"\r\n"); err != nil {
		return errFactory.Wrap(ErrAction, err).WithMessage("ssh write failed")
	}

	output, errOutput := readUntilIdle(ctx, d.idle, stdout, stderr)
	if out := strings.TrimSpace(output); out != "" {
		d.log.Info().Str("output", out).Msg("Remote shell output")
	}
	if out := strings.TrimSpace(errOutput); out != "" {
		d.log.Warn().Str("output", out).Msg("Remote shell error output")
	}

	return nil
}

func (*RemoteShell) Strategy() Strategy {
	return StrategyRemoteShell
}

func (d *RemoteShell) dial(ctx context.Context) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, d.addr, d.sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

type streamChunk struct {
	data   []byte
	stderr bool
}

// readUntilIdle collects stdout and stderr until neither produced data for
// idle, both streams ended, or ctx is done.
func readUntilIdle(ctx context.Context, idle time.Duration, stdout, stderr io.Reader) (string, string) {
	chunks := make(chan streamChunk)
	done := make(chan struct{})
	defer close(done)

	open := 0
	pump := func(r io.Reader, isErr bool) {
		defer func() {
			select {
			case chunks <- streamChunk{}:
			case <-done:
			}
		}()
		buf := make([]byte, readChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- streamChunk{data: data, stderr: isErr}:
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}
	for _, s := range []struct {
		r     io.Reader
		isErr bool
	}{{stdout, false}, {stderr, true}} {
		open++
		go pump(s.r, s.isErr)
	}

	var out, errOut bytes.Buffer
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for open > 0 {
		select {
		case chunk := <-chunks:
			if chunk.data == nil {
				open--
				continue
			}
			if chunk.stderr {
				errOut.Write(chunk.data)
			} else {
				out.Write(chunk.data)
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)
		case <-timer.C:
			return out.String(), errOut.String()
		case <-ctx.Done():
			return out.String(), errOut.String()
		}
	}

	return out.String(), errOut.String()
}
