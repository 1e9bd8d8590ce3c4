package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	ncerr "gateslam/internal/errors"
	"gateslam/util"
)

// ReadyMarker is the line OpenVPN prints once routes are installed.
const ReadyMarker = "Initialization Sequence Completed"

// OpenVPNConfig configures how the client is invoked.
type OpenVPNConfig struct {
	Binary      string        // client executable, default "openvpn"
	DataCiphers string        // value for --data-ciphers
	UseSudo     bool          // prefix commands with sudo
	ConfigDir   string        // where <index>.config files are written
	LogDir      string        // where <index>.log files are written
	KillAll     string        // killall executable, default "killall"
	Grace       time.Duration // how long Close waits after SIGTERM
}

// OpenVPN is a Launcher that runs the openvpn command-line client.
type OpenVPN struct {
	cfg    OpenVPNConfig
	logger *util.Logger
}

// NewOpenVPN returns a Launcher for cfg.
func NewOpenVPN(cfg OpenVPNConfig, logger *util.Logger) *OpenVPN {
	if cfg.Binary == "" {
		cfg.Binary = "openvpn"
	}
	if cfg.KillAll == "" {
		cfg.KillAll = "killall"
	}
	if cfg.Grace == 0 {
		cfg.Grace = 5 * time.Second
	}
	if logger == nil {
		logger = util.Discard()
	}
	return &OpenVPN{cfg: cfg, logger: logger}
}

// argv prefixes name+args with sudo when configured.
func (o *OpenVPN) argv(name string, args ...string) (string, []string) {
	if o.cfg.UseSudo {
		return "sudo", append([]string{name}, args...)
	}
	return name, args
}

// Start implements Launcher.  ctx bounds only the setup; the process
// outlives it and is stopped by Close or TerminateAll.
func (o *OpenVPN) Start(ctx context.Context, index int, config string) (Session, error) {
	s := &openVPNSession{
		binary:     o.cfg.Binary,
		grace:      o.cfg.Grace,
		configPath: filepath.Join(o.cfg.ConfigDir, strconv.Itoa(index)+".config"),
		logPath:    filepath.Join(o.cfg.LogDir, strconv.Itoa(index)+".log"),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		logger:     o.logger.With("candidate", index),
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.setState(StateConfiguring)
	logFile, err := o.stage(s, config)
	if err != nil {
		return nil, s.fail(err)
	}

	s.setState(StateLaunching)
	pr, pw, err := os.Pipe()
	if err != nil {
		logFile.Close()
		return nil, s.fail(&ncerr.ProcessError{Op: "spawn", Name: o.cfg.Binary, Err: err})
	}

	args := []string{"--config", s.configPath}
	if o.cfg.DataCiphers != "" {
		args = append(args, "--data-ciphers", o.cfg.DataCiphers)
	}
	// No CommandContext: the process must outlive the setup context.
	bin, argv := o.argv(o.cfg.Binary, args...)
	cmd := exec.Command(bin, argv...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.Stdin = nil
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		logFile.Close()
		return nil, s.fail(&ncerr.ProcessError{Op: "spawn", Name: o.cfg.Binary, Err: err})
	}
	// The child holds its own copy; ours must go so the reader sees EOF
	// when the child exits.
	pw.Close()

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
	s.setState(StateAwaitingReady)
	s.logger.Debug("spawned %s pid=%d config=%s", o.cfg.Binary, cmd.Process.Pid, s.configPath)

	go s.readLoop(pr, logFile)
	return s, nil
}

// stage writes the profile and truncates the log, returning the open log.
func (o *OpenVPN) stage(s *openVPNSession, config string) (*os.File, error) {
	if err := os.MkdirAll(o.cfg.ConfigDir, 0o700); err != nil {
		return nil, &ncerr.ProcessError{Op: "stage", Name: o.cfg.ConfigDir, Err: err}
	}
	if err := os.WriteFile(s.configPath, []byte(config), 0o600); err != nil {
		return nil, &ncerr.ProcessError{Op: "stage", Name: s.configPath, Err: err}
	}
	if err := os.MkdirAll(o.cfg.LogDir, 0o755); err != nil {
		return nil, &ncerr.ProcessError{Op: "stage", Name: o.cfg.LogDir, Err: err}
	}
	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &ncerr.ProcessError{Op: "stage", Name: s.logPath, Err: err}
	}
	return f, nil
}

// TerminateAll implements Launcher by running killall against the
// client's executable name.  Exit status 1 means nothing matched and is
// reported as ErrNoSuchProcess.
func (o *OpenVPN) TerminateAll(ctx context.Context) error {
	name := filepath.Base(o.cfg.Binary)
	bin, args := o.argv(o.cfg.KillAll, name)
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		o.logger.Debug("killall %s: done", name)
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return &ncerr.ProcessError{Op: "killall", Name: name, Err: ncerr.ErrNoSuchProcess}
	}
	if msg := bytes.TrimSpace(out); len(msg) > 0 {
		err = fmt.Errorf("%w: %s", err, msg)
	}
	return &ncerr.ProcessError{Op: "killall", Name: name, Err: err}
}

// ── session ──────────────────────────────────────────────────────────

type openVPNSession struct {
	binary     string
	grace      time.Duration
	configPath string
	logPath    string
	logger     *util.Logger

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	exitErr error // set by readLoop before done is closed
	closed  bool

	ready chan struct{}
	done  chan struct{}
}

func (s *openVPNSession) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// fail moves the session to Failed and returns err.
func (s *openVPNSession) fail(err error) error {
	s.setState(StateFailed)
	s.logger.Debug("session %s: %v", StateFailed, err)
	return err
}

func (s *openVPNSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *openVPNSession) ConfigPath() string { return s.configPath }
func (s *openVPNSession) LogPath() string    { return s.logPath }

// readLoop is the only writer of the log file.  It copies the merged
// output into the log, closes ready when the marker is seen, and keeps
// draining until the process exits.
func (s *openVPNSession) readLoop(r io.ReadCloser, log *os.File) {
	defer close(s.done)
	defer r.Close()

	marker := []byte(ReadyMarker)
	keep := len(marker) - 1
	var tail []byte
	seen := false

	buf := util.GetBuf()
	defer util.PutBuf(buf)

	for {
		n, err := r.Read(*buf)
		if n > 0 {
			chunk := (*buf)[:n]
			if _, werr := log.Write(chunk); werr != nil {
				s.logger.Debug("log write: %v", werr)
			}
			if !seen {
				window := append(tail, chunk...)
				if bytes.Contains(window, marker) {
					seen = true
					close(s.ready)
				} else if len(window) > keep {
					tail = append(tail[:0], window[len(window)-keep:]...)
				} else {
					tail = window
				}
			}
		}
		if err != nil {
			break
		}
	}
	log.Close()

	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	werr := cmd.Wait()

	s.mu.Lock()
	s.exitErr = werr
	s.mu.Unlock()
	s.logger.Debug("%s exited: %v", s.binary, werr)
}

func (s *openVPNSession) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		s.setState(StateReady)
		return nil
	case <-s.done:
		// The marker may have arrived in the final chunk.
		select {
		case <-s.ready:
			s.setState(StateReady)
			return nil
		default:
		}
		s.mu.Lock()
		exitErr := s.exitErr
		s.mu.Unlock()
		s.setState(StateFailed)
		if exitErr == nil {
			exitErr = errors.New("exited before the tunnel came up")
		} else {
			exitErr = fmt.Errorf("exited before the tunnel came up: %w", exitErr)
		}
		return &ncerr.ProcessError{Op: "wait", Name: s.binary, Err: exitErr}
	case <-ctx.Done():
		s.setState(StateFailed)
		return ctx.Err()
	}
}

// Close sends SIGTERM and waits up to the grace period for the process
// to exit, escalating to SIGKILL.
func (s *openVPNSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd := s.cmd
	failed := s.state == StateFailed
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		if !failed {
			s.setState(StateTerminated)
		}
		return nil
	}

	select {
	case <-s.done:
		if !failed {
			s.setState(StateTerminated)
		}
		return nil
	default:
	}

	s.setState(StateTerminating)
	pid := cmd.Process.Pid
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		s.setState(StateFailed)
		return &ncerr.ProcessError{Op: "signal", Name: s.binary, Err: err}
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.logger.Warn("%s pid=%d ignored SIGTERM for %s, killing", s.binary, pid, s.grace)
		_ = unix.Kill(pid, unix.SIGKILL)
		// A privileged grandchild may still hold the pipe; TerminateAll
		// is left to reap it.
		timer.Reset(s.grace)
		select {
		case <-s.done:
		case <-timer.C:
		}
	}
	if failed {
		s.setState(StateFailed)
	} else {
		s.setState(StateTerminated)
	}
	return nil
}
