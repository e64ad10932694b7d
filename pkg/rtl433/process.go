package rtl433

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/berfenger/alarm2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

const (
	DEFAULT_SWEEP_TIMEOUT = 5 * time.Second

	// bounds how long output copying may outlive the process when orphaned
	// helpers still hold the pipe
	outputWaitDelay = 2 * time.Second
	maxLineSize     = 1 << 20
)

type State int

const (
	NotStarted State = iota
	Running
	Exited
	Killed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// CommandArgs builds the decoder arguments: JSON output restricted to one
// device protocol.
func CommandArgs(protocol int, extra []string) []string {
	args := []string{"-F", "json", "-R", strconv.Itoa(protocol)}
	return append(args, extra...)
}

type Option func(*Process)

func WithSweeper(sweeper Sweeper) Option {
	return func(p *Process) {
		p.sweeper = sweeper
	}
}

func WithSweepTimeout(timeout time.Duration) Option {
	return func(p *Process) {
		p.sweepTimeout = timeout
	}
}

// Process supervises one decoder subprocess. Its stdout and stderr are
// merged into a single line stream.
type Process struct {
	bin          string
	args         []string
	logger       *zap.Logger
	sweeper      Sweeper
	sweepTimeout time.Duration

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	reader   *io.PipeReader
	reaped   bool
	exitCode int

	lines    chan string
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewProcess(bin string, args []string, logger *zap.Logger, opts ...Option) *Process {
	p := &Process{
		bin:          bin,
		args:         args,
		logger:       logger.With(zap.String("component", "rtl433")),
		sweeper:      PkillSweeper{},
		sweepTimeout: DEFAULT_SWEEP_TIMEOUT,
		lines:        make(chan string),
		done:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Process) CommandLine() string {
	return strings.Join(append([]string{p.bin}, p.args...), " ")
}

// Name is the executable base name, used by the process sweep.
func (p *Process) Name() string {
	return filepath.Base(p.bin)
}

func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != NotStarted {
		return fmt.Errorf("rtl433: process already %s", p.state)
	}

	cmd := exec.Command(p.bin, p.args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = outputWaitDelay

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return &domain.LaunchError{Command: p.CommandLine(), Err: err}
	}

	p.cmd = cmd
	p.reader = pr
	p.state = Running
	p.logger.Info("rtl433: process started", zap.String("command", p.CommandLine()), zap.Int("pid", cmd.Process.Pid))

	go p.readLoop(pr)
	go p.wait(cmd, pw)
	return nil
}

// Lines returns the output stream. The same channel is returned on every
// call and it is closed at end of stream or after TerminateAll.
func (p *Process) Lines() <-chan string {
	return p.lines
}

func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitCode does not block. The code is -1 when the process was ended by a
// signal.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.reaped
}

// TerminateAll kills the supervised process and then sweeps every process
// whose command line contains the decoder binary name. The sweep is
// system-wide and also hits unrelated processes that happen to match; it is
// kept as a safety net for helpers the decoder may leave behind.
func (p *Process) TerminateAll() {
	p.mu.Lock()
	cmd := p.cmd
	running := p.state == Running
	if running {
		p.state = Killed
	}
	reader := p.reader
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.stop)
		if reader != nil {
			reader.Close()
		}
	})

	if running && cmd.Process != nil {
		p.logger.Info("rtl433: killing process", zap.Int("pid", cmd.Process.Pid))
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("rtl433: kill failed", zap.Error(err))
		}
	}

	p.sweep()

	if cmd != nil {
		select {
		case <-p.done:
		case <-time.After(p.sweepTimeout):
			p.logger.Warn("rtl433: process not reaped after kill")
		}
	} else {
		// never started, nothing will be read
		p.closeLinesIfUnstarted()
	}
}

func (p *Process) closeLinesIfUnstarted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == NotStarted {
		p.state = Killed
		close(p.lines)
		close(p.done)
	}
}

func (p *Process) readLoop(r *io.PipeReader) {
	defer close(p.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-p.stop:
			r.Close()
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		p.logger.Warn("rtl433: output read failed", zap.Error(err))
	}
	r.Close()
}

func (p *Process) wait(cmd *exec.Cmd, pw *io.PipeWriter) {
	err := cmd.Wait()
	pw.Close()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	p.mu.Lock()
	p.exitCode = code
	p.reaped = true
	if p.state == Running {
		p.state = Exited
	}
	state := p.state
	p.mu.Unlock()

	p.logger.Info("rtl433: process ended", zap.Int("exit_code", code), zap.Stringer("state", state), zap.NamedError("wait_error", err))
	close(p.done)
}
