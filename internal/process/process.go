package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Exit code reported when a process had to be killed.
const ExitKilled = 137

// Command is an executable and its arguments. No shell is involved.
type Command struct {
	Path string
	Args []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// LineHandler receives output lines from the subprocess.
type LineHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Process manages one subprocess from spawn to exit.
type Process struct {
	id              string
	command         Command
	logger          *slog.Logger
	outputLogger    *slog.Logger // logger for process output (nil = use logger)
	logParser       LogParser    // nil = log every line at info
	lineHandler     LineHandler
	gracefulTimeout time.Duration // SIGINT to SIGKILL
	killTimeout     time.Duration // SIGKILL to giving up

	mu         sync.Mutex
	cmd        *exec.Cmd
	done       chan error
	outputDone chan struct{}
}

// NewProcess creates a process that is not started yet.
func NewProcess(id string, command Command, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		id:              id,
		command:         command,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
}

// Command returns the command the process runs.
func (p *Process) Command() Command {
	return p.command
}

// PID returns the OS process ID, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// SetLogParser sets the logger and parser used for subprocess output.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.outputLogger = logger
	p.logParser = parser
}

// SetLineHandler registers a handler that sees every output line.
func (p *Process) SetLineHandler(h LineHandler) {
	p.lineHandler = h
}

// SetTimeouts overrides the graceful and kill timeouts.
func (p *Process) SetTimeouts(graceful, kill time.Duration) {
	p.gracefulTimeout = graceful
	p.killTimeout = kill
}

// Start spawns the subprocess. It does not wait for it.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process %s already started", p.id)
	}
	if p.command.Path == "" {
		return fmt.Errorf("empty command")
	}

	cmd := exec.Command(p.command.Path, p.command.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command.Path, err)
	}
	p.cmd = cmd
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", p.command.String())

	p.outputDone = make(chan struct{}, 2)
	go func() {
		p.streamOutput(stdout, "stdout")
		p.outputDone <- struct{}{}
	}()
	go func() {
		p.streamOutput(stderr, "stderr")
		p.outputDone <- struct{}{}
	}()

	// Wait must only run after output has been drained
	p.done = make(chan error, 1)
	go func() {
		<-p.outputDone
		<-p.outputDone
		p.done <- cmd.Wait()
	}()
	return nil
}

// Wait blocks until the subprocess exits or ctx is cancelled. On
// cancellation the process gets SIGINT, then SIGKILL after the graceful
// timeout. Returns the exit code.
func (p *Process) Wait(ctx context.Context) int {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return 1
	}

	select {
	case <-ctx.Done():
		p.logger.Info("Context cancelled, shutting down process", "id", p.id)
		p.sendStopSignal()
		return p.waitForExit(done)
	case err := <-done:
		exitCode := exitCodeFromError(err)
		if err != nil && exitCode == 1 {
			p.logger.Error("Process exited with error", "id", p.id, "error", err)
		}
		p.logger.Info("Process exited", "id", p.id, "exit_code", exitCode)
		return exitCode
	}
}

// Run starts the process and waits for it.
func (p *Process) Run(ctx context.Context) int {
	if err := p.Start(); err != nil {
		p.logger.Error("Failed to start process", "id", p.id, "error", err)
		return 1
	}
	return p.Wait(ctx)
}

// exitCodeFromError returns 0 for nil, the exit code for an ExitError,
// 128+signal for a process ended by a signal and 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return ExitKilled
	}
	return 1
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	p.logger.Debug("Sending SIGINT to process", "id", p.id, "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

func (p *Process) waitForExit(done <-chan error) int {
	select {
	case err := <-done:
		return exitCodeFromError(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "error", err)
		}
	}
	select {
	case <-done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return ExitKilled
}

func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.lineHandler != nil {
			p.lineHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}
		if msg == "" {
			continue
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}
