package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/ports"
	"github.com/google/uuid"
)

const executorID = "run"

// Run starts cfg.Command through the shell and streams its output to the
// listeners until it exits.
func (h *Host) Run(ctx context.Context, cfg ports.RunConfiguration) (ports.RunLaunch, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return ports.RunLaunch{}, domain.NewValidationError("command", "run configuration "+cfg.ID+" has no command")
	}
	if err := h.ctx.Err(); err != nil {
		return ports.RunLaunch{}, domain.ErrClosed
	}

	dir := cfg.WorkingDirectory
	if dir == "" {
		dir = h.projectPath(cfg.ProjectName)
	}

	cmd := h.command(cfg.Command, dir)
	stdout, stderr, err := pipes(cmd)
	if err != nil {
		return ports.RunLaunch{}, err
	}
	if err := cmd.Start(); err != nil {
		return ports.RunLaunch{}, fmt.Errorf("start %s: %w", cfg.Name, err)
	}

	launch := ports.RunLaunch{ExecutionID: uuid.New().String(), ExecutorID: executorID}
	taskID := "run-" + launch.ExecutionID
	h.logger.Info("Run started", "config", cfg.ID, "execution_id", launch.ExecutionID, "pid", cmd.Process.Pid)

	// The task carries the command as detail so the progress classifier can
	// place runs such as "make" or "go build" under their kind.
	h.emit(func(l ports.HostListener) {
		l.ProcessStarted(ports.ProcessStart{
			ExecutionID: launch.ExecutionID,
			Name:        cfg.Name,
			ConfigID:    cfg.ID,
			ExecutorID:  executorID,
			ProjectName: cfg.ProjectName,
		})
		l.TaskStarted(ports.TaskEvent{
			ID:            taskID,
			Title:         "Running " + cfg.Name,
			Detail:        cfg.Command,
			Indeterminate: true,
			ProjectName:   cfg.ProjectName,
			Running:       true,
		})
	})

	h.procs.Add(1)
	go func() {
		defer h.procs.Done()

		var wg sync.WaitGroup
		wg.Add(2)
		go h.streamLines(&wg, stdout, func(line string) {
			h.emitOutput(launch.ExecutionID, line, ports.StreamStdout)
		})
		go h.streamLines(&wg, stderr, func(line string) {
			h.emitOutput(launch.ExecutionID, line, ports.StreamStderr)
		})
		wg.Wait()

		code := exitCode(cmd.Wait())
		h.emitOutput(launch.ExecutionID, fmt.Sprintf("Process finished with exit code %d", code), ports.StreamSystem)
		h.emit(func(l ports.HostListener) {
			l.TaskFinished(taskID)
			l.ProcessTerminated(ports.ProcessExit{ExecutionID: launch.ExecutionID, ExitCode: code})
		})
		h.logger.Info("Run finished", "execution_id", launch.ExecutionID, "exit_code", code)
	}()

	return launch, nil
}

func (h *Host) emitOutput(executionID, line, stream string) {
	h.emit(func(l ports.HostListener) {
		l.ProcessOutput(ports.ProcessOutput{ExecutionID: executionID, Text: line + "\n", Stream: stream})
	})
}

// Build runs the configured build command in project's directory. Progress
// is reported as a build task; every output line becomes a build message.
func (h *Host) Build(ctx context.Context, project ports.Project) error {
	if strings.TrimSpace(h.opts.BuildCommand) == "" {
		return ErrNoBuildCommand
	}
	if err := h.ctx.Err(); err != nil {
		return domain.ErrClosed
	}

	h.mu.Lock()
	if h.building {
		h.mu.Unlock()
		return ErrBuildRunning
	}
	h.building = true
	h.mu.Unlock()

	release := func() {
		h.mu.Lock()
		h.building = false
		h.mu.Unlock()
	}

	dir := project.Path
	if dir == "" {
		dir = h.projectPath(project.Name)
	}
	cmd := h.command(h.opts.BuildCommand, dir)
	stdout, stderr, err := pipes(cmd)
	if err != nil {
		release()
		return err
	}
	if err := cmd.Start(); err != nil {
		release()
		return fmt.Errorf("start build: %w", err)
	}

	buildID := uuid.New().String()
	taskID := "build-" + buildID
	h.logger.Info("Build started", "project", project.Name, "build_id", buildID)

	h.emit(func(l ports.HostListener) {
		l.BuildStarted(ports.BuildStart{BuildID: buildID, Title: "Build " + project.Name, ProjectName: project.Name})
		l.TaskStarted(ports.TaskEvent{
			ID:            taskID,
			Title:         "Building " + project.Name,
			Indeterminate: true,
			ProjectName:   project.Name,
			Running:       true,
		})
	})

	h.procs.Add(1)
	go func() {
		defer h.procs.Done()
		defer release()

		var (
			mu       sync.Mutex
			errs     int
			warnings int
			wg       sync.WaitGroup
		)
		onLine := func(line string) {
			severity := classifyBuildLine(line)
			mu.Lock()
			switch severity {
			case ports.SeverityError:
				errs++
			case ports.SeverityWarning:
				warnings++
			}
			mu.Unlock()
			h.emit(func(l ports.HostListener) {
				l.BuildMessage(ports.BuildMessage{BuildID: buildID, Text: line, Severity: severity})
			})
		}
		wg.Add(2)
		go h.streamLines(&wg, stdout, onLine)
		go h.streamLines(&wg, stderr, onLine)
		wg.Wait()

		code := exitCode(cmd.Wait())
		mu.Lock()
		result := ports.BuildResult{BuildID: buildID, Success: code == 0, Errors: errs, Warnings: warnings}
		mu.Unlock()
		if code != 0 && result.Errors == 0 {
			result.Message = fmt.Sprintf("Build failed with exit code %d", code)
		}

		h.emit(func(l ports.HostListener) {
			l.TaskFinished(taskID)
			l.BuildFinished(result)
		})
		h.logger.Info("Build finished", "build_id", buildID, "exit_code", code, "errors", result.Errors, "warnings", result.Warnings)
	}()

	return nil
}

// command builds a shell invocation bound to the host's lifetime.
func (h *Host) command(command, dir string) *exec.Cmd {
	shell, args := shellCommand(command)
	cmd := exec.CommandContext(h.ctx, shell, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	return cmd
}

func pipes(cmd *exec.Cmd) (io.ReadCloser, io.ReadCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return stdout, stderr, nil
}

func (h *Host) streamLines(wg *sync.WaitGroup, r io.Reader, fn func(string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		h.logger.Debug("Output stream ended", "error", err)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// classifyBuildLine picks a severity from compiler-style keywords.
func classifyBuildLine(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "fatal"):
		return ports.SeverityError
	case strings.Contains(lower, "warning"), strings.Contains(lower, "warn:"):
		return ports.SeverityWarning
	default:
		return ports.SeverityInfo
	}
}
