// Package probe spawns and supervises the external SSB detection
// executable for a single frequency and classifies its outcome.
package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/shirou/gopsutil/v3/process"
)

// OutcomeKind classifies one probe invocation.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	NoSignal
	Overflow
	Timeout
	ProcessError
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case NoSignal:
		return "no signal"
	case Overflow:
		return "overflow"
	case Timeout:
		return "timeout"
	case ProcessError:
		return "process error"
	default:
		return fmt.Sprintf("unknown outcome kind %d", int(k))
	}
}

// Retryable reports whether another attempt at the same candidate can
// succeed. Spawn-level faults never reach an Outcome; they are returned
// as errors from Invoke instead.
func (k OutcomeKind) Retryable() bool {
	switch k {
	case Overflow, Timeout, ProcessError:
		return true
	default:
		return false
	}
}

// Outcome is the classified result of one invocation.
type Outcome struct {
	Kind     OutcomeKind
	SSBCount int
	// Message carries the matched marker or error detail, if any.
	Message string
}

// Request holds the per-invocation parameters.
type Request struct {
	FrequencyHz int64
	Gain        int
	RxSigLength int
	// OutputFile, when set, makes the tool write the raw capture there;
	// otherwise samples are discarded (--null).
	OutputFile string
	// Timeout extends the runner's wall clock limit for this invocation;
	// the larger of the two applies. Long captures stream for their whole
	// file duration, which can exceed the scan-sized runner limit.
	Timeout time.Duration
}

// Runner drives the external probe executable. The zero value is not
// usable; Executable must be set and Grammar defaults via DefaultGrammar
// when nil.
type Runner struct {
	// Executable is the path of the probe binary.
	Executable string
	// DeviceArgs is the device connection string, e.g. "type=x300".
	DeviceArgs string
	// DDCRate is the down-converter rate passed to the tool.
	DDCRate int
	// Timeout is the hard wall clock limit per invocation.
	Timeout time.Duration
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	GracePeriod time.Duration
	// Grammar classifies the tool's output; nil means DefaultGrammar.
	Grammar *Grammar
	// LogLine, when set, receives every output line and controller
	// event for the live session log.
	LogLine func(string)
}

func (r *Runner) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	glog.V(1).Info(line)
	if r.LogLine != nil {
		r.LogLine(line)
	}
}

func (r *Runner) grammar() *Grammar {
	if r.Grammar != nil {
		return r.Grammar
	}
	return DefaultGrammar()
}

// buildArgs assembles the fixed argument grammar of the probe tool.
func (r *Runner) buildArgs(req Request) []string {
	args := []string{
		"--args", r.DeviceArgs,
		"--freq", fmt.Sprintf("%d", req.FrequencyHz),
		"--gain", fmt.Sprintf("%d", req.Gain),
		"--ddc-rate", fmt.Sprintf("%d", r.DDCRate),
		"--rx-sig-length", fmt.Sprintf("%d", req.RxSigLength),
		"--setup", "3",
	}
	if req.OutputFile != "" {
		args = append(args, "--file", req.OutputFile)
	} else {
		args = append(args, "--null")
	}
	return args
}

// CleanupStale terminates any leftover instances of the probe executable.
// A stuck prior invocation must never block a new one.
func (r *Runner) CleanupStale() {
	name := filepath.Base(r.Executable)
	procs, err := process.Processes()
	if err != nil {
		glog.Warningf("unable to list processes for cleanup: %s", err)
		return
	}
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		cmdline, _ := p.Cmdline()
		if pname != name && !strings.Contains(cmdline, r.Executable) {
			continue
		}
		r.logf("terminating stale probe process %d", p.Pid)
		if err := p.Terminate(); err != nil {
			continue
		}
		deadline := time.Now().Add(r.gracePeriod())
		for time.Now().Before(deadline) {
			if running, _ := p.IsRunning(); !running {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if running, _ := p.IsRunning(); running {
			p.Kill()
		}
	}
}

func (r *Runner) gracePeriod() time.Duration {
	if r.GracePeriod > 0 {
		return r.GracePeriod
	}
	return 2 * time.Second
}

// killGroup terminates the child's process group: SIGTERM, grace, SIGKILL.
func (r *Runner) killGroup(cmd *exec.Cmd) {
	pid := cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-time.After(r.gracePeriod()):
		syscall.Kill(-pid, syscall.SIGKILL)
	case <-processExited(cmd):
	}
}

// processExited closes the returned channel once the process can be
// signalled no more. It polls; Wait() is reserved for the reader path.
func processExited(cmd *exec.Cmd) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := syscall.Kill(-cmd.Process.Pid, 0); err != nil {
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()
	return done
}

// Invoke runs the probe executable once for the given request.
//
// The returned error is non-nil only for non-retryable spawn faults
// (executable missing or not runnable); everything the tool itself does,
// including crashing, comes back as a classified Outcome.
func (r *Runner) Invoke(ctx context.Context, req Request) (Outcome, error) {
	r.CleanupStale()

	if _, err := os.Stat(r.Executable); err != nil {
		return Outcome{}, fmt.Errorf("probe executable %q: %w", r.Executable, err)
	}

	args := r.buildArgs(req)
	cmd := exec.Command(r.Executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Merge stdout and stderr into one line stream; the tool reports
	// overflows on stderr.
	pr, pw, err := os.Pipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("unable to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.logf("executing: %s %s", r.Executable, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return Outcome{}, fmt.Errorf("unable to start probe: %w", err)
		}
		return Outcome{Kind: ProcessError, Message: err.Error()}, nil
	}
	pw.Close() // child holds the write end now

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				lines <- line
			}
		}
	}()

	limit := r.Timeout
	if req.Timeout > limit {
		limit = req.Timeout
	}

	grammar := r.grammar()
	var output []string
	timeout := time.NewTimer(limit)
	defer timeout.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Output closed, the child is exiting.
				pr.Close()
				exitCode := 0
				if err := cmd.Wait(); err != nil {
					var exitErr *exec.ExitError
					if errors.As(err, &exitErr) {
						exitCode = exitErr.ExitCode()
					} else {
						return Outcome{Kind: ProcessError, Message: err.Error()}, nil
					}
				}
				r.logf("probe finished with code %d", exitCode)
				return grammar.Classify(strings.Join(output, "\n"), exitCode), nil
			}
			r.logf("%s", line)
			output = append(output, line)
			if grammar.IsOverflow(line) {
				// Overflow invalidates the rest of this capture; do not
				// wait for a natural exit.
				r.logf("overflow detected, terminating probe")
				r.killGroup(cmd)
				drain(lines, pr)
				cmd.Wait()
				return Outcome{Kind: Overflow, Message: line}, nil
			}
		case <-timeout.C:
			r.logf("probe timed out after %s", limit)
			r.killGroup(cmd)
			drain(lines, pr)
			cmd.Wait()
			return Outcome{Kind: Timeout, Message: fmt.Sprintf("no result within %s", limit)}, nil
		case <-ctx.Done():
			r.killGroup(cmd)
			drain(lines, pr)
			cmd.Wait()
			return Outcome{Kind: Timeout, Message: ctx.Err().Error()}, nil
		}
	}
}

// drain closes the read pipe and consumes remaining lines so the reader
// goroutine exits.
func drain(lines <-chan string, pr *os.File) {
	pr.Close()
	for range lines {
	}
}
