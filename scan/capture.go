package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/hb9tf/ssbscan/probe"
)

// CaptureParams are the operator-supplied parameters of a long-duration
// capture of a single frequency.
type CaptureParams struct {
	GSCN        int
	FrequencyHz int64
	Gain        int
	// FileDuration is the capture length per output file.
	FileDuration time.Duration
	// NumFiles splits the capture into this many files.
	NumFiles int
}

// StartCapture starts the capture worker for a single frequency. The
// same exclusivity and cancellation discipline as StartScan applies.
func (m *Manager) StartCapture(p CaptureParams) error {
	if p.NumFiles < 1 {
		return fmt.Errorf("capture needs at least one file, got %d", p.NumFiles)
	}
	if p.FileDuration <= 0 {
		return fmt.Errorf("capture needs a positive file duration, got %s", p.FileDuration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kind != kindNone {
		return ErrAlreadyRunning
	}
	m.kind = kindCapture
	m.log.Reset()
	m.capture = CaptureState{
		ID:          uuid.NewString(),
		Status:      StatusRunning,
		GSCN:        p.GSCN,
		FrequencyHz: p.FrequencyHz,
		TotalFiles:  p.NumFiles,
		StartedAt:   time.Now(),
	}

	go m.runCapture(p)
	return nil
}

// CaptureStatus returns a snapshot of the capture state.
func (m *Manager) CaptureStatus() CaptureState {
	m.mu.Lock()
	c := m.capture
	if c.Status == StatusRunning || c.Status == StatusStopping {
		c.Elapsed = time.Since(c.StartedAt)
	}
	m.mu.Unlock()
	c.Log = m.log.Snapshot()
	return c
}

func (m *Manager) captureCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture.CancelRequested
}

func (m *Manager) finishCapture(status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capture.Status = status
	m.capture.Elapsed = time.Since(m.capture.StartedAt)
	m.kind = kindNone
}

// captureFileName builds the per-file output name the original tooling
// expects downstream.
func captureFileName(gscn int, freq int64, fileIdx int) string {
	return fmt.Sprintf("gscn_%d_%.1fMHz_%s_file%d.dat",
		gscn, float64(freq)/1e6, time.Now().Format("20060102_150405"), fileIdx)
}

func (m *Manager) runCapture(p CaptureParams) {
	rxSigLength := int(p.FileDuration.Seconds() * float64(m.opts.sampleRate()))
	m.logf("starting capture of GSCN %d at %.5f GHz: %d files of %s each",
		p.GSCN, float64(p.FrequencyHz)/1e9, p.NumFiles, p.FileDuration)

	if err := os.MkdirAll(m.opts.DataDir, 0o755); err != nil {
		m.logf("capture failed: unable to create data directory: %s", err)
		m.finishCapture(StatusFailed)
		return
	}

	for fileIdx := 1; fileIdx <= p.NumFiles; fileIdx++ {
		if m.captureCancelled() {
			break
		}
		if ok := m.captureFile(p, rxSigLength, fileIdx); !ok {
			return
		}
	}

	m.mu.Lock()
	cancelled := m.capture.CancelRequested
	files := m.capture.FileIndex
	bytes := m.capture.BytesWritten
	m.mu.Unlock()

	if cancelled {
		m.logf("capture stopped, %d/%d files, %d bytes written", files, p.NumFiles, bytes)
	} else {
		m.logf("capture completed, %d files, %d bytes written", files, bytes)
	}
	m.finishCapture(StatusCompleted)
}

// captureFile records one output file, retrying within the attempt
// budget. An overflow truncates the current file and restarts it fresh
// rather than aborting the capture. Returns false when the session was
// moved to a terminal state.
func (m *Manager) captureFile(p CaptureParams, rxSigLength, fileIdx int) bool {
	budget := m.opts.attempts()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.retryWait()
	bo.MaxElapsedTime = 0

	for attempt := 1; ; attempt++ {
		if m.captureCancelled() {
			return true
		}

		outFile := filepath.Join(m.opts.DataDir, captureFileName(p.GSCN, p.FrequencyHz, fileIdx))
		m.logf("capturing file %d/%d: %s", fileIdx, p.NumFiles, filepath.Base(outFile))

		outcome, err := m.invoker.Invoke(context.Background(), probe.Request{
			FrequencyHz: p.FrequencyHz,
			Gain:        p.Gain,
			RxSigLength: rxSigLength,
			OutputFile:  outFile,
			// A healthy run streams for the whole file duration, so the
			// wall clock limit scales with it.
			Timeout: p.FileDuration + time.Minute,
		})
		if err != nil {
			m.logf("capture failed: %s", err)
			m.finishCapture(StatusFailed)
			return false
		}
		m.logf("attempt %d/%d: %s", attempt, budget, describeOutcome(outcome))

		switch NextAction(outcome.Kind, budget-attempt) {
		case ActionAdvance:
			m.accountFile(outFile, fileIdx)
			return true
		case ActionRetry:
			if outcome.Kind == probe.Overflow {
				// The truncated file is unusable; drop it and start the
				// file over.
				if err := os.Remove(outFile); err != nil && !os.IsNotExist(err) {
					m.logf("unable to remove truncated capture file: %s", err)
				}
			}
			if m.captureCancelled() {
				return true
			}
			time.Sleep(bo.NextBackOff())
		case ActionRecordMiss, ActionFail:
			m.logf("capture failed: file %d failed after %d attempts: %s", fileIdx, attempt, describeOutcome(outcome))
			m.finishCapture(StatusFailed)
			return false
		}
	}
}

// accountFile records the finished file's size in the capture state.
func (m *Manager) accountFile(path string, fileIdx int) {
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	m.mu.Lock()
	m.capture.FileIndex = fileIdx
	m.capture.BytesWritten += size
	m.mu.Unlock()
	m.logf("finished file %d (%d bytes)", fileIdx, size)
}
