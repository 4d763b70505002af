// Package scan drives band scans and long-duration captures: it owns
// the process-wide session state, iterates raster candidates through
// the probe controller and persists detections.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/ssbscan/nr"
	"github.com/hb9tf/ssbscan/probe"
	"github.com/hb9tf/ssbscan/store"
)

// ErrAlreadyRunning is returned when a session is started while another
// one is active.
var ErrAlreadyRunning = errors.New("a session is already running")

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// sessionKind tracks which session type currently owns the worker slot.
type sessionKind int

const (
	kindNone sessionKind = iota
	kindScan
	kindCapture
	kindSingle
)

// ScanState is the live state of a band scan. Snapshots of it are safe
// to hand out; the worker owns the canonical copy behind the manager
// lock.
type ScanState struct {
	ID              string            `json:"id"`
	Status          Status            `json:"status"`
	Band            string            `json:"band"`
	CurrentIndex    int               `json:"currentIndex"`
	TotalCandidates int               `json:"totalCandidates"`
	CurrentGSCN     int               `json:"currentGscn"`
	Results         []store.Detection `json:"results"`
	Log             []string          `json:"log"`
	StartedAt       time.Time         `json:"startedAt"`
	CancelRequested bool              `json:"cancelRequested"`
}

// CaptureState is the live state of a long-duration capture.
type CaptureState struct {
	ID              string        `json:"id"`
	Status          Status        `json:"status"`
	GSCN            int           `json:"gscn"`
	FrequencyHz     int64         `json:"frequencyHz"`
	Elapsed         time.Duration `json:"elapsed"`
	BytesWritten    int64         `json:"bytesWritten"`
	FileIndex       int           `json:"fileIndex"`
	TotalFiles      int           `json:"totalFiles"`
	Log             []string      `json:"log"`
	StartedAt       time.Time     `json:"startedAt"`
	CancelRequested bool          `json:"cancelRequested"`
}

// Invoker runs one probe invocation. Satisfied by *probe.Runner.
type Invoker interface {
	Invoke(ctx context.Context, req probe.Request) (probe.Outcome, error)
}

// Options tune the sessions; zero values fall back to the defaults the
// original deployment used.
type Options struct {
	// Attempts is the probe attempt budget per candidate.
	Attempts int
	// RetryWait seeds the exponential backoff between attempts.
	RetryWait time.Duration
	// SampleRate is the capture sample rate in samples/s, used to size
	// rx-sig-length for a capture duration.
	SampleRate int
	// DataDir is where capture files are written.
	DataDir string
	// MaxLogLines bounds the live log ring buffer.
	MaxLogLines int
}

func (o Options) attempts() int {
	if o.Attempts > 0 {
		return o.Attempts
	}
	return 2
}

func (o Options) retryWait() time.Duration {
	if o.RetryWait > 0 {
		return o.RetryWait
	}
	return 2 * time.Second
}

func (o Options) sampleRate() int {
	if o.SampleRate > 0 {
		return o.SampleRate
	}
	return 7680000
}

// Manager owns the single active session. All state reads and writes go
// through its lock; status calls return snapshot copies and never block
// behind the worker.
type Manager struct {
	invoker Invoker
	store   store.Store
	opts    Options
	log     *ringLog

	mu      sync.Mutex
	kind    sessionKind
	scan    ScanState
	capture CaptureState
	// singleCancel is the cancellation flag of a single-frequency probe,
	// which has no state struct of its own.
	singleCancel bool
}

func NewManager(invoker Invoker, st store.Store, opts Options) *Manager {
	return &Manager{
		invoker: invoker,
		store:   st,
		opts:    opts,
		log:     newRingLog(opts.MaxLogLines),
		scan:    ScanState{Status: StatusIdle},
		capture: CaptureState{Status: StatusIdle},
	}
}

// AddLog appends a line to the live session log. Exposed so the probe
// runner's LogLine callback can feed process output into it.
func (m *Manager) AddLog(line string) {
	m.log.Add(line)
}

func (m *Manager) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	glog.Info(line)
	m.log.Add(line)
}

// ScanParams are the operator-supplied parameters of a band scan.
type ScanParams struct {
	Band          string
	Gain          int
	RxSigLength   int
	StepSize      int
	MaxCandidates int
}

// StartScan computes the raster for the band and starts the scan worker.
// It fails with ErrAlreadyRunning if any session is active and with
// nr.ErrInvalidBand for unknown bands, leaving existing state untouched.
func (m *Manager) StartScan(p ScanParams) error {
	entries, err := nr.ComputeRaster(p.Band, p.StepSize, p.MaxCandidates)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kind != kindNone {
		return ErrAlreadyRunning
	}
	m.kind = kindScan
	m.log.Reset()
	m.scan = ScanState{
		ID:              uuid.NewString(),
		Status:          StatusRunning,
		Band:            p.Band,
		TotalCandidates: len(entries),
		StartedAt:       time.Now(),
	}

	go m.runScan(entries, p)
	return nil
}

// Stop requests cooperative cancellation of the active session. The
// worker observes it between probe attempts (never mid-probe), so it
// can take up to one probe timeout plus grace period to land.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.kind {
	case kindScan:
		m.scan.CancelRequested = true
		if m.scan.Status == StatusRunning {
			m.scan.Status = StatusStopping
		}
	case kindCapture:
		m.capture.CancelRequested = true
		if m.capture.Status == StatusRunning {
			m.capture.Status = StatusStopping
		}
	case kindSingle:
		m.singleCancel = true
	default:
		return
	}
	m.logf("stop requested")
}

// ScanStatus returns a snapshot of the scan state.
func (m *Manager) ScanStatus() ScanState {
	m.mu.Lock()
	s := m.scan
	s.Results = append([]store.Detection(nil), m.scan.Results...)
	m.mu.Unlock()
	s.Log = m.log.Snapshot()
	return s
}

func (m *Manager) scanCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scan.CancelRequested
}

// cancelRequested reports cancellation of whatever session currently
// owns the worker slot.
func (m *Manager) cancelRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.kind {
	case kindScan:
		return m.scan.CancelRequested
	case kindCapture:
		return m.capture.CancelRequested
	case kindSingle:
		return m.singleCancel
	default:
		return false
	}
}

// finishScan moves the scan to a terminal state and frees the worker
// slot.
func (m *Manager) finishScan(status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scan.Status = status
	m.kind = kindNone
}

func (m *Manager) runScan(entries []nr.RasterEntry, p ScanParams) {
	m.logf("starting scan of band %s, %d candidates", p.Band, len(entries))

	for i, e := range entries {
		if m.scanCancelled() {
			break
		}

		m.mu.Lock()
		m.scan.CurrentGSCN = e.GSCN
		m.mu.Unlock()
		m.logf("scanning GSCN %d at %.5f GHz (SCS %d kHz), candidate %d/%d",
			e.GSCN, float64(e.FrequencyHz)/1e9, e.SCS, i+1, len(entries))

		outcome, err := m.probeCandidate(probe.Request{
			FrequencyHz: e.FrequencyHz,
			Gain:        p.Gain,
			RxSigLength: p.RxSigLength,
		})
		if err != nil {
			m.logf("scan failed: %s", err)
			m.finishScan(StatusFailed)
			return
		}

		if outcome.Kind == probe.Success && outcome.SSBCount > 0 {
			d := store.Detection{
				Band:        p.Band,
				GSCN:        e.GSCN,
				FrequencyHz: e.FrequencyHz,
				SCS:         e.SCS,
				SSBCount:    outcome.SSBCount,
				Time:        time.Now().UTC(),
			}
			// Persist before advancing so a crash never loses a record
			// the status already reported as processed.
			if err := m.store.Append(context.Background(), d); err != nil {
				m.logf("scan failed: unable to store detection: %s", err)
				m.finishScan(StatusFailed)
				return
			}
			m.logf("SUCCESS: %d SSB blocks at %.5f GHz", outcome.SSBCount, float64(e.FrequencyHz)/1e9)
			m.mu.Lock()
			m.scan.Results = append(m.scan.Results, d)
			m.mu.Unlock()
		}

		m.mu.Lock()
		m.scan.CurrentIndex = i + 1
		m.mu.Unlock()
	}

	m.mu.Lock()
	cancelled := m.scan.CancelRequested
	processed := m.scan.CurrentIndex
	found := len(m.scan.Results)
	m.mu.Unlock()

	if cancelled {
		m.logf("scan stopped, %d/%d candidates processed, %d detections", processed, len(entries), found)
	} else {
		m.logf("scan completed, %d detections", found)
	}
	// Operator cancellation is a successful early completion, not a
	// failure.
	m.finishScan(StatusCompleted)
}

// probeCandidate runs the attempt/retry loop for one candidate. The
// returned error is a session-fatal controller fault.
func (m *Manager) probeCandidate(req probe.Request) (probe.Outcome, error) {
	budget := m.opts.attempts()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.retryWait()
	bo.MaxElapsedTime = 0

	var last probe.Outcome
	for attempt := 1; ; attempt++ {
		// Stop lands between attempts, not only between candidates.
		if m.cancelRequested() {
			return last, nil
		}
		outcome, err := m.invoker.Invoke(context.Background(), req)
		if err != nil {
			return outcome, err
		}
		last = outcome
		m.logf("attempt %d/%d: %s", attempt, budget, describeOutcome(outcome))

		switch NextAction(outcome.Kind, budget-attempt) {
		case ActionAdvance:
			return outcome, nil
		case ActionRetry:
			if m.cancelRequested() {
				return outcome, nil
			}
			time.Sleep(bo.NextBackOff())
		case ActionRecordMiss:
			m.logf("giving up after %d attempts, recording candidate as missed", attempt)
			return outcome, nil
		case ActionFail:
			return outcome, fmt.Errorf("non-retryable probe outcome: %s", describeOutcome(outcome))
		}
	}
}

func describeOutcome(o probe.Outcome) string {
	if o.Message != "" {
		return fmt.Sprintf("%s (%s)", o.Kind, o.Message)
	}
	if o.Kind == probe.Success {
		return fmt.Sprintf("%s, %d SSB blocks", o.Kind, o.SSBCount)
	}
	return o.Kind.String()
}
