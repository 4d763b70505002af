package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hb9tf/ssbscan/probe"
)

func waitForCaptureTerminal(t *testing.T, m *Manager) CaptureState {
	t.Helper()
	require.Eventually(t, func() bool {
		s := m.CaptureStatus().Status
		return s == StatusCompleted || s == StatusFailed
	}, 30*time.Second, 10*time.Millisecond)
	return m.CaptureStatus()
}

func captureParams() CaptureParams {
	return CaptureParams{
		GSCN:         7846,
		FrequencyHz:  3499680000,
		Gain:         30,
		FileDuration: time.Second,
		NumFiles:     3,
	}
}

// writeCaptureFile emulates the probe tool writing its binary capture.
func writeCaptureFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestCaptureCompletes(t *testing.T) {
	inv := &stubInvoker{}
	inv.fn = func(req probe.Request) (probe.Outcome, error) {
		writeCaptureFile(t, req.OutputFile, 1024)
		return probe.Outcome{Kind: probe.Success, SSBCount: 10}, nil
	}
	m := NewManager(inv, newMemStore(), testOptions(t))

	require.NoError(t, m.StartCapture(captureParams()))
	final := waitForCaptureTerminal(t, m)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 3, final.FileIndex)
	assert.Equal(t, int64(3*1024), final.BytesWritten)
	assert.Equal(t, 3, inv.callCount())
}

func TestCaptureOverflowRestartsFile(t *testing.T) {
	inv := &stubInvoker{}
	first := true
	inv.fn = func(req probe.Request) (probe.Outcome, error) {
		inv.mu.Lock()
		overflow := first
		first = false
		inv.mu.Unlock()
		if overflow {
			// Truncated partial file left behind by the overflowing run.
			writeCaptureFile(t, req.OutputFile, 10)
			return probe.Outcome{Kind: probe.Overflow, Message: "Got an overflow indication"}, nil
		}
		writeCaptureFile(t, req.OutputFile, 2048)
		return probe.Outcome{Kind: probe.Success, SSBCount: 1}, nil
	}
	p := captureParams()
	p.NumFiles = 2
	m := NewManager(inv, newMemStore(), testOptions(t))

	require.NoError(t, m.StartCapture(p))
	final := waitForCaptureTerminal(t, m)

	// The overflowed first attempt is dropped, not counted.
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 2, final.FileIndex)
	assert.Equal(t, int64(2*2048), final.BytesWritten)
	assert.Equal(t, 3, inv.callCount())
}

func TestCaptureScalesProbeTimeout(t *testing.T) {
	inv := &stubInvoker{}
	inv.fn = func(req probe.Request) (probe.Outcome, error) {
		writeCaptureFile(t, req.OutputFile, 64)
		return probe.Outcome{Kind: probe.Success, SSBCount: 1}, nil
	}
	p := captureParams()
	p.FileDuration = 2 * time.Second
	p.NumFiles = 1
	m := NewManager(inv, newMemStore(), testOptions(t))

	require.NoError(t, m.StartCapture(p))
	waitForCaptureTerminal(t, m)

	// The per-invocation limit covers the file duration plus headroom.
	require.Equal(t, 1, inv.callCount())
	inv.mu.Lock()
	req := inv.calls[0]
	inv.mu.Unlock()
	assert.Equal(t, 2*time.Second+time.Minute, req.Timeout)
}

func TestCaptureLongerThanRunnerTimeout(t *testing.T) {
	// A healthy capture streams for the whole file duration; the
	// scan-sized runner timeout must not cut it down.
	script := `#!/bin/sh
out=""
prev=""
for a in "$@"; do
	if [ "$prev" = "--file" ]; then out="$a"; fi
	prev="$a"
done
sleep 2
echo "capture" > "$out"
echo "Number of SSB blocks detected: 2"
`
	exe := filepath.Join(t.TempDir(), "capture_tool")
	require.NoError(t, os.WriteFile(exe, []byte(script), 0o755))

	r := &probe.Runner{
		Executable:  exe,
		DeviceArgs:  "type=x300",
		DDCRate:     7680000,
		Timeout:     500 * time.Millisecond,
		GracePeriod: time.Second,
	}
	p := captureParams()
	p.FileDuration = 2 * time.Second
	p.NumFiles = 1
	m := NewManager(r, newMemStore(), testOptions(t))

	require.NoError(t, m.StartCapture(p))
	final := waitForCaptureTerminal(t, m)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 1, final.FileIndex)
	assert.Positive(t, final.BytesWritten)
}

func TestCaptureRetriesExhaustedFails(t *testing.T) {
	inv := &stubInvoker{fn: func(req probe.Request) (probe.Outcome, error) {
		return probe.Outcome{Kind: probe.Overflow}, nil
	}}
	m := NewManager(inv, newMemStore(), testOptions(t))

	require.NoError(t, m.StartCapture(captureParams()))
	final := waitForCaptureTerminal(t, m)

	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 0, final.FileIndex)
	assert.Equal(t, 2, inv.callCount())
}

func TestCaptureStop(t *testing.T) {
	started := make(chan struct{}, 1)
	inv := &stubInvoker{}
	inv.fn = func(req probe.Request) (probe.Outcome, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(20 * time.Millisecond)
		writeCaptureFile(t, req.OutputFile, 512)
		return probe.Outcome{Kind: probe.Success, SSBCount: 1}, nil
	}
	p := captureParams()
	p.NumFiles = 100
	m := NewManager(inv, newMemStore(), testOptions(t))

	require.NoError(t, m.StartCapture(p))
	<-started
	m.Stop()

	final := waitForCaptureTerminal(t, m)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.True(t, final.CancelRequested)
	assert.Less(t, final.FileIndex, p.NumFiles)
}

func TestCaptureRejectsBadParams(t *testing.T) {
	m := NewManager(&stubInvoker{}, newMemStore(), testOptions(t))

	p := captureParams()
	p.NumFiles = 0
	assert.Error(t, m.StartCapture(p))

	p = captureParams()
	p.FileDuration = 0
	assert.Error(t, m.StartCapture(p))
}

func TestCaptureExcludesScan(t *testing.T) {
	release := make(chan struct{})
	inv := &stubInvoker{}
	inv.fn = func(req probe.Request) (probe.Outcome, error) {
		<-release
		writeCaptureFile(t, req.OutputFile, 1)
		return probe.Outcome{Kind: probe.Success, SSBCount: 1}, nil
	}
	p := captureParams()
	p.NumFiles = 1
	m := NewManager(inv, newMemStore(), testOptions(t))

	require.NoError(t, m.StartCapture(p))
	require.Eventually(t, func() bool { return inv.callCount() > 0 }, 5*time.Second, time.Millisecond)

	// Only one of {scan, capture} may run at a time.
	err := m.StartScan(ScanParams{Band: "n78", MaxCandidates: 1})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	waitForCaptureTerminal(t, m)
}
