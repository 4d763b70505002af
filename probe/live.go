package probe

import (
	"context"
	"time"

	"github.com/hb9tf/ssbscan/config"
)

// LiveRunner builds a fresh Runner from the persisted settings for
// every invocation, so configuration updates through the API apply to
// the next probe run without a restart.
type LiveRunner struct {
	Config *config.Config
	// LogLine is handed to each runner, see Runner.LogLine.
	LogLine func(string)
}

func (l *LiveRunner) Invoke(ctx context.Context, req Request) (Outcome, error) {
	s := l.Config.Get()
	r := &Runner{
		Executable: s.Probe.ExecutablePath,
		DeviceArgs: s.Probe.DeviceArgs,
		DDCRate:    s.Probe.DDCRate,
		Timeout:    time.Duration(s.Probe.TimeoutSeconds) * time.Second,
		LogLine:    l.LogLine,
	}
	return r.Invoke(ctx, req)
}
