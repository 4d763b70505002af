package scan

import (
	"github.com/hb9tf/ssbscan/probe"
)

// SingleParams are the parameters of a one-off single-frequency probe.
type SingleParams struct {
	FrequencyHz int64
	Gain        int
	RxSigLength int
}

// ProbeSingle runs one candidate synchronously with the usual retry
// budget. It holds the session slot for its duration, so it cannot
// overlap a scan or capture. Stop cancels it between attempts.
func (m *Manager) ProbeSingle(p SingleParams) (probe.Outcome, error) {
	m.mu.Lock()
	if m.kind != kindNone {
		m.mu.Unlock()
		return probe.Outcome{}, ErrAlreadyRunning
	}
	m.kind = kindSingle
	m.singleCancel = false
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.kind = kindNone
		m.mu.Unlock()
	}()

	m.logf("single frequency probe at %.5f GHz", float64(p.FrequencyHz)/1e9)
	return m.probeCandidate(probe.Request{
		FrequencyHz: p.FrequencyHz,
		Gain:        p.Gain,
		RxSigLength: p.RxSigLength,
	})
}
