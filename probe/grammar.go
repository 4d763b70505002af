package probe

import (
	"regexp"
	"strconv"
	"strings"
)

// Grammar describes how to classify the probe executable's text output.
// The tool's output format is not under our control, so the markers are
// configurable rather than hard-coded in the controller.
type Grammar struct {
	// SSBCountRe must capture the reported SSB count in group 1.
	SSBCountRe *regexp.Regexp
	// OverflowTokens mark a sample buffer overrun; seeing one mid-stream
	// invalidates the rest of the capture.
	OverflowTokens []string
	// TimeoutTokens mark a streaming timeout or device connection error
	// reported by the tool itself.
	TimeoutTokens []string
}

// DefaultGrammar matches the output of the rfnoc SSB detection tool.
func DefaultGrammar() *Grammar {
	return &Grammar{
		SSBCountRe: regexp.MustCompile(`Number of SSB blocks detected: (\d+)`),
		OverflowTokens: []string{
			"Got an overflow indication",
			"Your write medium must sustain a rate",
			"Dropped samples will not be written",
		},
		TimeoutTokens: []string{
			"Timeout while streaming",
			"Operation timed out",
			"Could not connect DDC to detectSSB",
			"timed out during flush",
		},
	}
}

// IsOverflow reports whether a single output line carries an overflow
// marker.
func (g *Grammar) IsOverflow(line string) bool {
	for _, tok := range g.OverflowTokens {
		if strings.Contains(line, tok) {
			return true
		}
	}
	return false
}

// Classify folds the complete process output and its exit code into an
// Outcome. A zero exit without a recognizable count line is a process
// error, as is any non-zero exit.
func (g *Grammar) Classify(output string, exitCode int) Outcome {
	// A reported count dominates: the tool prints transient warnings
	// that must not mask a completed detection run. Take the last count,
	// intermediate ones may appear.
	if ms := g.SSBCountRe.FindAllStringSubmatch(output, -1); ms != nil {
		count, err := strconv.Atoi(ms[len(ms)-1][1])
		if err != nil {
			return Outcome{Kind: ProcessError, Message: "unparseable SSB count"}
		}
		if count > 0 {
			return Outcome{Kind: Success, SSBCount: count}
		}
		return Outcome{Kind: NoSignal}
	}

	for _, tok := range g.OverflowTokens {
		if strings.Contains(output, tok) {
			return Outcome{Kind: Overflow, Message: tok}
		}
	}
	for _, tok := range g.TimeoutTokens {
		if strings.Contains(output, tok) {
			return Outcome{Kind: Timeout, Message: tok}
		}
	}

	if exitCode != 0 {
		return Outcome{Kind: ProcessError, Message: "process exited with non-zero status"}
	}
	return Outcome{Kind: ProcessError, Message: "no SSB count reported"}
}
