package testutil

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// CallRecord is one recorded call on a fake collaborator.
type CallRecord struct {
	Method    string
	Args      []string
	Timestamp time.Time
	Error     error
}

// Methods returns the method names of calls in call order.
func Methods(calls []CallRecord) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

type callEntry struct {
	Method string   `yaml:"method"`
	Args   []string `yaml:"args,omitempty"`
	At     string   `yaml:"at"`
	Error  string   `yaml:"error,omitempty"`
}

// FormatCalls renders calls as a YAML list for test failure output.
func FormatCalls(calls []CallRecord) string {
	entries := make([]callEntry, 0, len(calls))
	for _, c := range calls {
		e := callEntry{Method: c.Method, Args: c.Args, At: c.Timestamp.Format(time.RFC3339Nano)}
		if c.Error != nil {
			e.Error = c.Error.Error()
		}
		entries = append(entries, e)
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// LogCallsOnFailure logs the calls recorded by f when t fails.
func LogCallsOnFailure(t *testing.T, f *FakeVcs) {
	t.Helper()
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("vcs calls:\n%s", FormatCalls(f.Calls()))
		}
	})
}
