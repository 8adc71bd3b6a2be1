package testutil

import "testing"

// Scenario steps run as nested subtests, so `go test -v` prints a failing
// case as "Given .../When .../Then ...".

func Given(t *testing.T, precondition string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", precondition, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", action, fn)
}

func Then(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", outcome, fn)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	if !t.Run(keyword+" "+desc, fn) {
		t.Logf("step failed: %s %s", keyword, desc)
	}
}
