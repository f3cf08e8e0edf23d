// Package test holds helpers shared by tests of several packages.
package test

import (
	"strings"
	"testing"

	"github.com/go-kit/log"
)

type testingLogger struct {
	t testing.TB
}

// NewTestingLogger returns a logger writing logfmt lines to the test log, so
// they only show up for failed or verbose tests.
func NewTestingLogger(t testing.TB) log.Logger {
	return log.NewLogfmtLogger(&testingLogger{t: t})
}

func (l *testingLogger) Write(p []byte) (int, error) {
	l.t.Helper()
	l.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
