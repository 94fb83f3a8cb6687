package monitoring

import (
	"testing"
)

// saveLogger restores the package logger and verbose flag after the test.
func saveLogger(t *testing.T) {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		verbose = false
	})
}

func TestSetLoggerInstallsCustomLogger(t *testing.T) {
	saveLogger(t)

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("hello %d", 1)

	if got != "hello %d" {
		t.Fatalf("custom logger not installed, got %q", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	saveLogger(t)

	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	SetLogger(nil)
	Logf("dropped")

	if called {
		t.Fatal("nil logger should drop messages")
	}
}

func TestLogfHasDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf must not be nil by default")
	}
}

func TestDebugfRespectsVerbose(t *testing.T) {
	saveLogger(t)

	var lines []string
	SetLogger(func(format string, v ...interface{}) { lines = append(lines, format) })

	Debugf("while off")
	if len(lines) != 0 {
		t.Fatalf("Debugf logged with verbose off: %v", lines)
	}

	SetVerbose(true)
	Debugf("while on")
	if len(lines) != 1 || lines[0] != "while on" {
		t.Fatalf("Debugf did not log with verbose on: %v", lines)
	}

	SetVerbose(false)
	Debugf("off again")
	if len(lines) != 1 {
		t.Fatalf("Debugf logged after verbose switched off: %v", lines)
	}
}
