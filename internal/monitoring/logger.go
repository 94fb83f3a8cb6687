// Package monitoring carries the module's diagnostic logging hooks. Binaries
// and tests mute or redirect all output in one place via SetLogger;
// per-iteration fit traces go through Debugf and print only in verbose mode.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose toggles Debugf output. Off by default.
func SetVerbose(on bool) {
	verbose = on
}

// Debugf logs like Logf but only in verbose mode. The fitter routes its
// per-iteration trace lines through it.
func Debugf(format string, v ...interface{}) {
	if verbose {
		Logf(format, v...)
	}
}
