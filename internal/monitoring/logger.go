// Package monitoring is where the estimation code sends its per-frame and
// per-cycle diagnostics.
package monitoring

import "log"

// Logf receives every diagnostic line. Lines carry a bracketed tag such as
// "[Estimate]" and go to the standard logger unless redirected.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger routes diagnostics to f and returns the previous destination so
// it can be put back. A nil f drops them.
func SetLogger(f func(format string, v ...interface{})) (previous func(format string, v ...interface{})) {
	previous = Logf
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
	return previous
}
