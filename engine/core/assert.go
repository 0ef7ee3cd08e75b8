package core

import "fmt"

// Assertf panics with an error wrapping err when cond does not hold. Used for
// budget and contract violations that the engine cannot recover from.
func Assertf(cond bool, err error, format string, args ...interface{}) {
	if cond {
		return
	}
	e := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	LogError(e.Error())
	panic(e)
}
