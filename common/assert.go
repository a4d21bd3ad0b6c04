package common

import "fmt"

// Assert panics with msg if condition is false. It is reserved for internal
// invariant violations and documented caller-contract violations (such as
// LockUpgrade on a RID the caller does not hold SHARED); ordinary failures
// are communicated via bool/nil returns instead.
func Assert(condition bool, msg string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf(msg, args...))
	}
}
