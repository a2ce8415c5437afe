package flowcore

import (
	"fmt"
	"time"
)

// recoverFromPanic converts a panic inside an activity's action into an
// *Error, the same defer-based guard the teacher pack installs at the top
// of every connector's Process method. Without it, a single misbehaving
// activity would crash the whole executor goroutine (or, inside a
// fork-join branch, silently abort a sibling's WaitGroup accounting).
func recoverFromPanic(err *error, id NodeID, input any, start time.Time) {
	if r := recover(); r != nil {
		*err = &Error{
			Timestamp: time.Now(),
			InputData: input,
			Err:       fmt.Errorf("panic: %v", r),
			Path:      []NodeID{id},
			Duration:  time.Since(start),
		}
	}
}
