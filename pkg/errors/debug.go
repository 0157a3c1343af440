package errors

import (
	"errors"
	"fmt"
)

// Chain lists every error in err's unwrap chain as "type: message", outermost
// first. Joined errors contribute each branch in order.
func Chain(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		for e != nil {
			out = append(out, fmt.Sprintf("%T: %v", e, e))
			if joined, ok := e.(interface{ Unwrap() []error }); ok {
				for _, branch := range joined.Unwrap() {
					walk(branch)
				}
				return
			}
			e = errors.Unwrap(e)
		}
	}
	walk(err)
	return out
}
