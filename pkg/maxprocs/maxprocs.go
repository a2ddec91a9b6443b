package maxprocs

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

// Adjust aligns GOMAXPROCS with the container CPU quota, if any.
// Safe to call multiple times; the last call wins.
func Adjust() {
	_, err := maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "lineprof: failed to set GOMAXPROCS: %v\n", err)
	}
}
