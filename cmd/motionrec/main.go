package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/pimotion/motionrec/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode surfaces the errno behind a failure, such as a records directory
// that could not be created, as the process exit status
func exitCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 && errno < 256 {
		return int(errno)
	}
	return 1
}
