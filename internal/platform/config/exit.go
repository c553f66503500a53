package config

import (
	"fmt"
	"os"
)

// Exitf prints a formatted message to stderr and terminates with exit
// code 1. The binaries use it for startup failures that leave nothing
// running to shut down.
func Exitf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
