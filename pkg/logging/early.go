package logging

import (
	"fmt"
	"os"
)

// EarlyLog covers the window before the zap logger is configured, when
// config loading itself can fail. Error writes to stderr and exits.
type EarlyLog struct{}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ERROR: "+msg+"\n", args...)
	os.Exit(1)
}
