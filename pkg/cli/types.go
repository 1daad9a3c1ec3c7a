// Package cli is the dsget command line: flag parsing, wiring of the
// download stack, and the handlers behind each command.
package cli

import (
	"dsget/pkg/config"
	"dsget/pkg/disk"
	"dsget/pkg/display"
	"dsget/pkg/download"
	"dsget/pkg/history"
)

// ExecutionResult is the outcome of a command.
type ExecutionResult struct {
	// ExitCode is the process status to exit with.
	ExitCode int
}

// Managers holds everything a handler may need. It is built once the
// global flags are parsed.
type Managers struct {
	Disp    display.Display
	SysCfg  config.ReadOnly
	Files   *download.FileDownloader
	History *history.History
	DiskMgr disk.Manager
	Theme   *Theme
}
