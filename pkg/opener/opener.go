// Package opener hands URLs to the host environment, the way clicking a
// link would: the system's URL handler (usually the browser) takes over and
// dsget does not wait for it.
package opener

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// Operating system constants
const (
	OSDarwin  = "darwin"
	OSWindows = "windows"
	OSLinux   = "linux"
	OSAndroid = "android"
)

// Opener navigates to a URL.
type Opener interface {
	// Open starts navigation and returns without waiting for it to finish.
	Open(url string) error
}

// Immutable
type systemOpener struct {
	goos  string
	start func(name string, args ...string) error
}

// New returns an Opener using the platform's URL handler.
func New() Opener {
	return &systemOpener{goos: runtime.GOOS, start: startDetached}
}

func (o *systemOpener) Open(url string) error {
	name, args, err := command(o.goos, url)
	if err != nil {
		return err
	}
	slog.Debug("Opening", "url", url, "command", name)
	if err := o.start(name, args...); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

// command returns the program and arguments that open url on goos.
func command(goos, url string) (string, []string, error) {
	switch goos {
	case OSDarwin:
		return "open", []string{url}, nil
	case OSWindows:
		// "cmd /c start" would split the URL at '&'
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case OSAndroid:
		return "am", []string{"start", "-a", "android.intent.action.VIEW", "-d", url}, nil
	case OSLinux, "freebsd", "openbsd", "netbsd", "dragonfly":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported operating system: %s", goos)
	}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("URL handler exited", "command", name, "error", err)
		}
	}()
	return nil
}
