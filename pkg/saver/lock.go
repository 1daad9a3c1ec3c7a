package saver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockExt is appended to the locked path to name its lock file.
const LockExt = ".lock"

// Lock takes an exclusive lock on target by creating target+".lock" holding
// a timestamp and the owner's PID. A lock whose owner is no longer running is
// stale and gets taken over. Lock waits while the owner is alive, until ctx
// is done.
func Lock(ctx context.Context, target string) (func() error, error) {
	lockFile := target + LockExt

	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir for lock: %w", err)
	}

	for {
		f, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			content := fmt.Sprintf("%s %d", time.Now().Format(time.RFC3339), os.Getpid())
			if _, err := f.WriteString(content); err != nil {
				f.Close()
				os.Remove(lockFile)
				return nil, fmt.Errorf("failed to write to lock file: %w", err)
			}
			f.Close()

			return func() error {
				return os.Remove(lockFile)
			}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}

		owner, err := readOwner(lockFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Released between our attempts.
			continue
		case errors.Is(err, errMalformed) && isFresh(lockFile):
			// The owner may not have written its PID yet.
		case err != nil:
			os.Remove(lockFile)
			continue
		case !isPidAlive(owner):
			os.Remove(lockFile)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s held by pid %d: %w", lockFile, owner, context.Cause(ctx))
		case <-time.After(200 * time.Millisecond):
		}
	}
}

var errMalformed = errors.New("malformed lock file")

func readOwner(lockFile string) (int, error) {
	content, err := os.ReadFile(lockFile)
	if err != nil {
		return 0, err
	}
	parts := strings.Fields(string(content))
	if len(parts) < 2 {
		return 0, fmt.Errorf("%s: %w", lockFile, errMalformed)
	}
	pid, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", lockFile, errMalformed)
	}
	return pid, nil
}

func isFresh(lockFile string) bool {
	info, err := os.Stat(lockFile)
	return err == nil && time.Since(info.ModTime()) < 2*time.Second
}

func isPidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 only checks for existence
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return false
	}

	// EPERM: the process exists but belongs to someone else.
	return true
}
