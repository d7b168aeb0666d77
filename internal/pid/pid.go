// Package pid guards against two daemons managing the same counters.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/healthd/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o600
)

// File is a PID file at a fixed path.
type File struct {
	path string
}

func New(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Acquire writes the current process ID. It fails with ErrAlreadyRunning
// if the file names a live process; a stale or unreadable file is replaced.
func (f *File) Acquire() error {
	errFactory := errors.New()

	if data, err := os.ReadFile(f.path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && alive(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, pid)
		}
	}

	if err := os.MkdirAll(filepath.Dir(f.path), defaultDirPerm); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	if err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), defaultFilePerm); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	return nil
}

// Release removes the PID file.
func (f *File) Release() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
