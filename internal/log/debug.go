// Package log is gw's debug log. Lines are buffered in memory until a
// file is chosen, so startup messages survive the window before the
// config and flags are parsed; without a file everything is discarded.
// It also records the subprocess invocations the git and forge services
// spawn, which make up the bulk of the log.
package log

import (
	"log"
	"os"
	"strings"
	"sync"
)

type sink struct {
	mu      sync.Mutex
	file    *os.File
	held    []byte
	discard bool
}

var (
	out = &sink{}
	// std gives the sink the standard timestamp formatting.
	std = log.New(out, "", log.LstdFlags|log.Lmicroseconds)
)

// Write appends to the file when one is set, otherwise holds the line
// in memory for a later SetFile.
func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discard {
		return len(p), nil
	}
	if s.file != nil {
		n, err := s.file.Write(p)
		// Flush per line; a crash is exactly when the log matters.
		_ = s.file.Sync()
		return n, err
	}
	s.held = append(s.held, p...)
	return len(p), nil
}

// SetFile routes the log to path, replaying anything held so far. An
// empty path, or a path that cannot be opened, drops the held lines and
// everything after them.
func SetFile(path string) error {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.file != nil {
		_ = out.file.Close()
		out.file = nil
	}
	if path == "" {
		out.discard = true
		out.held = nil
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- user-chosen log path
	if err != nil {
		out.discard = true
		out.held = nil
		return err
	}
	out.file = f
	out.discard = false
	if len(out.held) > 0 {
		_, _ = f.Write(out.held)
		_ = f.Sync()
		out.held = nil
	}
	return nil
}

// Close closes the log file if one is open.
func Close() error {
	out.mu.Lock()
	defer out.mu.Unlock()

	if out.file == nil {
		return nil
	}
	err := out.file.Close()
	out.file = nil
	return err
}

// Printf writes one formatted line.
func Printf(format string, args ...any) {
	std.Printf(format, args...)
}

// Println writes one line.
func Println(v ...any) {
	std.Println(v...)
}

// Exec records a subprocess about to run.
func Exec(name string, args []string, cwd string) {
	Printf("run: %s %s (cwd=%s)", name, strings.Join(args, " "), cwd)
}

// ExecError records a failed subprocess with its trimmed stderr.
func ExecError(name string, args []string, stderr string) {
	Printf("error: %s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr))
}
