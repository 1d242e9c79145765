// Package logging configures the process-wide zerolog logger: console or
// JSON output on stderr plus an always-on JSON file sink under the server's
// log directory. Chat and DM content never reaches the logs; callers log
// sizes and identifiers only.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// FileName is the log file created under the configured log directory.
const FileName = "darkrelay.log"

const (
	logFilePerm os.FileMode = 0o600
	logDirPerm  os.FileMode = 0o700

	// rotateBytes caps the active log file; one rotated predecessor is kept.
	rotateBytes int64 = 100 * 1024 * 1024
)

// Config controls logger initialization.
type Config struct {
	Format string // "json", "console", or "auto"
	Level  string // "trace" .. "error"
	Dir    string // log directory; empty disables the file sink
}

var (
	mu         sync.Mutex
	fileCloser io.Closer
)

func init() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Init configures zerolog globals and establishes the package baseline
// logger. A bad log directory disables the file sink but never fails
// startup.
func Init(cfg Config) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	writer := selectWriter(cfg.Format)
	if fileCloser != nil {
		_ = fileCloser.Close()
		fileCloser = nil
	}
	if cfg.Dir != "" {
		fileWriter, err := newRotatingFileWriter(filepath.Join(cfg.Dir, FileName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: unable to configure file output: %v\n", err)
		} else {
			writer = io.MultiWriter(writer, fileWriter)
			fileCloser = fileWriter
		}
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return log.Logger
}

// Shutdown closes the log file sink, if any.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()

	if fileCloser != nil {
		if err := fileCloser.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "logging: unable to close log file writer: %v\n", err)
		}
		fileCloser = nil
	}
}

// Component returns a child of the global logger tagged with a component
// name so per-subsystem output can be filtered.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid level %q; using %q\n", level, "info")
		return zerolog.InfoLevel
	}
}

func selectWriter(format string) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console":
		return newConsoleWriter(os.Stderr)
	case "json":
		return os.Stderr
	case "auto", "":
		if isTerminal(os.Stderr) {
			return newConsoleWriter(os.Stderr)
		}
		return os.Stderr
	default:
		fmt.Fprintf(os.Stderr, "logging: invalid format %q; using %q\n", format, "json")
		return os.Stderr
	}
}

func newConsoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}

func isTerminal(file *os.File) bool {
	if file == nil {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// rotatingFileWriter appends JSON lines to path and rotates once the file
// crosses rotateBytes, keeping a single ".old" predecessor.
type rotatingFileWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	size int64
}

func newRotatingFileWriter(path string) (*rotatingFileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	w := &rotatingFileWriter{path: path}
	if err := w.openLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.openLocked(); err != nil {
			return 0, err
		}
	}
	if w.size+int64(len(p)) > rotateBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("write log file %s: %w", w.path, err)
	}
	return n, nil
}

func (w *rotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.size = 0
	return err
}

func (w *rotatingFileWriter) openLocked() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerm)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file = file
	if info, err := file.Stat(); err == nil {
		w.size = info.Size()
	} else {
		w.size = 0
	}
	return nil
}

func (w *rotatingFileWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close log file %s before rotation: %w", w.path, err)
	}
	w.file = nil
	w.size = 0
	if err := os.Rename(w.path, w.path+".old"); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation: rename %s failed: %v\n", w.path, err)
	}
	return w.openLocked()
}
