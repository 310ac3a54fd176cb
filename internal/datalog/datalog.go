// Package datalog records logging sessions: one CSV file per session with a
// row per logging interval, optionally mirrored to a session index and to
// exporters.
package datalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/datadog"
	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/state"
)

const (
	ReasonStopped  = "stopped"
	ReasonIOError  = "io-error"
	ReasonShutdown = "shutdown"

	exportTimeout = 5 * time.Second
)

// SessionStore indexes sessions and their rows.
type SessionStore interface {
	Begin(file string, started time.Time) (int64, error)
	Append(id int64, row LogRow) error
	End(id int64, stopped time.Time, reason string) error
}

// Exporter receives every row written.
type Exporter interface {
	Name() string
	Export(ctx context.Context, row LogRow) error
}

type Notifier interface {
	Send(title, message string) error
}

type Option func(*Logger)

func WithStore(s SessionStore) Option {
	return func(l *Logger) { l.store = s }
}

func WithExporters(e ...Exporter) Option {
	return func(l *Logger) { l.exporters = append(l.exporters, e...) }
}

func WithNotifier(n Notifier) Option {
	return func(l *Logger) { l.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithFileOpener replaces how session files are opened.
func WithFileOpener(open func(path string) (io.WriteCloser, error)) Option {
	return func(l *Logger) { l.open = open }
}

// Logger owns the logging session state machine: Off -> On -> Stopping -> Off.
type Logger struct {
	ctx       context.Context
	tracker   *state.Tracker
	dir       string
	interval  time.Duration
	names     []string
	store     SessionStore
	exporters []Exporter
	notifier  Notifier
	now       func() time.Time
	open      func(path string) (io.WriteCloser, error)

	mu      sync.Mutex
	status  model.LogStatus
	file    string
	lastErr error
	wg      sync.WaitGroup
}

// New returns a stopped logger. Sessions end with reason shutdown when ctx
// is cancelled.
func New(ctx context.Context, cfg *config.Config, tracker *state.Tracker, opts ...Option) *Logger {
	l := &Logger{
		ctx:      ctx,
		tracker:  tracker,
		dir:      cfg.LogDir,
		interval: cfg.LogInterval,
		names:    cfg.ChannelNames(),
		now:      time.Now,
		open:     openAppend,
		status:   model.LogOff,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func openAppend(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

type session struct {
	id     int64
	path   string
	file   io.WriteCloser
	writer *csv.Writer
	rows   int
}

// Start begins a session if none is active. It reports whether a session was
// started; a failure to create the file is available from LastError.
func (l *Logger) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != model.LogOff {
		return false
	}

	started := l.now()
	path := filepath.Join(l.dir, FileName(started))

	f, err := l.open(path)
	if err != nil {
		l.lastErr = fmt.Errorf("failed to open log file %s: %w", path, err)
		log.Error().Err(err).Str("file", path).Msg("Failed to start logging session")
		return false
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header(l.names)); err == nil {
		w.Flush()
	}
	if err := w.Error(); err != nil {
		f.Close()
		l.lastErr = fmt.Errorf("failed to write header to %s: %w", path, err)
		log.Error().Err(err).Str("file", path).Msg("Failed to start logging session")
		return false
	}

	l.tracker.ResetInterval()

	s := &session{path: path, file: f, writer: w}
	if l.store != nil {
		if s.id, err = l.store.Begin(path, started); err != nil {
			log.Warn().Err(err).Msg("Failed to record session in index")
		}
	}

	l.status = model.LogOn
	l.file = path
	l.lastErr = nil
	l.wg.Add(1)
	go l.run(s)

	log.Info().Str("file", path).Dur("interval", l.interval).Msg("Logging started")
	return true
}

// Stop asks the active session to end. The session loop notices at its next
// interval.
func (l *Logger) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != model.LogOn {
		return false
	}
	l.status = model.LogStopping
	log.Info().Str("file", l.file).Msg("Logging stop requested")
	return true
}

func (l *Logger) Status() model.LogStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// CurrentFile is the active session's file, or empty when off.
func (l *Logger) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file
}

func (l *Logger) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Wait blocks until any running session loop has exited.
func (l *Logger) Wait() {
	l.wg.Wait()
}

func (l *Logger) run(s *session) {
	defer l.wg.Done()

	reason := l.loop(s)

	if err := s.file.Close(); err != nil && reason != ReasonIOError {
		log.Error().Err(err).Str("file", s.path).Msg("Failed to close log file")
	}

	if l.store != nil && s.id != 0 {
		if err := l.store.End(s.id, l.now(), reason); err != nil {
			log.Warn().Err(err).Msg("Failed to close session in index")
		}
	}

	l.mu.Lock()
	l.status = model.LogOff
	l.file = ""
	l.mu.Unlock()

	log.Info().Str("file", s.path).Int("rows", s.rows).Str("reason", reason).Msg("Logging stopped")
}

// loop writes a row straight away and then once per interval until the
// session is stopped.
func (l *Logger) loop(s *session) string {
	for {
		row := NewRow(l.now(), l.tracker.Flush())

		if err := s.writer.Write(row.Record()); err == nil {
			s.writer.Flush()
		}
		if err := s.writer.Error(); err != nil {
			l.fail(s.path, err)
			return ReasonIOError
		}
		s.rows++

		if row.Duty.Measured {
			datadog.Gauge("log.duty_cycle", float64(row.Duty.Percent))
		}
		l.publish(s, row)

		select {
		case <-l.ctx.Done():
			return ReasonShutdown
		case <-time.After(l.interval):
		}

		if l.Status() != model.LogOn {
			return ReasonStopped
		}
	}
}

func (l *Logger) publish(s *session, row LogRow) {
	if l.store != nil && s.id != 0 {
		if err := l.store.Append(s.id, row); err != nil {
			log.Warn().Err(err).Msg("Failed to index log row")
		}
	}
	for _, e := range l.exporters {
		ctx, cancel := context.WithTimeout(l.ctx, exportTimeout)
		if err := e.Export(ctx, row); err != nil {
			log.Warn().Err(err).Str("exporter", e.Name()).Msg("Failed to export log row")
		}
		cancel()
	}
}

func (l *Logger) fail(path string, err error) {
	err = fmt.Errorf("failed to write log file %s: %w", path, err)
	log.Error().Err(err).Msg("Logging session ended by write failure")

	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()

	if l.notifier != nil {
		if nerr := l.notifier.Send("Propagator logging stopped", err.Error()); nerr != nil {
			log.Warn().Err(nerr).Msg("Failed to send logging failure notification")
		}
	}
}
