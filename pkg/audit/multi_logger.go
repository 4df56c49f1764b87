package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MultiLogger fans records out to several sinks. The first sink is primary:
// it assigns Record.ID, and its error is the one returned. Secondary sinks
// receive a copy and their failures are collected for GetErrors.
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
	closed  bool
	mu      sync.Mutex
}

// NewMultiLogger creates a multi-logger writing to every given sink
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, 64),
	}
}

// SetAsync sets whether secondary sinks are written in the background
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log writes to the primary sink inline and to the others per the async setting
func (m *MultiLogger) Log(ctx context.Context, record *Record) error {
	if len(m.loggers) == 0 {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("multi logger is closed")
	}
	m.wg.Add(len(m.loggers) - 1)
	m.mu.Unlock()

	primaryErr := m.loggers[0].Log(ctx, record)

	for _, logger := range m.loggers[1:] {
		cp := *record
		if m.async {
			go func(l Logger) {
				defer m.wg.Done()
				m.report(l.Log(context.WithoutCancel(ctx), &cp))
			}(logger)
			continue
		}
		m.report(logger.Log(ctx, &cp))
		m.wg.Done()
	}

	return primaryErr
}

func (m *MultiLogger) report(err error) {
	if err == nil {
		return
	}
	select {
	case m.errChan <- err:
	default:
		// Channel full, drop error
	}
}

// Wait waits for background writes to finish
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains errors collected from secondary sinks
func (m *MultiLogger) GetErrors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes every sink
func (m *MultiLogger) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}

	return firstErr
}
