package stt

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRestartDelay is the pause between an engine-initiated end of a
// recognition session and the next one.
const DefaultRestartDelay = 100 * time.Millisecond

// Event is a capture update delivered to the consumer.
type Event struct {
	PartialText string
	IsFinal     bool
	Err         error
}

// Supervisor keeps a logical capture alive across the short recognition
// sessions a platform engine produces.
type Supervisor struct {
	Recognizer   Recognizer
	RestartDelay time.Duration
	Logger       *slog.Logger
}

// NewSupervisor creates a supervisor around r.
func NewSupervisor(r Recognizer, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{Recognizer: r, RestartDelay: DefaultRestartDelay, Logger: logger}
}

// Capture is one logical capture. It stays active until Stop, context
// cancellation, or an engine error.
type Capture struct {
	language string
	events   chan Event
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins capturing speech in language. The first recognition session
// is started synchronously so permission failures surface as an error here.
func (s *Supervisor) Start(ctx context.Context, language string) (*Capture, error) {
	if s == nil || s.Recognizer == nil {
		return nil, ErrNoRecognizer
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := s.RestartDelay
	if delay <= 0 {
		delay = DefaultRestartDelay
	}

	opts := Options{Language: language, Continuous: false, InterimResults: true}
	capCtx, cancel := context.WithCancel(ctx)
	results, err := s.Recognizer.Start(capCtx, opts)
	if err != nil {
		cancel()
		return nil, asCaptureError(err)
	}

	c := &Capture{
		language: language,
		events:   make(chan Event, 16),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(capCtx, s.Recognizer, opts, results, delay, logger)
	return c, nil
}

// Events returns the capture's event stream. It is closed when the capture
// ends for any reason.
func (c *Capture) Events() <-chan Event {
	return c.events
}

// Language returns the tag the capture was started with.
func (c *Capture) Language() string {
	return c.language
}

// Stop ends the capture and waits for its goroutine to exit. Safe to call
// more than once.
func (c *Capture) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(c.cancel)
	<-c.done
}

func (c *Capture) run(ctx context.Context, r Recognizer, opts Options, results <-chan Result, delay time.Duration, logger *slog.Logger) {
	defer close(c.done)
	defer close(c.events)
	defer c.cancel()

	for {
	session:
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-results:
				if !ok {
					break session
				}
				if res.Err != nil {
					ce := asCaptureError(res.Err)
					logger.Debug("capture ended with error", "lang", opts.Language, "reason", ce.Reason)
					c.emit(ctx, Event{Err: ce})
					return
				}
				if !c.emit(ctx, Event{PartialText: res.Text, IsFinal: res.IsFinal}) {
					return
				}
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		var err error
		results, err = r.Start(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ce := asCaptureError(err)
			logger.Debug("capture restart failed", "lang", opts.Language, "reason", ce.Reason)
			c.emit(ctx, Event{Err: ce})
			return
		}
		logger.Debug("capture restarted", "lang", opts.Language)
	}
}

func (c *Capture) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
