// Package stt provides speech capture with automatic session restart.
package stt

import (
	"context"
	"errors"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

// Recognizer is the platform speech recognition capability.
type Recognizer interface {
	// Start begins one recognition session. The returned channel is closed
	// when the engine ends the session, or when ctx is done.
	Start(ctx context.Context, opts Options) (<-chan Result, error)
}

// Options configures a recognition session.
type Options struct {
	Language       string // BCP-47 tag, e.g. "hi-IN"
	Continuous     bool   // Keep listening after the first final result
	InterimResults bool   // Deliver partial transcripts
}

// Result is a recognition update from the engine.
type Result struct {
	Text    string
	IsFinal bool
	Err     error
}

// Capture error reasons, as reported by platform engines.
const (
	ReasonNotAllowed   = "not-allowed"
	ReasonNoSpeech     = "no-speech"
	ReasonAborted      = "aborted"
	ReasonNetwork      = "network"
	ReasonAudioCapture = "audio-capture"
)

// CaptureError is delivered as the final event of a failed capture.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return "capture error: " + e.Reason + ": " + e.Err.Error()
	}
	return "capture error: " + e.Reason
}

func (e *CaptureError) Unwrap() error { return e.Err }

// CoreError exposes the error in the shared taxonomy.
func (e *CaptureError) CoreError() *core.Error {
	t := core.ErrCapture
	if e.Reason == ReasonNotAllowed {
		t = core.ErrPermission
	}
	return &core.Error{Type: t, Message: e.Reason, Code: e.Reason, Cause: e.Err}
}

// ErrNoRecognizer is returned when speech recognition is unavailable.
var ErrNoRecognizer = errors.New("speech recognition unavailable")

func asCaptureError(err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	return &CaptureError{Reason: ReasonAborted, Err: err}
}
