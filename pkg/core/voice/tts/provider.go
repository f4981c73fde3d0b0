// Package tts provides spoken output on top of platform synthesis engines.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

// Synthesizer is the platform speech synthesis capability.
type Synthesizer interface {
	Synthesize(ctx context.Context, u Utterance) (*Audio, error)
}

// Player plays synthesized audio. Play blocks until playback completes or
// ctx is done.
type Player interface {
	Play(ctx context.Context, a *Audio) error
}

// Utterance is a synthesis request.
type Utterance struct {
	Text  string
	Voice string  // Voice name from the catalog
	Lang  string  // BCP-47 tag
	Rate  float64 // Speaking rate multiplier
	Pitch float64 // Pitch multiplier
}

// Audio is synthesized speech ready for playback.
type Audio struct {
	Utterance Utterance
	Format    string
	Data      []byte
	Duration  time.Duration
}

// ErrInterrupted is returned by Speak when playback was stopped by Interrupt
// or superseded by another Speak.
var ErrInterrupted = errors.New("speech interrupted")

// VoiceUnavailableError means no voice exists for the requested language.
type VoiceUnavailableError struct {
	Lang string
}

func (e *VoiceUnavailableError) Error() string {
	return fmt.Sprintf("no voice available for %q", e.Lang)
}

// CoreError exposes the error in the shared taxonomy.
func (e *VoiceUnavailableError) CoreError() *core.Error {
	return &core.Error{Type: core.ErrVoiceUnavailable, Message: e.Error(), Code: e.Lang}
}

// SynthesisError wraps an engine failure during synthesis or playback.
type SynthesisError struct {
	Lang  string
	Voice string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed (lang=%s voice=%s): %v", e.Lang, e.Voice, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// CoreError exposes the error in the shared taxonomy.
func (e *SynthesisError) CoreError() *core.Error {
	return &core.Error{Type: core.ErrSynthesis, Message: e.Error(), Cause: e.Err}
}
