package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice"
)

const (
	DefaultRate  = 0.9
	DefaultPitch = 1.0
)

// Output speaks text through a synthesizer and player, negotiating the voice
// from a catalog on every call. At most one utterance plays at a time.
type Output struct {
	synth   Synthesizer
	player  Player
	catalog *voice.Catalog
	logger  *slog.Logger

	Rate  float64
	Pitch float64

	mu      sync.Mutex
	gen     uint64
	current context.CancelCauseFunc
}

// NewOutput creates an output adapter.
func NewOutput(synth Synthesizer, player Player, catalog *voice.Catalog, logger *slog.Logger) *Output {
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		synth:   synth,
		player:  player,
		catalog: catalog,
		logger:  logger,
		Rate:    DefaultRate,
		Pitch:   DefaultPitch,
	}
}

// Speak synthesizes and plays text in lang, blocking until playback
// completes. A Speak already in progress is interrupted first.
func (o *Output) Speak(ctx context.Context, text, lang string) error {
	v, err := voice.SelectVoice(lang, o.catalog.Snapshot())
	if err != nil {
		return &VoiceUnavailableError{Lang: lang}
	}

	playCtx, cancel := context.WithCancelCause(ctx)
	o.mu.Lock()
	if o.current != nil {
		o.current(ErrInterrupted)
	}
	o.gen++
	gen := o.gen
	o.current = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		if o.gen == gen {
			o.current = nil
		}
		o.mu.Unlock()
		cancel(nil)
	}()

	u := Utterance{Text: text, Voice: v.Name, Lang: lang, Rate: o.Rate, Pitch: o.Pitch}
	o.logger.Debug("speaking", "lang", lang, "voice", v.Name, "chars", len(text))

	audio, err := o.synth.Synthesize(playCtx, u)
	if err != nil {
		return o.classify(playCtx, u, err)
	}
	if err := o.player.Play(playCtx, audio); err != nil {
		return o.classify(playCtx, u, err)
	}
	if errors.Is(context.Cause(playCtx), ErrInterrupted) {
		return ErrInterrupted
	}
	return nil
}

// Interrupt stops the current utterance, if any. Idempotent.
func (o *Output) Interrupt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		o.current(ErrInterrupted)
		o.current = nil
	}
}

func (o *Output) classify(ctx context.Context, u Utterance, err error) error {
	if errors.Is(context.Cause(ctx), ErrInterrupted) {
		return ErrInterrupted
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &SynthesisError{Lang: u.Lang, Voice: u.Voice, Err: err}
}
