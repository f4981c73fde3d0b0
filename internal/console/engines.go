package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/stt"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/tts"
)

// LineRecognizer is a speech recognizer fed by typed lines. Each recognition
// session ends after one utterance, the way a non-continuous platform engine
// does, and the capture supervisor starts the next.
type LineRecognizer struct {
	mu     sync.Mutex
	active *lineSession
}

type lineSession struct {
	ctx     context.Context
	opts    stt.Options
	out     chan stt.Result
	done    chan struct{}
	endOnce sync.Once
}

func (s *lineSession) end() {
	s.endOnce.Do(func() {
		close(s.done)
		close(s.out)
	})
}

func (r *LineRecognizer) Start(ctx context.Context, opts stt.Options) (<-chan stt.Result, error) {
	s := &lineSession{ctx: ctx, opts: opts, out: make(chan stt.Result, 8), done: make(chan struct{})}
	r.mu.Lock()
	r.active = s
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
			return
		}
		// A session taken by Offer is ended there.
		r.mu.Lock()
		owned := r.active == s
		if owned {
			r.active = nil
		}
		r.mu.Unlock()
		if owned {
			s.end()
		}
	}()
	return s.out, nil
}

// Listening reports whether a recognition session is waiting for input.
func (r *LineRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Offer delivers line as one utterance: growing interim results word by
// word, then the final transcript. It reports false when nothing is
// listening.
func (r *LineRecognizer) Offer(line string) bool {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()
	if s == nil {
		return false
	}
	defer s.end()

	words := strings.Fields(line)
	if s.opts.InterimResults {
		for i := 1; i < len(words); i++ {
			if !s.send(stt.Result{Text: strings.Join(words[:i], " ")}) {
				return true
			}
		}
	}
	s.send(stt.Result{Text: strings.Join(words, " "), IsFinal: true})
	return true
}

func (s *lineSession) send(res stt.Result) bool {
	select {
	case s.out <- res:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// TextSynthesizer renders utterances as paced text instead of audio.
type TextSynthesizer struct {
	// WordDuration is the speaking time of one word at rate 1.0.
	WordDuration time.Duration
}

func (s TextSynthesizer) Synthesize(ctx context.Context, u tts.Utterance) (*tts.Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return nil, fmt.Errorf("nothing to synthesize")
	}
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	perWord := time.Duration(float64(s.WordDuration) / rate)
	return &tts.Audio{
		Utterance: u,
		Format:    "text/plain",
		Data:      []byte(text),
		Duration:  perWord * time.Duration(len(strings.Fields(text))),
	}, nil
}

// TerminalPlayer "plays" text audio by printing it word by word over the
// audio's duration.
type TerminalPlayer struct {
	Out io.Writer
}

func (p TerminalPlayer) Play(ctx context.Context, audio *tts.Audio) error {
	if audio == nil {
		return nil
	}
	words := strings.Fields(string(audio.Data))
	if len(words) == 0 {
		return nil
	}
	perWord := audio.Duration / time.Duration(len(words))

	fmt.Fprintf(p.Out, "[%s %s] ", audio.Utterance.Voice, audio.Utterance.Lang)
	for i, w := range words {
		if i > 0 {
			fmt.Fprint(p.Out, " ")
		}
		fmt.Fprint(p.Out, w)
		if perWord <= 0 {
			continue
		}
		timer := time.NewTimer(perWord)
		select {
		case <-ctx.Done():
			timer.Stop()
			fmt.Fprintln(p.Out, " ...")
			return ctx.Err()
		case <-timer.C:
		}
	}
	fmt.Fprintln(p.Out)
	return nil
}

// syncWriter serializes writes from the REPL, the player and the hooks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
