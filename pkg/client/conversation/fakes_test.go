package conversation

import (
	"context"
	"sync"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/client/relay"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/stt"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/tts"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/protocol"
)

type fakeCapture struct {
	lang    string
	events  chan stt.Event
	mu      sync.Mutex
	stopped bool
}

func (c *fakeCapture) Events() <-chan stt.Event { return c.events }

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func (c *fakeCapture) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

type fakeCaptureSource struct {
	mu       sync.Mutex
	captures []*fakeCapture
	startErr error
}

func (s *fakeCaptureSource) Start(ctx context.Context, language string) (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	c := &fakeCapture{lang: language, events: make(chan stt.Event, 8)}
	s.captures = append(s.captures, c)
	return c, nil
}

func (s *fakeCaptureSource) latest() *fakeCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.captures) == 0 {
		return nil
	}
	return s.captures[len(s.captures)-1]
}

func (s *fakeCaptureSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

type speakCall struct {
	text string
	lang string
	done chan error
}

func (c *speakCall) finish(err error) {
	select {
	case c.done <- err:
	default:
	}
}

type fakeSpeaker struct {
	mu         sync.Mutex
	calls      []*speakCall
	current    *speakCall
	interrupts int
	failLangs  map[string]error
}

func (s *fakeSpeaker) Speak(ctx context.Context, text, lang string) error {
	s.mu.Lock()
	call := &speakCall{text: text, lang: lang, done: make(chan error, 1)}
	s.calls = append(s.calls, call)
	if err, ok := s.failLangs[lang]; ok {
		s.mu.Unlock()
		return err
	}
	if s.current != nil {
		s.current.finish(tts.ErrInterrupted)
	}
	s.current = call
	s.mu.Unlock()

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSpeaker) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupts++
	if s.current != nil {
		s.current.finish(tts.ErrInterrupted)
		s.current = nil
	}
}

// complete finishes the utterance currently playing, reporting whether one was.
func (s *fakeSpeaker) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.current.finish(nil)
	s.current = nil
	return true
}

func (s *fakeSpeaker) spoken() []speakCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speakCall, len(s.calls))
	for i, c := range s.calls {
		out[i] = speakCall{text: c.text, lang: c.lang}
	}
	return out
}

func (s *fakeSpeaker) interruptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupts
}

type fakeRelay struct {
	events  chan relay.Event
	mu      sync.Mutex
	sent    []protocol.Envelope
	sendErr error
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{events: make(chan relay.Event, 16)}
}

func (r *fakeRelay) Send(env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, env)
	return nil
}

func (r *fakeRelay) Events() <-chan relay.Event { return r.events }

func (r *fakeRelay) setSendErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr = err
}

func (r *fakeRelay) sentMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, env := range r.sent {
		if m, ok := env.(protocol.UserMessage); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *fakeRelay) reply(text string) {
	r.events <- relay.Event{Kind: relay.EventEnvelope, Envelope: protocol.AssistantMessage{Text: text, IsFinal: true}}
}
