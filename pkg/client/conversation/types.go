// Package conversation drives the voice chat turn loop: listening, waiting
// on the assistant, speaking, and interruption by new speech.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/client/relay"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/stt"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/protocol"
)

// ErrUnsupported is returned by New when speech capture or output is missing.
var ErrUnsupported = errors.New("speech capture or synthesis not supported")

type State int

const (
	StateIdle State = iota
	StateListening
	StateAwaitingResponse
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Text   string
	Sender Sender
}

// Status lines shown to the user.
const (
	StatusStart          = "Click microphone to start"
	StatusReady          = "Ready to chat"
	StatusListening      = "Listening..."
	StatusProcessing     = "Processing your request..."
	StatusResponding     = "Assistant is responding..."
	StatusNextQuestion   = "Ready for your next question"
	StatusVoiceError     = "Error generating voice response"
	StatusConnectionLost = "Connection lost. Reconnecting..."
	StatusConnectionErr  = "Connection error. Reconnecting..."
	StatusNoResponse     = "Error: no response from assistant"
)

// CaptureSource starts speech capture sessions.
type CaptureSource interface {
	Start(ctx context.Context, language string) (Capture, error)
}

// Capture is a running capture session.
type Capture interface {
	Events() <-chan stt.Event
	Stop()
}

// Speaker plays assistant replies.
type Speaker interface {
	Speak(ctx context.Context, text, lang string) error
	Interrupt()
}

// Relay carries envelopes to and from the relay server.
type Relay interface {
	Send(env protocol.Envelope) error
	Events() <-chan relay.Event
}

// Snapshot is a point-in-time copy of the controller's state.
type Snapshot struct {
	State         State
	Status        string
	Language      string
	Supported     []voice.Language
	Partial       string
	Transcript    []Message
	CaptureActive bool
	Connected     bool
}

// FromSupervisor adapts an stt.Supervisor to CaptureSource.
func FromSupervisor(s *stt.Supervisor) CaptureSource {
	return supervisorSource{s: s}
}

type supervisorSource struct {
	s *stt.Supervisor
}

func (a supervisorSource) Start(ctx context.Context, language string) (Capture, error) {
	c, err := a.s.Start(ctx, language)
	if err != nil {
		return nil, err
	}
	return c, nil
}
