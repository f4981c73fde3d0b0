// Package protocol defines the JSON envelopes exchanged over the relay
// websocket between the conversation client and the chat server.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

const (
	TypeStartChat   = "start_chat"
	TypeMessage     = "message"
	TypeChatStarted = "chat_started"
	TypeResponse    = "response"
	TypeError       = "error"
)

// ProcessingErrorMessage is the text sent to the client when a reply could
// not be produced.
const ProcessingErrorMessage = "Error processing request"

// RateLimitedMessage is sent in place of a reply when a client sends
// messages faster than the server allows.
const RateLimitedMessage = "Too many messages, please slow down"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

// CoreError exposes the error in the shared taxonomy.
func (e *DecodeError) CoreError() *core.Error {
	return &core.Error{Type: core.ErrProtocol, Message: e.Error(), Code: e.Code}
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// Envelope is any relay message.
type Envelope interface {
	EnvelopeType() string
}

// StartChat asks the server to begin a fresh chat session.
type StartChat struct {
	Type string `json:"type"`
}

// UserMessage carries one finalized user utterance.
type UserMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatStarted acknowledges StartChat.
type ChatStarted struct {
	Type string `json:"type"`
}

// AssistantMessage carries the model's full reply to one UserMessage.
type AssistantMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// Error reports that a UserMessage could not be answered.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (StartChat) EnvelopeType() string        { return TypeStartChat }
func (UserMessage) EnvelopeType() string      { return TypeMessage }
func (ChatStarted) EnvelopeType() string      { return TypeChatStarted }
func (AssistantMessage) EnvelopeType() string { return TypeResponse }
func (Error) EnvelopeType() string            { return TypeError }

// Encode marshals env, filling in its type discriminator.
func Encode(env Envelope) ([]byte, error) {
	switch m := env.(type) {
	case StartChat:
		m.Type = TypeStartChat
		return json.Marshal(m)
	case UserMessage:
		m.Type = TypeMessage
		return json.Marshal(m)
	case ChatStarted:
		m.Type = TypeChatStarted
		return json.Marshal(m)
	case AssistantMessage:
		m.Type = TypeResponse
		return json.Marshal(m)
	case Error:
		m.Type = TypeError
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("protocol: cannot encode %T", env)
	}
}

// Decode parses a frame travelling in either direction.
func Decode(data []byte) (Envelope, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeStartChat:
		return StartChat{Type: typ}, nil
	case TypeMessage:
		var msg UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid message frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("message.text is required", "text")
		}
		msg.Type = typ
		return msg, nil
	case TypeChatStarted:
		return ChatStarted{Type: typ}, nil
	case TypeResponse:
		var msg AssistantMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid response frame", "")
		}
		msg.Type = typ
		return msg, nil
	case TypeError:
		var msg Error
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid error frame", "")
		}
		msg.Type = typ
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

// DecodeClient parses a frame sent by the conversation client.
func DecodeClient(data []byte) (Envelope, error) {
	env, err := Decode(data)
	if err != nil {
		return nil, err
	}
	switch env.(type) {
	case StartChat, UserMessage:
		return env, nil
	default:
		return nil, unsupported("server message sent by client", "type")
	}
}

// DecodeServer parses a frame sent by the chat server.
func DecodeServer(data []byte) (Envelope, error) {
	env, err := Decode(data)
	if err != nil {
		return nil, err
	}
	switch env.(type) {
	case ChatStarted, AssistantMessage, Error:
		return env, nil
	default:
		return nil, unsupported("client message sent by server", "type")
	}
}
