package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

func TestEncode_FillsTypeDiscriminator(t *testing.T) {
	raw, err := Encode(AssistantMessage{Text: "hello", IsFinal: true})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "response" || got["text"] != "hello" || got["isFinal"] != true {
		t.Fatalf("encoded=%s", raw)
	}

	raw, err = Encode(StartChat{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(raw) != `{"type":"start_chat"}` {
		t.Fatalf("encoded=%s", raw)
	}
}

func TestDecodeClient_Message(t *testing.T) {
	env, err := DecodeClient([]byte(`{"type":"message","text":"What is the price of the RV400?"}`))
	if err != nil {
		t.Fatalf("DecodeClient() error = %v", err)
	}
	msg, ok := env.(UserMessage)
	if !ok {
		t.Fatalf("decoded type = %T, want UserMessage", env)
	}
	if msg.Text != "What is the price of the RV400?" {
		t.Fatalf("text=%q", msg.Text)
	}
}

func TestDecodeServer_ErrorEnvelope(t *testing.T) {
	env, err := DecodeServer([]byte(`{"type":"error","message":"Error processing request"}`))
	if err != nil {
		t.Fatalf("DecodeServer() error = %v", err)
	}
	if e, ok := env.(Error); !ok || e.Message != ProcessingErrorMessage {
		t.Fatalf("decoded=%#v", env)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"invalid json", `{"type":`, "bad_request"},
		{"missing type", `{"text":"hi"}`, "bad_request"},
		{"unknown type", `{"type":"hello"}`, "unsupported"},
		{"message without text", `{"type":"message"}`, "bad_request"},
		{"message blank text", `{"type":"message","text":"   "}`, "bad_request"},
		{"text wrong kind", `{"type":"message","text":42}`, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("err type = %T", err)
			}
			if decErr.Code != tc.code {
				t.Fatalf("code=%q, want %q", decErr.Code, tc.code)
			}
			if ce, ok := core.AsError(err); !ok || ce.Type != core.ErrProtocol {
				t.Fatalf("core error = %+v", ce)
			}
		})
	}
}

func TestDecode_RejectsWrongDirection(t *testing.T) {
	if _, err := DecodeClient([]byte(`{"type":"response","text":"x","isFinal":true}`)); err == nil {
		t.Fatalf("expected DecodeClient to reject server envelope")
	}
	if _, err := DecodeServer([]byte(`{"type":"start_chat"}`)); err == nil {
		t.Fatalf("expected DecodeServer to reject client envelope")
	}
}
