package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
)

type fakeProvider struct {
	instruction string
	handle      *fakeHandle
	openErr     error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) NewSession(ctx context.Context, systemInstruction string) (Handle, error) {
	p.instruction = systemInstruction
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.handle, nil
}

type fakeHandle struct {
	replies []string
	err     error
	block   bool
	seen    []string
}

func (h *fakeHandle) Send(ctx context.Context, text string) (string, error) {
	h.seen = append(h.seen, text)
	if h.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if h.err != nil {
		return "", h.err
	}
	if len(h.replies) == 0 {
		return "", nil
	}
	r := h.replies[0]
	h.replies = h.replies[1:]
	return r, nil
}

func TestNew_UsesDefaultInstruction(t *testing.T) {
	p := &fakeProvider{handle: &fakeHandle{}}
	s, err := New(context.Background(), p, Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if p.instruction != DefaultSystemInstruction {
		t.Fatalf("instruction not defaulted")
	}
	if s.ID == "" {
		t.Fatalf("expected session id")
	}
}

func TestSendAndAwaitReply_AppendsHistory(t *testing.T) {
	h := &fakeHandle{replies: []string{"The RV400 has a range of 150 km.", "Yes."}}
	s, err := New(context.Background(), &fakeProvider{handle: h}, Config{SystemInstruction: "be brief"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	reply, err := s.SendAndAwaitReply(context.Background(), "What is the range?")
	if err != nil {
		t.Fatalf("send error: %v", err)
	}
	if reply != "The RV400 has a range of 150 km." {
		t.Fatalf("reply=%q", reply)
	}
	if _, err := s.SendAndAwaitReply(context.Background(), "Really?"); err != nil {
		t.Fatalf("send error: %v", err)
	}

	hist := s.History()
	if len(hist) != 4 {
		t.Fatalf("history len=%d, want 4", len(hist))
	}
	if hist[0].Role != RoleUser || hist[1].Role != RoleModel || hist[2].Text != "Really?" {
		t.Fatalf("history=%+v", hist)
	}
}

func TestSendAndAwaitReply_ProviderFailure(t *testing.T) {
	h := &fakeHandle{err: errors.New("boom")}
	s, _ := New(context.Background(), &fakeProvider{handle: h}, Config{})

	_, err := s.SendAndAwaitReply(context.Background(), "hi")
	ce, ok := core.AsError(err)
	if !ok || ce.Type != core.ErrProvider || ce.Code != core.CodeUpstream {
		t.Fatalf("err=%v", err)
	}
	if n := len(s.History()); n != 0 {
		t.Fatalf("history len=%d, want 0 after failure", n)
	}
}

func TestSendAndAwaitReply_KeepsProviderCode(t *testing.T) {
	h := &fakeHandle{err: core.NewProviderError("fake", core.CodeRateLimited, errors.New("quota"))}
	s, _ := New(context.Background(), &fakeProvider{handle: h}, Config{})

	_, err := s.SendAndAwaitReply(context.Background(), "hi")
	if ce, ok := core.AsError(err); !ok || ce.Code != core.CodeRateLimited {
		t.Fatalf("err=%v", err)
	}
}

func TestSendAndAwaitReply_Timeout(t *testing.T) {
	h := &fakeHandle{block: true}
	s, _ := New(context.Background(), &fakeProvider{handle: h}, Config{Timeout: 10 * time.Millisecond})

	_, err := s.SendAndAwaitReply(context.Background(), "hi")
	if !core.IsTimeout(err) {
		t.Fatalf("err=%v, want timeout", err)
	}
}

func TestSendAndAwaitReply_EmptyReply(t *testing.T) {
	s, _ := New(context.Background(), &fakeProvider{handle: &fakeHandle{}}, Config{})
	_, err := s.SendAndAwaitReply(context.Background(), "hi")
	if ce, ok := core.AsError(err); !ok || ce.Code != core.CodeEmptyResponse {
		t.Fatalf("err=%v", err)
	}
}

func TestNew_OpenFailure(t *testing.T) {
	_, err := New(context.Background(), &fakeProvider{openErr: errors.New("bad key")}, Config{})
	if ce, ok := core.AsError(err); !ok || ce.Type != core.ErrProvider {
		t.Fatalf("err=%v", err)
	}
	if _, err := New(context.Background(), nil, Config{}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}
