// Package session runs one relay websocket connection: it decodes client
// envelopes, owns the connection's chat session and writes replies in
// request order.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/chat"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/metrics"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/ratelimit"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/protocol"
)

var errBackpressure = errors.New("outbound queue full")

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

type Config struct {
	MaxMessageBytes   int64
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	OutboundQueueSize int
	MessagesPerSecond float64
	MessageBurst      int
	Chat              chat.Config
}

type Dependencies struct {
	Conn      Conn
	Logger    *slog.Logger
	Provider  chat.Provider
	SessionID string
	Config    Config
}

// ChannelSession is the server end of one relay connection.
type ChannelSession struct {
	conn      Conn
	logger    *slog.Logger
	provider  chat.Provider
	sessionID string
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	chat    *chat.Session
	bucket  *ratelimit.Bucket
	closing atomic.Bool
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*ChannelSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 32
	}
	if deps.Config.Chat.Logger == nil {
		deps.Config.Chat.Logger = deps.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ChannelSession{
		conn:             deps.Conn,
		logger:           deps.Logger,
		provider:         deps.Provider,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, 1),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		bucket:           ratelimit.NewBucket(deps.Config.MessagesPerSecond, deps.Config.MessageBurst),
	}, nil
}

// Run serves the connection until the client disconnects, a write fails, or
// the session is canceled or closed.
func (s *ChannelSession) Run() error {
	defer s.cancel()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 16)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
		}
		err := w.Run()
		s.cancel()
		writerErrCh <- err
		close(writerErrCh)
	}()

	waitWriter := func() {
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
	}

	for {
		select {
		case <-s.ctx.Done():
			waitWriter()
			return nil
		case err := <-writerErrCh:
			return err
		case frame, ok := <-readCh:
			if !ok {
				s.cancel()
				waitWriter()
				return nil
			}
			if frame.err != nil {
				s.cancel()
				waitWriter()
				if s.closing.Load() {
					return nil
				}
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					return nil
				}
				return frame.err
			}
			if err := s.handleFrame(frame); err != nil {
				s.cancel()
				waitWriter()
				return err
			}
		}
	}
}

func (s *ChannelSession) handleFrame(frame inboundFrame) error {
	if frame.messageType != websocket.TextMessage {
		metrics.DroppedMessages.WithLabelValues(metrics.DropBinary).Inc()
		s.logger.Debug("dropping non-text frame", "message_type", frame.messageType)
		return nil
	}

	env, err := protocol.DecodeClient(frame.data)
	if err != nil {
		metrics.DroppedMessages.WithLabelValues(metrics.DropMalformed).Inc()
		s.logger.Warn("dropping malformed frame", "error", err, "bytes", len(frame.data))
		return nil
	}
	metrics.EnvelopesTotal.WithLabelValues(metrics.In, env.EnvelopeType()).Inc()

	switch msg := env.(type) {
	case protocol.StartChat:
		return s.startChat()
	case protocol.UserMessage:
		return s.answer(msg.Text)
	}
	return nil
}

func (s *ChannelSession) startChat() error {
	cs, err := chat.New(s.ctx, s.provider, s.cfg.Chat)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil
		}
		// Any previous session is kept.
		s.logger.Error("failed to start chat", "error", err)
		return s.send(protocol.Error{Message: protocol.ProcessingErrorMessage})
	}
	if s.chat != nil {
		s.logger.Info("replacing chat session", "previous_chat_id", s.chat.ID, "chat_id", cs.ID)
	} else {
		s.logger.Info("chat started", "chat_id", cs.ID)
	}
	s.chat = cs
	metrics.ChatSessions.Inc()
	return s.send(protocol.ChatStarted{})
}

func (s *ChannelSession) answer(text string) error {
	if s.chat == nil {
		metrics.DroppedMessages.WithLabelValues(metrics.DropNoSession).Inc()
		s.logger.Warn("message before start_chat dropped")
		return nil
	}
	// Every message gets exactly one reply so the client's turn queue stays
	// aligned.
	if ok, retryAfter := s.bucket.Allow(time.Now()); !ok {
		metrics.DroppedMessages.WithLabelValues(metrics.DropRateLimit).Inc()
		s.logger.Warn("message rate limited", "chat_id", s.chat.ID, "retry_after_s", retryAfter)
		return s.send(protocol.Error{Message: protocol.RateLimitedMessage})
	}

	start := time.Now()
	reply, err := s.chat.SendAndAwaitReply(s.ctx, text)
	metrics.ProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if s.ctx.Err() != nil {
			return nil
		}
		code := core.CodeUpstream
		if ce, ok := core.AsError(err); ok && ce.Code != "" {
			code = ce.Code
		}
		metrics.ProviderErrors.WithLabelValues(code).Inc()
		s.logger.Error("chat reply failed", "chat_id", s.chat.ID, "error", err)
		return s.send(protocol.Error{Message: protocol.ProcessingErrorMessage})
	}
	return s.send(protocol.AssistantMessage{Text: reply, IsFinal: true})
}

func (s *ChannelSession) send(env protocol.Envelope) error {
	payload, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	select {
	case s.outboundNormal <- outboundFrame{textPayload: payload}:
		metrics.EnvelopesTotal.WithLabelValues(metrics.Out, env.EnvelopeType()).Inc()
		return nil
	default:
		s.logger.Warn("outbound queue full; closing connection")
		return errBackpressure
	}
}

func (s *ChannelSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// Cancel stops the session without a close handshake.
func (s *ChannelSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// Close asks the writer to send a close frame with code and reason, then
// shut the connection.
func (s *ChannelSession) Close(code int, reason string) error {
	if s == nil {
		return nil
	}
	s.closing.Store(true)
	select {
	case s.outboundPriority <- outboundFrame{close: &closeFrame{code: code, reason: reason}}:
		return nil
	default:
		return errBackpressure
	}
}
