package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type outboundFrame struct {
	textPayload []byte
	close       *closeFrame
}

type closeFrame struct {
	code   int
	reason string
}

// outboundWriter owns every write to the connection. Control frames on the
// priority queue preempt queued envelopes.
type outboundWriter struct {
	ws       wsWriter
	ctx      context.Context
	cfg      Config
	priority <-chan outboundFrame
	normal   <-chan outboundFrame
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		if w.ctx != nil {
			select {
			case <-w.ctx.Done():
				w.flushOnShutdown(writeTimeout)
				_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				_ = w.ws.Close()
				return nil
			default:
			}
		}

		select {
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			done, err := w.writeFrame(frame, writeTimeout)
			if err != nil || done {
				return err
			}
			continue
		default:
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		var ctxDone <-chan struct{}
		if w.ctx != nil {
			ctxDone = w.ctx.Done()
		}

		select {
		case <-ctxDone:
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			done, err := w.writeFrame(frame, writeTimeout)
			if err != nil || done {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			if _, err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
		}
	}
}

// flushOnShutdown writes replies already queued so a client whose
// connection is closing still receives answers it is waiting for.
func (w *outboundWriter) flushOnShutdown(writeTimeout time.Duration) {
	if w == nil || w.ws == nil || w.normal == nil {
		return
	}

	flushTimeout := 100 * time.Millisecond
	if writeTimeout > 0 && writeTimeout < flushTimeout {
		flushTimeout = writeTimeout
	}

	deadline := time.Now().Add(flushTimeout)
	maxFlushFrames := 8

	for i := 0; i < maxFlushFrames && time.Now().Before(deadline); i++ {
		select {
		case frame, ok := <-w.normal:
			if !ok {
				return
			}
			_, _ = w.writeFrame(frame, writeTimeout)
		default:
			return
		}
	}
}

// writeFrame reports done=true once a close frame has been written.
func (w *outboundWriter) writeFrame(frame outboundFrame, writeTimeout time.Duration) (bool, error) {
	deadline := time.Now().Add(writeTimeout)

	if frame.close != nil {
		msg := websocket.FormatCloseMessage(frame.close.code, frame.close.reason)
		err := w.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = w.ws.Close()
		return true, err
	}
	if len(frame.textPayload) > 0 {
		if err := w.ws.SetWriteDeadline(deadline); err != nil {
			return false, err
		}
		return false, w.ws.WriteMessage(websocket.TextMessage, frame.textPayload)
	}
	return false, nil
}
