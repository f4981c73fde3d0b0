package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/client/relay"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/stt"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/tts"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/relay/protocol"
)

// DefaultResponseTimeout bounds the wait for a reply when Config leaves it unset.
const DefaultResponseTimeout = 45 * time.Second

// Config wires a Controller to its capabilities and observers.
type Config struct {
	Capture CaptureSource
	Output  Speaker
	Relay   Relay
	Catalog *voice.Catalog

	// Language is the initial preference; BaselineLanguage is the fallback
	// for synthesis and for a catalog that supports nothing. Both default to
	// voice.BaselineLanguage.
	Language         string
	BaselineLanguage string

	// ResponseTimeout bounds the wait for the assistant's reply to a turn.
	ResponseTimeout time.Duration

	Logger *slog.Logger

	OnTransition func(from, to State)
	OnStatus     func(status string)
	OnMessage    func(m Message)
}

// Controller owns the conversation state. All mutation happens on the Run
// goroutine; public methods post commands to it.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	cmds       chan func()
	speechDone chan speechResult
	done       chan struct{}
	running    atomic.Bool

	ctx context.Context

	state         State
	status        string
	lang          string
	supported     []voice.Language
	partial       string
	transcript    []Message
	lastAssistant string
	connected     bool

	capture       Capture
	captureEvents <-chan stt.Event

	turnSeq    uint64
	activeTurn uint64
	pending    []uint64
	timer      *time.Timer

	speechSeq uint64

	snapMu sync.Mutex
	snap   Snapshot
}

type speechResult struct {
	id       uint64
	text     string
	lang     string
	fallback bool
	err      error
}

// New validates cfg and returns an idle controller. It returns ErrUnsupported
// when capture or output is missing.
func New(cfg Config) (*Controller, error) {
	if cfg.Capture == nil || cfg.Output == nil {
		return nil, ErrUnsupported
	}
	if cfg.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = voice.NewCatalog()
	}
	if cfg.BaselineLanguage == "" {
		cfg.BaselineLanguage = voice.BaselineLanguage
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = cfg.BaselineLanguage
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Controller{
		cfg:        cfg,
		logger:     cfg.Logger,
		cmds:       make(chan func(), 64),
		speechDone: make(chan speechResult, 4),
		done:       make(chan struct{}),
		ctx:        context.Background(),
		status:     StatusStart,
		lang:       strings.TrimSpace(cfg.Language),
	}
	c.publish()
	return c, nil
}

// Run dispatches events until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("controller already running")
	}
	defer close(c.done)
	c.ctx = ctx

	catalogUpdates, unsubscribe := c.cfg.Catalog.Subscribe()
	defer unsubscribe()
	c.refreshLanguages()
	c.publish()

	relayEvents := c.cfg.Relay.Events()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.publish()
			return ctx.Err()
		case fn := <-c.cmds:
			fn()
		case ev, ok := <-relayEvents:
			if !ok {
				relayEvents = nil
				continue
			}
			c.onRelayEvent(ev)
		case ev, ok := <-c.captureEvents:
			c.onCaptureEvent(ev, ok)
		case r := <-c.speechDone:
			c.onSpeechDone(r)
		case <-catalogUpdates:
			c.refreshLanguages()
		}
		c.publish()
	}
}

// ToggleCapture starts capture when inactive and stops it when active.
func (c *Controller) ToggleCapture() { c.post(c.toggleCapture) }

// StopCapture ends capture and returns to Idle. Output already playing is
// left to finish.
func (c *Controller) StopCapture() { c.post(c.stopCapture) }

// Interrupt stops assistant output. Safe to call in any state.
func (c *Controller) Interrupt() { c.post(c.interrupt) }

// Replay speaks the most recent assistant message again.
func (c *Controller) Replay() { c.post(c.replay) }

// SetLanguage changes the language used for capture and output.
func (c *Controller) SetLanguage(code string) {
	c.post(func() { c.setLanguage(code) })
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	s := c.snap
	s.Supported = append([]voice.Language(nil), s.Supported...)
	s.Transcript = append([]Message(nil), s.Transcript...)
	return s
}

func (c *Controller) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) toggleCapture() {
	if c.capture != nil {
		c.stopCapture()
		return
	}
	c.startCapture()
}

func (c *Controller) startCapture() {
	if c.capture != nil {
		return
	}
	capture, err := c.cfg.Capture.Start(c.ctx, c.lang)
	if err != nil {
		c.logger.Warn("capture failed to start", "lang", c.lang, "error", err)
		c.setStatus("Error: " + captureReason(err))
		if c.state == StateListening {
			c.setState(c.restingState())
		}
		return
	}
	c.capture = capture
	c.captureEvents = capture.Events()
	c.partial = ""
	if c.state == StateIdle {
		c.setState(StateListening)
		c.setStatus(StatusListening)
	}
}

func (c *Controller) endCapture() {
	if c.capture != nil {
		c.capture.Stop()
	}
	c.capture = nil
	c.captureEvents = nil
	c.partial = ""
}

func (c *Controller) stopCapture() {
	c.endCapture()
	c.setState(StateIdle)
	c.setStatus(StatusNextQuestion)
}

func (c *Controller) onCaptureEvent(ev stt.Event, ok bool) {
	if !ok {
		c.capture = nil
		c.captureEvents = nil
		c.partial = ""
		if c.state == StateListening {
			c.setState(StateIdle)
		}
		return
	}
	if ev.Err != nil {
		c.logger.Warn("capture error", "lang", c.lang, "error", ev.Err)
		c.endCapture()
		c.setStatus("Error: " + captureReason(ev.Err))
		if c.state == StateListening {
			c.setState(StateIdle)
		}
		return
	}
	if !ev.IsFinal {
		c.partial = ev.PartialText
		return
	}
	c.partial = ""
	text := strings.TrimSpace(ev.PartialText)
	if text == "" {
		return
	}
	c.onFinalTranscript(text)
}

func (c *Controller) onFinalTranscript(text string) {
	if c.state == StateSpeaking {
		c.cfg.Output.Interrupt()
		c.speechSeq++
		c.setState(StateListening)
	}
	c.appendMessage(Message{Text: text, Sender: SenderUser})

	if err := c.cfg.Relay.Send(protocol.UserMessage{Text: text}); err != nil {
		c.logger.Warn("failed to send message", "error", err)
		c.abandonTurn()
		if errors.Is(err, relay.ErrNotConnected) {
			c.setStatus(StatusConnectionLost)
		} else {
			c.setStatus("Error: " + err.Error())
		}
		c.setState(c.restingState())
		return
	}

	c.turnSeq++
	turn := c.turnSeq
	c.pending = append(c.pending, turn)
	c.activeTurn = turn
	c.armTimer(turn)
	c.setState(StateAwaitingResponse)
	c.setStatus(StatusProcessing)
	c.logger.Debug("turn sent", "turn", turn, "chars", len(text))
}

func (c *Controller) onRelayEvent(ev relay.Event) {
	switch ev.Kind {
	case relay.EventOpen:
		c.connected = true
		if c.state == StateIdle {
			c.setStatus(StatusReady)
		}
	case relay.EventClosed:
		c.connected = false
		c.pending = nil
		c.abandonTurn()
		c.endCapture()
		c.cfg.Output.Interrupt()
		c.speechSeq++
		c.setState(StateIdle)
		if errors.Is(ev.Err, relay.ErrDial) {
			c.setStatus(StatusConnectionErr)
		} else {
			c.setStatus(StatusConnectionLost)
		}
	case relay.EventEnvelope:
		c.onEnvelope(ev.Envelope)
	}
}

func (c *Controller) onEnvelope(env protocol.Envelope) {
	switch msg := env.(type) {
	case protocol.ChatStarted:
		c.logger.Debug("chat started")
	case protocol.AssistantMessage:
		turn, current := c.claimTurn()
		if !current {
			c.logger.Info("discarding stale reply", "turn", turn, "active_turn", c.activeTurn)
			return
		}
		c.abandonTurn()
		c.appendMessage(Message{Text: msg.Text, Sender: SenderAssistant})
		c.lastAssistant = msg.Text
		c.speak(msg.Text, c.lang, true)
	case protocol.Error:
		if len(c.pending) == 0 {
			// Not tied to a message, e.g. the chat could not be started.
			c.logger.Warn("error from relay", "message", msg.Message)
			c.setStatus("Error: " + msg.Message)
			return
		}
		turn, current := c.claimTurn()
		if !current {
			c.logger.Info("discarding stale error", "turn", turn, "message", msg.Message)
			return
		}
		c.abandonTurn()
		c.setStatus("Error: " + msg.Message)
		c.setState(c.restingState())
	}
}

// claimTurn pops the oldest outstanding turn. The server answers in request
// order, so the popped turn is the one this reply belongs to.
func (c *Controller) claimTurn() (uint64, bool) {
	if len(c.pending) == 0 {
		return 0, false
	}
	turn := c.pending[0]
	c.pending = c.pending[1:]
	return turn, turn == c.activeTurn && turn != 0
}

func (c *Controller) armTimer(turn uint64) {
	c.stopTimer()
	c.timer = time.AfterFunc(c.cfg.ResponseTimeout, func() {
		c.post(func() { c.onResponseTimeout(turn) })
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) abandonTurn() {
	c.activeTurn = 0
	c.stopTimer()
}

func (c *Controller) onResponseTimeout(turn uint64) {
	if turn != c.activeTurn {
		return
	}
	c.logger.Warn("no reply before timeout", "turn", turn, "timeout", c.cfg.ResponseTimeout)
	c.abandonTurn()
	c.setStatus(StatusNoResponse)
	c.setState(c.restingState())
}

func (c *Controller) speak(text, lang string, fallback bool) {
	c.setState(StateSpeaking)
	c.setStatus(StatusResponding)

	c.speechSeq++
	id := c.speechSeq
	ctx := c.ctx
	out := c.cfg.Output
	go func() {
		err := out.Speak(ctx, text, lang)
		select {
		case c.speechDone <- speechResult{id: id, text: text, lang: lang, fallback: fallback, err: err}:
		case <-c.done:
		}
	}()
}

func (c *Controller) onSpeechDone(r speechResult) {
	if r.id != c.speechSeq {
		return
	}
	switch {
	case r.err == nil, errors.Is(r.err, tts.ErrInterrupted):
		c.setStatus(c.restingStatus())
	case errors.Is(r.err, context.Canceled):
		return
	case r.fallback && voice.PrimarySubtag(r.lang) != voice.PrimarySubtag(c.cfg.BaselineLanguage):
		c.logger.Warn("speech failed; retrying in baseline language", "lang", r.lang, "baseline", c.cfg.BaselineLanguage, "error", r.err)
		c.speak(r.text, c.cfg.BaselineLanguage, false)
		return
	default:
		c.logger.Error("speech failed", "lang", r.lang, "error", r.err)
		c.setStatus(StatusVoiceError)
	}
	c.setState(c.restingState())
}

func (c *Controller) interrupt() {
	c.cfg.Output.Interrupt()
	if c.state != StateSpeaking {
		return
	}
	c.speechSeq++
	c.setState(c.restingState())
	c.setStatus(c.restingStatus())
}

func (c *Controller) replay() {
	if c.lastAssistant == "" {
		return
	}
	c.cfg.Output.Interrupt()
	c.speak(c.lastAssistant, c.lang, true)
}

func (c *Controller) setLanguage(code string) {
	code = strings.TrimSpace(code)
	if code == "" || code == c.lang {
		return
	}
	c.lang = code
	if !voice.HasVoiceFor(code, c.cfg.Catalog.Snapshot()) {
		c.logger.Warn("no installed voice for language; replies will use the closest voice", "lang", code)
	}
	if c.capture != nil {
		c.endCapture()
		c.startCapture()
	}
}

func (c *Controller) refreshLanguages() {
	c.supported = voice.SupportedLanguages(c.cfg.Catalog.Snapshot())
	next := voice.ResolveLanguage(c.lang, c.supported, c.cfg.BaselineLanguage)
	if next != c.lang {
		c.logger.Info("selected language no longer supported", "lang", c.lang, "fallback", next)
		c.setLanguage(next)
	}
}

// restingState is where a turn ends: waiting on a still-active turn,
// listening while capture is live, otherwise idle.
func (c *Controller) restingState() State {
	switch {
	case c.activeTurn != 0:
		return StateAwaitingResponse
	case c.capture != nil:
		return StateListening
	default:
		return StateIdle
	}
}

// restingStatus is the status shown once output ends.
func (c *Controller) restingStatus() string {
	if c.activeTurn != 0 {
		return StatusProcessing
	}
	return StatusNextQuestion
}

func (c *Controller) shutdown() {
	c.abandonTurn()
	c.endCapture()
	c.cfg.Output.Interrupt()
	c.speechSeq++
	c.setState(StateIdle)
}

func (c *Controller) setState(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Debug("state transition", "from", from.String(), "to", to.String())
	if c.cfg.OnTransition != nil {
		c.cfg.OnTransition(from, to)
	}
}

func (c *Controller) setStatus(status string) {
	if c.status == status {
		return
	}
	c.status = status
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(status)
	}
}

func (c *Controller) appendMessage(m Message) {
	c.transcript = append(c.transcript, m)
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(m)
	}
}

func (c *Controller) publish() {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	c.snap = Snapshot{
		State:         c.state,
		Status:        c.status,
		Language:      c.lang,
		Supported:     append([]voice.Language(nil), c.supported...),
		Partial:       c.partial,
		Transcript:    append([]Message(nil), c.transcript...),
		CaptureActive: c.capture != nil,
		Connected:     c.connected,
	}
}

func captureReason(err error) string {
	var ce *stt.CaptureError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return err.Error()
}
