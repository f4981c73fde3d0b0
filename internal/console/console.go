// Package console is a terminal front end for the voice assistant. Typed
// lines stand in for recognized speech and replies are "spoken" as paced
// text, so the full conversation flow runs without audio hardware.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/client/conversation"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/client/relay"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/stt"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/voice/tts"
)

const offerWait = time.Second

const helpText = `Commands:
  /mic          start or stop listening
  /stop         stop listening
  /interrupt    stop the assistant speaking
  /replay       repeat the last answer
  /lang <code>  switch language (e.g. /lang hi-IN)
  /langs        list available languages
  /status       show the conversation state
  /history      show the transcript
  /quit         exit
While listening, type what you would say and press enter.`

// Run wires the conversation controller to a relay connection and the
// terminal, and serves the REPL until in is exhausted, /quit, or ctx is done.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	out = &syncWriter{w: out}

	catalog := voice.NewCatalog(cfg.Voices...)
	recognizer := &LineRecognizer{}
	output := tts.NewOutput(TextSynthesizer{WordDuration: cfg.WordDuration}, TerminalPlayer{Out: out}, catalog, logger)

	channel, err := relay.New(relay.Config{
		URL:            cfg.ServerURL,
		Origin:         cfg.Origin,
		ReconnectDelay: cfg.ReconnectDelay,
		Dialer:         cfg.Dialer,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctrl, err := conversation.New(conversation.Config{
		Capture:          conversation.FromSupervisor(stt.NewSupervisor(recognizer, logger)),
		Output:           output,
		Relay:            channel,
		Catalog:          catalog,
		Language:         cfg.Language,
		BaselineLanguage: cfg.BaselineLanguage,
		ResponseTimeout:  cfg.ResponseTimeout,
		Logger:           logger,
		OnStatus: func(status string) {
			fmt.Fprintf(out, "[%s]\n", status)
		},
		OnMessage: func(m conversation.Message) {
			fmt.Fprintf(out, "%s: %s\n", m.Sender, m.Text)
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return channel.Run(gctx) })
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return repl(gctx, ctrl, recognizer, in, out)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func repl(ctx context.Context, ctrl *conversation.Controller, recognizer *LineRecognizer, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Revolt Motors voice assistant. Type /help for commands, /mic to start talking.")

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		case raw := <-lines:
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			switch line {
			case "/exit", "/quit":
				fmt.Fprintln(out, "bye")
				return nil
			}
			if handleSlashCommand(line, ctrl, out) {
				continue
			}
			if !offer(ctx, ctrl, recognizer, line) {
				fmt.Fprintln(out, "microphone is off; type /mic to start listening")
			}
		}
	}
}

// offer hands line to the recognizer. While capture is active it waits for
// the supervisor to open the next recognition session.
func offer(ctx context.Context, ctrl *conversation.Controller, recognizer *LineRecognizer, line string) bool {
	deadline := time.Now().Add(offerWait)
	for {
		if recognizer.Offer(line) {
			return true
		}
		if !ctrl.Snapshot().CaptureActive || time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func handleSlashCommand(line string, ctrl *conversation.Controller, out io.Writer) (handled bool) {
	if !strings.HasPrefix(line, "/") {
		return false
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Fprintln(out, helpText)
	case "/mic":
		ctrl.ToggleCapture()
	case "/stop":
		ctrl.StopCapture()
	case "/interrupt":
		ctrl.Interrupt()
	case "/replay":
		ctrl.Replay()
	case "/lang":
		if arg == "" {
			fmt.Fprintf(out, "current language: %s\n", ctrl.Snapshot().Language)
			return true
		}
		ctrl.SetLanguage(arg)
	case "/langs":
		snap := ctrl.Snapshot()
		for _, l := range snap.Supported {
			marker := " "
			if l.Code == snap.Language {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s\n", marker, l.Code, l.DisplayName)
		}
	case "/status":
		snap := ctrl.Snapshot()
		fmt.Fprintf(out, "state=%s language=%s connected=%t listening=%t status=%q\n",
			snap.State, snap.Language, snap.Connected, snap.CaptureActive, snap.Status)
	case "/history":
		for _, m := range ctrl.Snapshot().Transcript {
			fmt.Fprintf(out, "%s: %s\n", m.Sender, m.Text)
		}
	default:
		fmt.Fprintf(out, "unknown command %s (try /help)\n", cmd)
	}
	return true
}
