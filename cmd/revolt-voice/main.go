// Command revolt-voice runs the Revolt Motors voice assistant: "serve" starts
// the relay server in front of Gemini and "console" is a terminal client.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adarshbhagatjii/revoultmotors-chatbot/internal/console"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/chat"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/core/providers/gemini"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/config"
	"github.com/adarshbhagatjii/revoultmotors-chatbot/pkg/gateway/server"
)

var version = "dev"

type serveDeps struct {
	loadConfig   func() (config.Config, error)
	newProvider  func(context.Context, config.Config) (chat.Provider, error)
	newServer    func(config.Config, server.Dependencies) *server.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps(v *viper.Viper, configFile func() string) serveDeps {
	return serveDeps{
		loadConfig: func() (config.Config, error) {
			return config.Load(v, configFile())
		},
		newProvider: newGeminiProvider,
		newServer:   server.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newGeminiProvider(ctx context.Context, cfg config.Config) (chat.Provider, error) {
	opts := []gemini.Option{
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithMaxOutputTokens(cfg.MaxOutputTokens),
	}
	if cfg.GeminiBaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	return gemini.New(ctx, cfg.GeminiAPIKey, opts...)
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runServe(ctx context.Context, stderr io.Writer, deps serveDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newProvider == nil || deps.newServer == nil {
		return errors.New("missing server dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)

	provider, err := deps.newProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	srv := deps.newServer(cfg, server.Dependencies{Provider: provider, Logger: logger})
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting relay server", "addr", cfg.Addr, "ws_path", cfg.WSPath, "provider", provider.Name(), "model", cfg.GeminiModel)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	srv.SetDraining(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	// Hijacked websocket connections outlive Shutdown.
	srv.CloseSessions()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.WaitSessions(waitCtx) {
		srv.CancelSessions()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("relay server stopped")
	return nil
}

func newRootCmd(in io.Reader, out, stderr io.Writer, newServeDeps func(*viper.Viper, func() string) serveDeps) *cobra.Command {
	v := viper.New()
	var configFile string

	root := &cobra.Command{
		Use:           "revolt-voice",
		Short:         "Revolt Motors voice assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(stderr)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), stderr, newServeDeps(v, func() string { return configFile }))
		},
	}
	serveCmd.Flags().Int("port", 3000, "listen port (or PORT)")
	serveCmd.Flags().String("model", "gemini-2.0-flash", "Gemini model")
	serveCmd.Flags().String("log-level", "info", "debug|info|warn|error")
	serveCmd.Flags().String("log-format", "text", "text|json")
	bindFlags(v, serveCmd, map[string]string{
		"server.port":    "port",
		"gemini.model":   "model",
		"logging.level":  "log-level",
		"logging.format": "log-format",
	})

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to the assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config: %w", err)
				}
			}
			cfg, err := console.LoadConfig(v)
			if err != nil {
				return err
			}
			level, _ := cmd.Flags().GetString("log-level")
			logger := config.NewLogger(level, "text", stderr)
			return console.Run(cmd.Context(), cfg, in, out, logger)
		},
	}
	consoleCmd.Flags().String("server-url", "ws://localhost:3000/ws", "relay websocket url")
	consoleCmd.Flags().String("origin", "", "Origin header sent to the relay")
	consoleCmd.Flags().String("language", "en-IN", "initial conversation language")
	consoleCmd.Flags().String("log-level", "warn", "debug|info|warn|error")
	bindFlags(v, consoleCmd, map[string]string{
		"console.server_url": "server-url",
		"console.origin":     "origin",
		"console.language":   "language",
	})

	root.AddCommand(serveCmd, consoleCmd)
	return root
}

// bindFlags binds only flags the user set, so unset flags do not shadow
// environment variables or the config file.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	prev := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		for key, name := range keys {
			if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		if prev != nil {
			return prev(cmd, args)
		}
		return nil
	}
}

func loadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func runMain(ctx context.Context, args []string, in io.Reader, out, stderr io.Writer, newServeDeps func(*viper.Viper, func() string) serveDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	if err := loadDotenv(".env"); err != nil {
		fmt.Fprintf(stderr, "revolt-voice: %v\n", err)
		return 1
	}

	root := newRootCmd(in, out, stderr, newServeDeps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "revolt-voice: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr, defaultServeDeps))
}
