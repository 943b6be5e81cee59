package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hollowaylabs/atfetch/pkg/command"
	"github.com/hollowaylabs/atfetch/pkg/config"
	"github.com/hollowaylabs/atfetch/pkg/console"
	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/executor"
	"github.com/hollowaylabs/atfetch/pkg/logging"
	"github.com/hollowaylabs/atfetch/pkg/stats"
	"github.com/hollowaylabs/atfetch/pkg/status"
	"github.com/hollowaylabs/atfetch/pkg/storage"
	"github.com/hollowaylabs/atfetch/pkg/stream"
	"github.com/hollowaylabs/atfetch/pkg/transfer"
)

var (
	// Global flags
	configFile string

	rootCmd = &cobra.Command{
		Use:   "atfetch",
		Short: "atfetch - serial-command-driven HTTP transfer daemon",
		Long: `atfetch executes HTTP(S) transfers driven by AT-style commands on a
serial console. Transfers run one at a time; response bodies stream through
fixed dual buffers to the console or to files, framed for byte-oriented
consumers.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the command console and transfer executor",
		Long: `Run the daemon: read AT commands from the console, execute transfers
one at a time and stream results back.

Examples:
  # Serve on stdio (the default)
  atfetch serve

  # Serve on a TCP console
  atfetch serve --listen 127.0.0.1:7001`,
		RunE: runServe,
	}

	fetchCmd = &cobra.Command{
		Use:   "fetch [method] [url]",
		Short: "Execute a single transfer and exit",
		Long: `Execute one transfer without the command console. Body bytes stream to
stdout using the console framing, or to a file with --output.

Examples:
  atfetch fetch GET https://example.com/file.bin --output file.bin
  atfetch fetch POST https://example.com/api --data @payload.json
  atfetch fetch HEAD https://example.com/file.bin`,
		Args: cobra.ExactArgs(2),
		RunE: runFetch,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")

	serveCmd.Flags().String("listen", "", "TCP console address; empty means stdio")

	fetchCmd.Flags().StringSliceP("header", "H", nil, "request header 'Name: value'")
	fetchCmd.Flags().StringP("output", "o", "", "download destination file")
	fetchCmd.Flags().String("data", "", "POST body: inline string or @file")
	fetchCmd.Flags().StringP("range", "r", "", "byte range start-end")
	fetchCmd.Flags().BoolP("verbose", "v", false, "trace request and response headers")
	fetchCmd.Flags().Int("timeout", 0, "inactivity timeout in seconds")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
}

func main() {
	// Optional .env for local development; absence is not an error
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		var te *core.TransferError
		if errors.As(err, &te) {
			os.Exit(te.ExitCode())
		}
		os.Exit(core.ExitGeneralError)
	}
}

// runServe wires the daemon together and blocks until the console closes or
// a termination signal arrives
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return exitWithError(core.ExitConfigError, "load config", err)
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Console.Listen = listen
	}

	log := logging.Init(cfg.Log)

	store, err := storage.NewChecker(cfg.Storage.Root)
	if err != nil {
		return exitWithError(core.ExitConfigError, "storage", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Console.Listen != "" {
		return serveTCP(ctx, cfg, store, log)
	}

	port := console.NewPort(os.Stdin, os.Stdout)
	return servePort(ctx, cfg, store, port, log)
}

// serveTCP accepts console connections one at a time; the single-slot
// execution model extends to the console itself
func serveTCP(ctx context.Context, cfg *config.Config, store *storage.Checker, log *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Console.Listen)
	if err != nil {
		return exitWithError(core.ExitConfigError, "listen", err)
	}
	defer ln.Close()
	log.Info("console listening", "addr", cfg.Console.Listen)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept console: %w", err)
		}
		log.Info("console attached", "remote", conn.RemoteAddr().String())

		port := console.NewPort(conn, conn)
		if err := servePort(ctx, cfg, store, port, log); err != nil {
			log.Error("console session failed", "error", err)
		}
		conn.Close()
		log.Info("console detached", "remote", conn.RemoteAddr().String())

		if ctx.Err() != nil {
			return nil
		}
	}
}

// servePort runs one full daemon session over the given console port
func servePort(ctx context.Context, cfg *config.Config, store *storage.Checker, port *console.Port, log *slog.Logger) error {
	client := transfer.NewClient(cfg.Transfer)
	defer client.Close()

	tracker := status.New()
	collector := stats.New()
	orch := transfer.NewOrchestrator(cfg, client, port, store, log)
	exec := executor.New(orch, tracker, collector, log)
	exec.Start()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := exec.Shutdown(shutdownCtx); err != nil {
			log.Error("executor shutdown timed out", "error", err)
		}
		s := collector.Snapshot()
		log.Info("session summary", "started", s.Started, "completed", s.Completed,
			"failed", s.Failed, "bytes", s.Bytes)
	}()

	dispatcher := command.New(cfg, port, exec, tracker, store, collector, log)

	done := make(chan error, 1)
	go func() { done <- dispatcher.Run() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

// runFetch executes one transfer synchronously with framing on stdout
func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return exitWithError(core.ExitConfigError, "load config", err)
	}
	log := logging.Init(cfg.Log)

	req, err := buildFetchRequest(cmd, args, cfg)
	if err != nil {
		return exitWithError(core.ExitUsageError, "invalid arguments", err)
	}

	store, err := storage.NewChecker(cfg.Storage.Root)
	if err != nil {
		return exitWithError(core.ExitConfigError, "storage", err)
	}

	client := transfer.NewClient(cfg.Transfer)
	defer client.Close()

	port := console.NewPort(nil, os.Stdout)
	orch := transfer.NewOrchestrator(cfg, client, port, store, log)

	tc := stream.NewContext(req.Timeout)
	if err := orch.Execute(tc, req); err != nil {
		color.New(color.FgRed).Fprintf(color.Error, "transfer failed: %v\n", err)
		return err
	}
	done, _ := tc.Progress()
	color.New(color.FgGreen).Fprintf(color.Error, "transfer complete: %d bytes\n", done)
	return nil
}

func buildFetchRequest(cmd *cobra.Command, args []string, cfg *config.Config) (*core.TransferRequest, error) {
	method := core.Method(args[0])
	if !method.Supported() {
		return nil, fmt.Errorf("unsupported method %q", args[0])
	}

	headers, _ := cmd.Flags().GetStringSlice("header")
	output, _ := cmd.Flags().GetString("output")
	data, _ := cmd.Flags().GetString("data")
	rng, _ := cmd.Flags().GetString("range")
	verbose, _ := cmd.Flags().GetBool("verbose")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	timeout := cfg.Timeout()
	if timeoutSecs != 0 {
		clamped, ok := config.ClampTimeout(timeoutSecs)
		if !ok {
			return nil, fmt.Errorf("timeout must be in [%d,%d] seconds",
				config.MinTimeoutSeconds, config.MaxTimeoutSeconds)
		}
		timeout = time.Duration(clamped) * time.Second
	}

	upload := core.Upload{Kind: core.UploadNone}
	if data != "" {
		if method != core.MethodPost {
			return nil, fmt.Errorf("--data is only valid for POST")
		}
		if data[0] == '@' {
			upload = core.Upload{Kind: core.UploadFile, Path: data[1:]}
		} else {
			upload = core.Upload{Kind: core.UploadSerial, Data: []byte(data), Size: int64(len(data))}
		}
	}
	if rng != "" && method != core.MethodGet {
		return nil, fmt.Errorf("--range is only valid for GET")
	}

	return &core.TransferRequest{
		ID:           uuid.NewString(),
		Method:       method,
		URL:          args[1],
		Headers:      headers,
		Upload:       upload,
		DownloadPath: output,
		Range:        rng,
		Verbose:      verbose,
		Timeout:      timeout,
	}, nil
}

// exitWithError prints an error to stderr and exits with the given code
func exitWithError(code int, context string, err error) error {
	color.New(color.FgRed).Fprintf(color.Error, "%s: %v\n", context, err)
	os.Exit(code)
	return nil
}
