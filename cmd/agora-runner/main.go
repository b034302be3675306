// agora-runner hosts the agent execution engine and its local control
// surface.
//
// Subcommands:
//
//	serve              start the control surface (default)
//	run-once <config>  execute a single cycle from a config file and exit
//	health             probe a running control surface
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openagora/agora/pkg/config"
	"github.com/openagora/agora/pkg/console"
	"github.com/openagora/agora/pkg/observability"
	"github.com/openagora/agora/pkg/runner"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands; split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stderr)
	}
	switch args[1] {
	case "serve":
		return runServe(stderr)
	case "run-once":
		return runOnce(args[2:], stdout, stderr)
	case "health":
		return runHealth(stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage: agora-runner [command]

commands:
  serve              start the runner control surface (default)
  run-once <config>  execute a single cycle from a config file and exit
  health             probe a running control surface
`)
}

func runServe(stderr io.Writer) int {
	logger := observability.NewLogger(config.LogLevel())
	engine := runner.NewEngine(logger, nil)
	server := console.NewServer(engine, logger)

	addr := config.ConsoleAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start immediately when the environment carries a full config;
	// otherwise wait for a start request on the control surface.
	cfg := config.Load()
	if err := cfg.Validate(); err == nil {
		if err := engine.Start(cfg); err != nil {
			logger.Error("autostart failed", "error", err)
		} else {
			logger.Info("runner autostarted from environment")
		}
	} else {
		logger.Info("runner idle, waiting for start request", "reason", err.Error())
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control surface listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(stderr, "listen: %v\n", err)
		return 1
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	engine.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		fmt.Fprintf(stderr, "shutdown: %v\n", err)
		return 1
	}
	return 0
}

func runOnce(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: agora-runner run-once <config-file>")
		return 2
	}
	cfg, err := config.LoadFile(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := observability.NewLogger(config.LogLevel())
	engine := runner.NewEngine(logger, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := engine.RunOnceWithConfig(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	if result.Err != "" {
		return 1
	}
	return 0
}

func runHealth(stdout, stderr io.Writer) int {
	url := "http://" + config.ConsoleAddr() + "/health"
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(stderr, "health: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "health: status %d\n", resp.StatusCode)
		return 1
	}
	body, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(stdout, string(body))
	return 0
}
