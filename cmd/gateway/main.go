// Command gateway launches the HTTP boundary for the agentic chat core, or
// runs a single one-shot chat turn from the CLI for local smoke testing.
// Grounded on the teacher's cmd/agentd/main.go and cmd/agent/main.go entry
// points, collapsed into the two subcommands named in the core's external
// contract: `gateway --http --http-port N` and `chat <message>`.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"agentcore/internal/agent"
	"agentcore/internal/config"
	"agentcore/internal/gateway"
	"agentcore/internal/observability"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: gateway <gateway|chat> [flags]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	switch args[0] {
	case "gateway":
		return runGateway(cfg, args[1:])
	case "chat":
		return runChat(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q; want gateway or chat\n", args[0])
		return 2
	}
}

func runGateway(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	httpEnabled := fs.Bool("http", true, "serve HTTP")
	httpPort := fs.Int("http-port", 0, "HTTP port override (defaults to HTTP_ADDR from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !*httpEnabled {
		fmt.Fprintln(os.Stderr, "gateway: --http=false has nothing to run")
		return 2
	}

	addr := cfg.HTTPAddr
	if *httpPort != 0 {
		addr = fmt.Sprintf(":%d", *httpPort)
	}

	app, err := gateway.New(context.Background(), cfg)
	if err != nil {
		log.Error().Err(err).Msg("gateway init failed")
		return 1
	}

	mux := gateway.NewRouter(app)
	log.Info().Str("addr", addr).Msg("gateway listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("gateway server failed")
		return 1
	}
	return 0
}

func runChat(cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	sessionID := fs.String("session", "cli-session", "session id to use")
	userID := fs.String("user", "cli-user", "user id to use")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: gateway chat <message>")
		return 2
	}
	message := fs.Arg(0)

	app, err := gateway.New(context.Background(), cfg)
	if err != nil {
		log.Error().Err(err).Msg("gateway init failed")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := gateway.RunOneShot(ctx, app, agent.Request{
		SessionKey: *sessionID,
		UserID:     *userID,
		Message:    message,
		Channel:    "cli",
		Plan:       "pro",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		return 1
	}
	fmt.Println(res.Response)
	return 0
}
