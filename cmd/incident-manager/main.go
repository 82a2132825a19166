// incident-manager sets or clears the shared incident flag of a virtual-world
// room through the room automation API, and broadcasts the matching event to
// everyone connected.
//
//	incident-manager trigger --url <incident-url>
//	incident-manager trigger <incident-url>
//	incident-manager resolve
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/getlavanda/incidentroom/internal/config"
	"github.com/getlavanda/incidentroom/internal/incident"
	"github.com/getlavanda/incidentroom/internal/logging"
	"github.com/getlavanda/incidentroom/internal/roomapi"
)

const callTimeout = 30 * time.Second

// dialFunc opens a room API client. The returned close func releases it.
type dialFunc func(cfg *config.NotifierConfig, logger *zap.Logger) (incident.RoomClient, func() error, error)

func dialRoomAPI(cfg *config.NotifierConfig, logger *zap.Logger) (incident.RoomClient, func() error, error) {
	client, err := roomapi.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, dialRoomAPI)
	stop()
	os.Exit(code)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "   Usage:")
	fmt.Fprintln(w, "     incident-manager trigger --url <incident-url>")
	fmt.Fprintln(w, "     incident-manager resolve")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, dial dialFunc) int {
	var incidentURL string
	var debug bool

	flagSet := pflag.NewFlagSet("incident-manager", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&incidentURL, "url", "", "incident URL to announce (trigger only)")
	flagSet.BoolVar(&debug, "debug", false, "write debug logs to stderr")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stdout)
			return 0
		}
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		printUsage(stderr)
		return 1
	}

	logger := zap.NewNop()
	if debug {
		logger = logging.New(true, stderr)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadNotifierConfig()
	if err != nil {
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		var missing *config.MissingEnvError
		if errors.As(err, &missing) {
			fmt.Fprintf(stderr, "   %s\n", missing.Hint)
		}
		return 1
	}

	positional := flagSet.Args()
	var command string
	if len(positional) > 0 {
		command = positional[0]
	}
	switch command {
	case "trigger":
		if incidentURL == "" && len(positional) > 1 {
			incidentURL = positional[1]
		}
		if incidentURL == "" {
			fmt.Fprintln(stderr, "❌ Error: Incident URL is required")
			fmt.Fprintln(stderr, "   Usage: incident-manager trigger --url <incident-url>")
			return 1
		}
	case "resolve":
	default:
		fmt.Fprintln(stderr, "❌ Error: Unknown command")
		printUsage(stderr)
		return 1
	}

	fmt.Fprintln(stdout, "🔌 Connection details:")
	fmt.Fprintf(stdout, "   Room API Host: %s\n", cfg.APIHost)
	fmt.Fprintf(stdout, "   Room API Port: %d\n", cfg.APIPort)
	fmt.Fprintf(stdout, "   Using SSL: %t\n", cfg.UseTLS())
	fmt.Fprintf(stdout, "   API Key: %s\n", cfg.MaskedSecretKey())
	fmt.Fprintf(stdout, "   Room URL: %s\n", cfg.RoomURL)
	fmt.Fprintln(stdout)

	client, closeClient, err := dial(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := closeClient(); err != nil {
			logger.Warn("failed to close room API client", zap.Error(err))
		}
	}()

	n := incident.NewNotifier(client, cfg.RoomURL, incident.WithOutput(stdout), incident.WithLogger(logger))
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if command == "trigger" {
		fmt.Fprintln(stdout, "🚨 Triggering incident alert...")
		fmt.Fprintf(stdout, "   Room: %s\n", cfg.RoomURL)
		fmt.Fprintf(stdout, "   Incident URL: %s\n", incidentURL)
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "📝 Setting variable...")
		if err := n.Trigger(callCtx, incidentURL); err != nil {
			fmt.Fprintf(stderr, "❌ Error triggering incident: %v\n", err)
			printConnectionHint(stderr, cfg, err)
			return 1
		}
		fmt.Fprintln(stdout, "🎉 Incident alert triggered successfully!")
		return 0
	}

	fmt.Fprintln(stdout, "✅ Resolving incident alert...")
	fmt.Fprintf(stdout, "   Room: %s\n", cfg.RoomURL)
	if err := n.Resolve(callCtx); err != nil {
		fmt.Fprintf(stderr, "❌ Error resolving incident: %v\n", err)
		printConnectionHint(stderr, cfg, err)
		return 1
	}
	fmt.Fprintln(stdout, "🎉 Incident resolved successfully!")
	return 0
}

func printConnectionHint(w io.Writer, cfg *config.NotifierConfig, err error) {
	if !incident.IsConnectionProblem(err) {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "💡 Connection troubleshooting:")
	fmt.Fprintf(w, "   1. Verify %s and %s are correct\n", config.EnvAPIHost, config.EnvAPIPort)
	fmt.Fprintf(w, "   2. For self-hosted: Use %s=room-api.workadventure.localhost %s=80\n", config.EnvAPIHost, config.EnvAPIPort)
	fmt.Fprintln(w, "   3. For production: Verify the Room API service is accessible")
	fmt.Fprintln(w, "   4. Check your API key is valid and has Room API access")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   Current settings:")
	fmt.Fprintf(w, "      Host: %s\n", cfg.APIHost)
	fmt.Fprintf(w, "      Port: %d\n", cfg.APIPort)
}
