// room-agent runs the incident room script headless against a local room
// runtime. Player movement and popup clicks are read from stdin, one command
// per line:
//
//	enter <zone>
//	leave <zone>
//	click <popup> <button label>
//	popups
//	status
//	quit
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/getlavanda/incidentroom/internal/agent"
	"github.com/getlavanda/incidentroom/internal/config"
	"github.com/getlavanda/incidentroom/internal/console"
	"github.com/getlavanda/incidentroom/internal/logging"
	"github.com/getlavanda/incidentroom/internal/room"
)

const stopTimeout = 2 * time.Second

var errQuit = errors.New("quit")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath    string
	roomName      string
	redisAddr     string
	redisPassword string
	redisDB       int
	debug         bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	flagSet := pflag.NewFlagSet("room-agent", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the agent YAML config (defaults apply when empty)")
	flagSet.StringVar(&opts.roomName, "room", "default", "room to join")
	flagSet.StringVar(&opts.redisAddr, "redis", "", "Redis address to share the room between processes (in-memory when empty)")
	flagSet.StringVar(&opts.redisPassword, "redis-password", "", "Redis password")
	flagSet.IntVar(&opts.redisDB, "redis-db", 0, "Redis database number")
	flagSet.BoolVar(&opts.debug, "debug", false, "development logging at debug level")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}

	logger := logging.New(opts.debug, stderr)
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadAgentConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}

	backend, closeBackend, err := openBackend(opts, logger)
	if err != nil {
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}
	defer closeBackend()

	if err := serve(ctx, backend, cfg, opts.roomName, stdin, &syncWriter{w: stdout}, logger); err != nil {
		logger.Error("room agent failed", zap.Error(err))
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}
	return 0
}

func openBackend(opts options, logger *zap.Logger) (room.Backend, func(), error) {
	if opts.redisAddr == "" {
		logger.Info("using in-memory room backend")
		return room.NewMemoryBackend(0), func() {}, nil
	}
	b, err := room.NewRedisBackend(room.RedisConfig{
		Addr:     opts.redisAddr,
		Password: opts.redisPassword,
		DB:       opts.redisDB,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis room backend", zap.String("addr", opts.redisAddr))
	return b, func() { _ = b.Close() }, nil
}

func serve(ctx context.Context, backend room.Backend, cfg *config.AgentConfig, roomName string, stdin io.Reader, out io.Writer, logger *zap.Logger) error {
	conn, err := room.Join(ctx, backend, roomName, logger)
	if err != nil {
		return err
	}
	screen := console.New(logger, out)
	a, err := agent.New(agent.Host{
		Areas:  conn,
		Events: conn,
		State:  conn,
		UI:     screen,
		Nav:    screen,
		Audio:  screen,
		Layers: screen,
	}, cfg, logger)
	if err != nil {
		conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.Run(gctx) })
	g.Go(func() error {
		defer cancel()

		var startErr error
		if err := conn.Sync(gctx, func() { startErr = a.Start(gctx) }); err != nil {
			return err
		}
		if startErr != nil {
			return startErr
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			_ = conn.Sync(stopCtx, a.Stop)
		}()

		fmt.Fprintf(out, "joined room %s as %s\n", roomName, conn.ID)
		return readCommands(gctx, stdin, out, &shell{conn: conn, screen: screen, agent: a})
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func readCommands(ctx context.Context, stdin io.Reader, out io.Writer, sh *shell) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := sh.execute(ctx, line, out)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// shell executes operator commands. Everything that touches agent or console
// state runs on the connection's dispatcher.
type shell struct {
	conn   *room.Conn
	screen *console.Console
	agent  *agent.Agent
}

func (sh *shell) execute(ctx context.Context, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}

	switch cmd, rest := fields[0], fields[1:]; cmd {
	case "enter", "leave":
		if len(rest) != 1 {
			return fmt.Errorf("usage: %s <zone>", cmd)
		}
		if cmd == "enter" {
			sh.conn.Enter(rest[0])
		} else {
			sh.conn.Leave(rest[0])
		}
		return sh.conn.Sync(ctx, func() {})

	case "click":
		if len(rest) < 2 {
			return fmt.Errorf("usage: click <popup> <button label>")
		}
		var clickErr error
		if err := sh.conn.Sync(ctx, func() {
			clickErr = sh.screen.Click(rest[0], strings.Join(rest[1:], " "))
		}); err != nil {
			return err
		}
		return clickErr

	case "popups":
		popups := sh.screen.Popups()
		if len(popups) == 0 {
			fmt.Fprintln(out, "no open popups")
		}
		for _, p := range popups {
			fmt.Fprintf(out, "%s: %q [%s]\n", p.Target, p.Message, strings.Join(p.Buttons, ", "))
		}
		return nil

	case "status":
		var status string
		var active bool
		if err := sh.conn.Sync(ctx, func() {
			s := sh.agent.Session()
			status, active = string(s.Status()), s.AlertActive()
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "status: %s (alert active: %t)\n", status, active)
		return nil

	case "help":
		fmt.Fprintln(out, "commands: enter <zone>, leave <zone>, click <popup> <label>, popups, status, quit")
		return nil

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// syncWriter serialises writes from the dispatcher and the command loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
