// fix-html-modules adds type="module" to the relative script tags of the
// built HTML files, so the bundler output loads as ES modules.
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

	"github.com/getlavanda/incidentroom/internal/htmlpatch"
	"github.com/getlavanda/incidentroom/internal/logging"
)

const defaultDir = "dist/assets"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var dir string
	var watch, debug bool
	var debounce time.Duration

	flagSet := pflag.NewFlagSet("fix-html-modules", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&dir, "dir", defaultDir, "directory holding the built HTML files")
	flagSet.BoolVar(&watch, "watch", false, "keep running and re-patch on changes")
	flagSet.DurationVar(&debounce, "debounce", htmlpatch.DefaultDebounce, "quiet period before re-patching in watch mode")
	flagSet.BoolVar(&debug, "debug", false, "development logging at debug level")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}

	if _, err := htmlpatch.PatchDir(dir, stdout); err != nil {
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "✅ HTML files fixed!")

	if !watch {
		return 0
	}

	logger := logging.New(debug, stderr)
	defer func() { _ = logger.Sync() }()
	if err := htmlpatch.Watch(ctx, dir, debounce, logger, stdout); err != nil {
		fmt.Fprintf(stderr, "❌ Error: %v\n", err)
		return 1
	}
	return 0
}
