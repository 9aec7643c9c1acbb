package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmorgan81/textimage/internal/config"
	"github.com/dmorgan81/textimage/internal/controller"
	"github.com/dmorgan81/textimage/internal/image"
	"github.com/dmorgan81/textimage/internal/inject"
	"github.com/dmorgan81/textimage/internal/log"
	"github.com/dmorgan81/textimage/internal/tui"
	"github.com/dmorgan81/textimage/internal/web"
	"github.com/samber/do"
)

func main() {
	mode := flag.String("mode", "web", "shell to run: web or tui")
	flag.Parse()

	if err := run(*mode); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(mode string) error {
	if mode != "web" && mode != "tui" {
		return fmt.Errorf("unknown mode %q", mode)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if mode == "tui" {
		out = io.Discard
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
	}

	ctx := log.NewContext(context.Background(), log.New(out, log.ParseLevel(cfg.LogLevel)))
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	injector := inject.Setup(ctx, cfg)
	defer func() { _ = injector.Shutdown() }()

	// Resolve the credential once, up front.
	if _, err := do.Invoke[image.Generator](injector); err != nil {
		return fmt.Errorf("configure inference client: %w", err)
	}

	if mode == "tui" {
		newController := do.MustInvoke[controller.Factory](injector)
		return tui.Run(ctx, newController())
	}
	return do.MustInvoke[*web.Server](injector).ListenAndServe(ctx, cfg.ListenAddr)
}
