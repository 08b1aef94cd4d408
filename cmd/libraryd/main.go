// Package main is the library service entrypoint. The first argument selects
// what to run: the web server, the background worker, or a one-shot
// management task.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nta-library/library-service/internal/app/runtime"
	"github.com/nta-library/library-service/internal/config"
)

const usage = `usage: libraryd <command>

commands:
  web              run database migrations, then serve the HTTP API
  worker           run the background workers without the HTTP API
  migrate          apply pending database migrations and exit
  createsuperuser  create the bootstrap administrator and exit
  loadfixtures     seed the catalogue and membership from fixtures and exit
  notify           run the daily notification batch once and exit
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "libraryd: %v\n", err)
		os.Exit(1)
	}

	app, err := runtime.NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "libraryd: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "web":
		err = runWeb(ctx, app)
	case "worker":
		err = app.RunWorker(ctx)
	case "migrate":
		err = app.Migrate()
	case "createsuperuser":
		err = app.Bootstrap(ctx)
	case "loadfixtures":
		err = app.LoadFixtures(ctx)
	case "notify":
		err = app.RunNotify(ctx)
	default:
		fmt.Fprintf(os.Stderr, "libraryd: unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if shutdownErr := app.Shutdown(context.Background()); shutdownErr != nil {
		app.Log().WithError(shutdownErr).Warn("shutdown incomplete")
	}
	if err != nil {
		app.Log().WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func runWeb(ctx context.Context, app *runtime.Application) error {
	if err := app.Migrate(); err != nil {
		return err
	}
	return app.Run(ctx)
}
