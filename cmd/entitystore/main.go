// Command entitystore administers an entity store: it checks the migration
// catalog, lists and prints entities, shows archived history and upgrades
// stored documents to the current model versions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rpattn/entitystore/internal/config"
)

const usage = `usage: entitystore [-config dir] <command> [args]

commands:
  verify                          check that every migration chain is complete
  list [-label l] [-parent id] [-property k=v] [-search text] [-sort field] <type>
                                  list stored entities of a type
  show <type> <id>                print the current document of an entity
  history <type> <id>             list archived versions of an entity
  diff <type> <id> <sequence>     diff an archived version against the current one
  upgrade [-user name] <type>     rewrite documents stored at an older model version
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("entitystore", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usage) }
	configDir := flags.String("config", ".", "directory holding config.yaml")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errUsage
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}
	logger := setupLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if cfg.File != "" {
		logger.Debug("loaded config", "file", cfg.File)
	}

	a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	cmd, cmdArgs := flags.Arg(0), flags.Args()[1:]
	switch cmd {
	case "verify":
		return a.verify(stdout)
	case "list":
		return a.list(ctx, cmdArgs, stdout, stderr)
	case "show":
		return a.show(ctx, cmdArgs, stdout)
	case "history":
		return a.history(ctx, cmdArgs, stdout)
	case "diff":
		return a.diff(ctx, cmdArgs, stdout)
	case "upgrade":
		return a.upgrade(ctx, cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return errUsage
	}
}
