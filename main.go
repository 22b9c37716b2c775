// ABOUTME: Entry point for the crmsync CLI and MCP server
// ABOUTME: Loads configuration, opens the local store and routes to commands
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/crmsync/cli"
	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/remote"
)

const version = "0.1.0"

type command func(ctx context.Context, app *cli.App, args []string) error

var commands = map[string]command{
	"find":      cli.FindCommand,
	"sync":      cli.SyncCommand,
	"sync-all":  cli.SyncAllCommand,
	"resync":    cli.ResyncCommand,
	"attribute": cli.AttributeCommand,
	"pay":       cli.PayCommand,
	"replay":    cli.ReplayCommand,
	"taxonomy":  cli.TaxonomyCommand,
	"link":      cli.LinkCommand,
	"attr":      cli.AttrCommand,
	"status":    cli.StatusCommand,
}

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/crmsync/config.yaml)")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/crmsync/crmsync.db)")
	verbose := flag.Bool("verbose", false, "Log at debug level")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("crmsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	name, cmdArgs := args[0], args[1:]
	if name == "config" {
		if err := cli.ConfigCommand(cfg, path, os.Stdout, cmdArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	run, ok := commands[name]
	if !ok && name != "mcp" {
		fmt.Printf("Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(cfg, os.Stdout, logger)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	if name == "mcp" {
		err = cli.MCPCommand(ctx, app, version)
	} else {
		err = run(ctx, app, cmdArgs)
	}
	if closeErr := app.Close(); closeErr != nil {
		logger.Warn("failed to close", "error", closeErr)
	}

	if err != nil {
		if errors.Is(err, remote.ErrConfiguration) {
			log.Fatalf("Error: %v (run 'crmsync config set-key' or set CRMSYNC_API_KEY)", err)
		}
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`crmsync v%s - reconcile local people and purchases with a remote CRM

USAGE:
  crmsync [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/crmsync/config.yaml)
  --db-path <path>       Database path (default: ~/.local/share/crmsync/crmsync.db)
  --verbose              Log at debug level

COMMANDS:
  find --name N --email E[,E2]       Find the confirmed constituent
  sync --entity ID [--full]          Push an entity's identity and contact records
  resync --entity ID                 Replace every remote contact record of each supplied kind
  sync-all                           Sync every entity with a name or email
  attribute --order FILE             Preview gift attribution for an order
  pay --entity ID --order FILE       Record an order as gifts and sync memberships
  replay [--limit N]                 Re-send journaled failed writes
  link --entity ID --to ID --type T  Relate two entities (or --group G to join a group)
  taxonomy [NAME...]                 List funds, campaigns, gift categories and more
  attr get|set|list --entity ID      Read or write local attributes
  status                             Show jobs, pending failures and configuration
  config show|set-key                Show config or store the API key
  mcp                                Start the MCP server on stdio

EXAMPLES:
  crmsync attr set --entity e1 --key email --value ann@example.com
  crmsync sync --entity e1
  crmsync pay --entity e1 --order order.json

`, version)
}
