// ABOUTME: Sync CLI commands
// ABOUTME: sync, resync, sync-all, replay and status
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/engine"
	"github.com/harperreed/crmsync/models"
)

const (
	jobSyncAll = "sync-all"
	jobReplay  = "replay"
)

// SyncCommand syncs one entity. With --full every remote record of each
// supplied kind is replaced.
func SyncCommand(ctx context.Context, app *App, args []string) error {
	return syncEntity(ctx, app, "sync", args, false)
}

// ResyncCommand is sync --full.
func ResyncCommand(ctx context.Context, app *App, args []string) error {
	return syncEntity(ctx, app, "resync", args, true)
}

func syncEntity(ctx context.Context, app *App, name string, args []string, full bool) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	entity := fs.String("entity", "", "Local entity id (required)")
	if !full {
		fs.BoolVar(&full, "full", false, "Replace every remote record of each supplied kind")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entity == "" && fs.NArg() > 0 {
		*entity = fs.Arg(0)
	}
	if *entity == "" {
		return fmt.Errorf("--entity is required")
	}

	run := app.Engine.SyncEntity
	if full {
		run = app.Engine.ResyncEntity
	}

	report, err := run(ctx, *entity)
	if report != nil {
		printSyncReport(app, report)
	}
	return err
}

func printSyncReport(app *App, r *engine.SyncReport) {
	app.printf("%s %s -> %s (%s)\n", titleStyle.Render("Entity"), r.EntityID, r.ConstituentID, styleFor(r.MatchMethod).Render(r.MatchMethod))
	for _, c := range r.Contacts {
		line := fmt.Sprintf("  %-8s %s", c.Kind, styleFor(string(c.Action)).Render(string(c.Action)))
		if !c.RecordID.IsZero() {
			line += " " + dimStyle.Render(c.RecordID.String())
		}
		app.printf("%s\n", line)
	}
	if r.Journaled > 0 {
		app.printf("  %s\n", warnStyle.Render(fmt.Sprintf("%d write(s) journaled for replay", r.Journaled)))
	}
}

// SyncAllCommand syncs every entity with identity attributes.
func SyncAllCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("sync-all", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := db.UpdateSyncStatus(ctx, app.DB, jobSyncAll, models.SyncStatusSyncing, ""); err != nil {
		return err
	}

	reports, err := app.Engine.SyncAll(ctx)
	for _, r := range reports {
		printSyncReport(app, r)
	}

	if err != nil {
		if statusErr := db.UpdateSyncStatus(ctx, app.DB, jobSyncAll, models.SyncStatusError, err.Error()); statusErr != nil {
			return errors.Join(err, statusErr)
		}
		return err
	}

	app.printf("%s %d entities\n", okStyle.Render("Synced"), len(reports))
	return db.MarkSynced(ctx, app.DB, jobSyncAll, time.Now())
}

// ReplayCommand re-sends journaled writes.
func ReplayCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	limit := fs.Int("limit", 100, "Maximum number of entries to replay")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := app.Engine.Replay(ctx, *limit)
	if err != nil {
		_ = db.UpdateSyncStatus(ctx, app.DB, jobReplay, models.SyncStatusError, err.Error())
		return err
	}

	app.printf("%s %d, %s %d\n",
		styleFor("resolved").Render("resolved"), report.Resolved,
		styleFor("failed").Render("failed"), report.Failed)
	return db.MarkSynced(ctx, app.DB, jobReplay, time.Now())
}

// StatusCommand shows job state, pending failures and the rate budget.
func StatusCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	app.printf("%s\n", titleStyle.Render("crmsync status"))
	app.printf("  api:      %s\n", app.Config.APIBaseURL)
	if !app.Config.HasCredentials() {
		app.printf("  %s\n", errStyle.Render("no API credentials configured"))
	}
	app.printf("  database: %s\n", app.Config.DatabasePath)
	app.printf("  cache:    %s\n", app.Config.Cache.Backend)

	states, err := db.GetAllSyncStates(ctx, app.DB)
	if err != nil {
		return err
	}
	if len(states) > 0 {
		app.printf("\n%s\n", titleStyle.Render("Jobs"))
		w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
		for _, s := range states {
			last := "never"
			if s.LastSyncTime != nil {
				last = s.LastSyncTime.Local().Format("2006-01-02 15:04")
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", s.Job, styleFor(s.Status).Render(s.Status), last, s.ErrorMessage)
		}
		_ = w.Flush()
	}

	pending, err := app.Journal.Pending(ctx, 0)
	if err != nil {
		return err
	}
	app.printf("\n%s %d\n", titleStyle.Render("Pending failures"), len(pending))
	w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	for _, e := range pending {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s %s\t%d\t%s\n", e.ID, e.Operation, e.Method, e.Endpoint, e.Attempts, e.ErrorMessage)
	}
	return w.Flush()
}
