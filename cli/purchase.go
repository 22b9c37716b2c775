// ABOUTME: Purchase CLI commands
// ABOUTME: attribute previews gift attribution; pay records an order for an entity
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/harperreed/crmsync/handlers"
	"github.com/harperreed/crmsync/models"
)

// readOrder decodes an order file, or stdin when path is "-".
func readOrder(path string) (*models.PurchaseEvent, error) {
	if path == "" {
		return nil, fmt.Errorf("--order is required")
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open order: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var input handlers.PurchaseInput
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return input.ToEvent()
}

// AttributeCommand prints the payments an order would produce without writing.
func AttributeCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("attribute", flag.ContinueOnError)
	orderPath := fs.String("order", "", "Order JSON file, or - for stdin (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	event, err := readOrder(*orderPath)
	if err != nil {
		return err
	}

	explained, err := app.Engine.Attributor().Explain(ctx, event)
	if err != nil {
		return err
	}

	for _, e := range explained {
		p := e.Payment
		app.printf("%s %s  %s  %s\n", titleStyle.Render("Gift"), p.ExternalID, models.FormatAmount(p.AmountCents), dimStyle.Render(e.Category))
		w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
		rows := []struct {
			field string
			id    models.RemoteID
		}{
			{"fund", p.FundID},
			{"campaign", p.CampaignID},
			{"gift_category", p.CategoryID},
			{"gift_type", p.GiftTypeID},
			{"payment_type", p.PaymentTypeID},
		}
		for _, row := range rows {
			id := row.id.String()
			if id == "" {
				id = "-"
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\n", row.field, id, dimStyle.Render(e.Trace[row.field]))
		}
		_ = w.Flush()
		app.printf("  note: %s\n", p.Note)
	}
	return nil
}

// PayCommand records an order as gifts on the entity's constituent.
func PayCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	entity := fs.String("entity", "", "Local entity id of the purchaser (required)")
	orderPath := fs.String("order", "", "Order JSON file, or - for stdin (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entity == "" {
		return fmt.Errorf("--entity is required")
	}

	event, err := readOrder(*orderPath)
	if err != nil {
		return err
	}

	report, err := app.Engine.RecordPurchase(ctx, *entity, event)
	if report == nil {
		return err
	}

	app.printf("%s %s -> %s\n", titleStyle.Render("Order"), event.OrderID, report.ConstituentID)
	for _, p := range report.Recorded {
		app.printf("  %s %s %s\n", okStyle.Render("recorded"), p.ExternalID, models.FormatAmount(p.AmountCents))
	}
	for _, id := range report.Skipped {
		app.printf("  %s %s %s\n", dimStyle.Render("skipped"), id, dimStyle.Render("(already recorded)"))
	}
	for _, m := range report.Memberships {
		app.printf("  membership %s level %s\n", styleFor(string(m.Action)).Render(string(m.Action)), m.LevelID)
	}
	if report.Journaled > 0 {
		app.printf("  %s\n", warnStyle.Render(fmt.Sprintf("%d write(s) journaled for replay", report.Journaled)))
	}
	return err
}
