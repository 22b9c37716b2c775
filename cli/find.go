// ABOUTME: Lookup CLI commands
// ABOUTME: find confirms a constituent by email or name; taxonomy lists remote reference data
package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/crmsync/remote"
)

// FindCommand looks up the constituent confirmed by the given identity.
func FindCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	name := fs.String("name", "", "Full name or organization name")
	emails := fs.String("email", "", "Email address, or several separated by commas")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var list []string
	for _, e := range strings.Split(*emails, ",") {
		if e = strings.TrimSpace(e); e != "" {
			list = append(list, e)
		}
	}
	if *name == "" && len(list) == 0 {
		return fmt.Errorf("--name or --email is required")
	}

	match, err := app.Engine.Matcher().FindConstituent(ctx, *name, list)
	if err != nil {
		return fmt.Errorf("failed to find constituent: %w", err)
	}
	if match == nil {
		app.printf("%s\n", dimStyle.Render("No confirmed constituent"))
		return nil
	}

	app.printf("%s %s\n", titleStyle.Render("Constituent"), match.ID)
	app.printf("  method: %s\n", match.Method)
	if match.MatchedEmail != "" {
		app.printf("  email:  %s\n", match.MatchedEmail)
	}
	return nil
}

// TaxonomyCommand lists one taxonomy, or all of them when no name is given.
func TaxonomyCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("taxonomy", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := remote.TaxonomyNames
	if fs.NArg() > 0 {
		names = fs.Args()
	}

	for _, name := range names {
		items, err := app.Client.Taxonomy(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}

		app.printf("%s\n", titleStyle.Render(name))
		w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
		for _, item := range items {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", item.ID, item.Name)
		}
		_ = w.Flush()
		if len(items) == 0 {
			app.printf("  %s\n", dimStyle.Render("(none)"))
		}
	}
	return nil
}
