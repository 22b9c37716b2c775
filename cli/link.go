// ABOUTME: Link CLI command
// ABOUTME: Relates two entities or adds one to a remote group
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/harperreed/crmsync/models"
)

// LinkCommand relates --entity to --to with --type, or adds --entity to --group.
func LinkCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	entity := fs.String("entity", "", "Local entity id (required)")
	to := fs.String("to", "", "Related local entity id")
	relType := fs.String("type", "", "Relationship type name")
	group := fs.String("group", "", "Remote group id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *entity == "" {
		return fmt.Errorf("--entity is required")
	}

	switch {
	case *to != "":
		if *relType == "" {
			return fmt.Errorf("--type is required with --to")
		}
		action, err := app.Engine.LinkEntities(ctx, *entity, *to, *relType)
		if err != nil {
			return err
		}
		app.printf("%s %s -> %s (%s)\n", styleFor(string(action)).Render(string(action)), *entity, *to, *relType)

	case *group != "":
		action, err := app.Engine.JoinGroup(ctx, *entity, models.RemoteID(*group))
		if err != nil {
			return err
		}
		app.printf("%s %s in group %s\n", styleFor(string(action)).Render(string(action)), *entity, *group)

	default:
		return fmt.Errorf("--to or --group is required")
	}
	return nil
}
