// ABOUTME: Attribute CLI commands
// ABOUTME: Reads and writes local entity attributes
package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
)

// AttrCommand dispatches attr get|set|list.
func AttrCommand(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("attr requires a subcommand: get, set or list")
	}

	fs := flag.NewFlagSet("attr "+args[0], flag.ContinueOnError)
	entity := fs.String("entity", "", "Local entity id (required)")
	key := fs.String("key", "", "Attribute key")
	value := fs.String("value", "", "Attribute value (set only)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *entity == "" {
		return fmt.Errorf("--entity is required")
	}

	switch args[0] {
	case "get":
		if *key == "" {
			return fmt.Errorf("--key is required")
		}
		v, ok, err := app.Attrs.GetAttribute(ctx, *entity, *key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s has no attribute %q", *entity, *key)
		}
		app.printf("%s\n", v)

	case "set":
		if *key == "" {
			return fmt.Errorf("--key is required")
		}
		if err := app.Attrs.SetAttribute(ctx, *entity, *key, *value); err != nil {
			return err
		}
		app.printf("%s %s.%s\n", okStyle.Render("set"), *entity, *key)

	case "list":
		attrs, err := app.Attrs.Attributes(ctx, *entity)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			app.printf("%s=%s\n", k, attrs[k])
		}

	default:
		return fmt.Errorf("unknown attr subcommand %q", args[0])
	}
	return nil
}
