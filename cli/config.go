// ABOUTME: Configuration CLI commands
// ABOUTME: show prints the effective config; set-key stores the API key entered without echo
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/crmsync/config"
)

// ConfigCommand dispatches config show|set-key. It needs no database.
func ConfigCommand(cfg *config.Config, path string, out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("config requires a subcommand: show or set-key")
	}

	switch args[0] {
	case "show":
		data, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		_, _ = fmt.Fprintf(out, "# %s\n%s", path, data)
		return nil

	case "set-key":
		key, err := readSecret(out, "API key: ")
		if err != nil {
			return err
		}
		fileCfg, err := config.LoadForEdit(path)
		if err != nil {
			return err
		}
		return setAPIKey(fileCfg, path, key, out)
	}
	return fmt.Errorf("unknown config subcommand %q", args[0])
}

func setAPIKey(cfg *config.Config, path, key string, out io.Writer) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key must not be empty")
	}
	cfg.APIKey = key
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", okStyle.Render("Saved API key to"), path)
	return nil
}

func readSecret(out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return line, nil
	}

	secret, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return string(secret), nil
}
