package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/authwire/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(newConfigShowCmd(), newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the configuration after file, AUTHWIRE_* and flag overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print which config file is read and whether it exists",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	w := cmd.OutOrStdout()

	if !flagJSON {
		return config.RenderEffective(resolvedCfg, w)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(resolvedCfg)
}

// configPathOutput is the JSON schema for `config path --json`.
type configPathOutput struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	out := configPathOutput{Path: resolvedCfgPath}

	_, err := os.Stat(resolvedCfgPath)

	switch {
	case err == nil:
		out.Exists = true
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking config file: %w", err)
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		return json.NewEncoder(w).Encode(out)
	}

	if out.Exists {
		fmt.Fprintln(w, out.Path)
	} else {
		fmt.Fprintf(w, "%s (not found, using defaults)\n", out.Path)
	}

	return nil
}
