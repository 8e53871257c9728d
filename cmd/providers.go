package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"parley/config"
	"parley/provider"
)

func newProvidersCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Check the configured providers",
		Long: `Ping every configured provider and list the models it offers.

Examples:
  parley providers
  parley providers --all
  parley providers use anthropic --model claude-sonnet-4-5
  parley providers set-key openai`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ids := providerIDs(a.cfg, all)
			results := provider.CheckProviders(cmd.Context(), a.cfg, ids, a.log.Zerolog())
			printPingResults(cmd.OutOrStdout(), a.cfg.DefaultProvider, results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "check every supported provider, configured or not")

	var modelName string
	useCmd := &cobra.Command{
		Use:   "use ID",
		Short: "Make a provider the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return useProvider(cmd.OutOrStdout(), a.cfg.DataDir(), args[0], modelName)
		},
	}
	useCmd.Flags().StringVar(&modelName, "model", "", "also set the provider's model")
	cmd.AddCommand(useCmd)

	var remove bool
	setKeyCmd := &cobra.Command{
		Use:   "set-key ID",
		Short: "Store a provider API key in the credential store",
		Long: `Store a provider API key in the credential store. The key is read from
the terminal without echo, or from the first line of standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var key string
			if !remove {
				key, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "API key for "+config.ProviderDisplayName(args[0])+": ")
				if err != nil {
					return err
				}
				if key == "" {
					return fmt.Errorf("no key given")
				}
			}
			if err := a.cfg.SetAPIKey(args[0], key); err != nil {
				return err
			}
			if remove {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Removed key for "+args[0]))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Stored key for "+args[0]))
			}
			return nil
		},
	}
	setKeyCmd.Flags().BoolVar(&remove, "remove", false, "delete the stored key")
	cmd.AddCommand(setKeyCmd)

	return cmd
}

// providerIDs lists the configured providers and the default, or every
// supported one with all.
func providerIDs(cfg *config.Config, all bool) []string {
	if all {
		return provider.KnownProviders()
	}
	ids := cfg.ConfiguredProviders()
	if !slices.Contains(ids, cfg.DefaultProvider) {
		ids = append([]string{cfg.DefaultProvider}, ids...)
	}
	return ids
}

func printPingResults(out io.Writer, defaultID string, results []provider.PingResult) {
	for _, r := range results {
		name := config.ProviderDisplayName(r.ProviderID)
		if r.ProviderID == defaultID {
			name += " (default)"
		}
		if r.Err != nil {
			fmt.Fprintf(out, "%s %s  %s\n", errorStyle.Render("✗"), name, dimStyle.Render(r.Err.Error()))
			continue
		}
		fmt.Fprintf(out, "%s %s  %s\n", successStyle.Render("✓"), name, dimStyle.Render(fmt.Sprintf("model %s, %d available", r.Model, len(r.Models))))
	}
}

func useProvider(out io.Writer, dataDir, id, modelName string) error {
	id = strings.ToLower(id)
	if !slices.Contains(provider.KnownProviders(), id) {
		return fmt.Errorf("unknown provider %q (one of %s)", id, strings.Join(provider.KnownProviders(), ", "))
	}
	if err := config.SetDefaultProvider(dataDir, id); err != nil {
		return err
	}
	if modelName != "" {
		if err := config.UpdateProviderField(dataDir, id, "model", modelName); err != nil {
			return err
		}
	}
	fmt.Fprintln(out, successStyle.Render("Default provider is now "+config.ProviderDisplayName(id)))
	return nil
}

// readSecret prompts without echo on a terminal and reads a plain line
// otherwise.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
