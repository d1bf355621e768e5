package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/minios-linux/bundlekit/i18n"
	"github.com/minios-linux/bundlekit/settings"
	"github.com/minios-linux/bundlekit/translate"
)

// ---------------------------------------------------------------------------
// auth (manage provider API keys)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Store, list and remove translation provider API keys.

Keys are stored in ` + "`$XDG_DATA_HOME/bundlekit/credentials.yaml`" + ` with 0600
permissions. The --api-key flag and the BUNDLEKIT_API_KEY / DEEPL_AUTH_KEY
environment variables take precedence over stored keys.`,
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthRemoveCmd(), newAuthListCmd())
	return cmd
}

func validProvider(id string) error {
	if _, ok := translate.DefaultProviders()[id]; !ok {
		return fatal(fmt.Errorf("%w: %q (valid: deepl, google)", translate.ErrUnknownProvider, id))
	}
	return nil
}

func newAuthSetCmd() *cobra.Command {
	var key, baseURL string
	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key",
		Args:  cobra.ExactArgs(1),
		Example: `  bundlekit auth set deepl
  bundlekit auth set deepl --key xxxxxxxx:fx --base-url https://api-free.deepl.com/v2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := validProvider(id); err != nil {
				return err
			}
			if key == "" {
				if !isInteractive() {
					return fatal(errors.New(i18n.T("no key given; use --key")))
				}
				prompt := promptui.Prompt{
					Label: fmt.Sprintf(i18n.T("API key for %s"), id),
					Mask:  '*',
					Validate: func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New(i18n.T("key must not be empty"))
						}
						return nil
					},
				}
				var err error
				if key, err = prompt.Run(); err != nil {
					return fatal(err)
				}
			}
			if err := settings.SetAPIKeyWithBaseURL(id, strings.TrimSpace(key), baseURL); err != nil {
				return fatal(err)
			}
			logSuccess(i18n.T("Stored key for %s in %s"), id, settings.FilePath())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key (prompted when omitted)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint override stored with the key")
	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "remove [provider]",
		Aliases: []string{"logout", "rm"},
		Short:   "Remove stored API keys",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if err := settings.RemoveAll(); err != nil {
					return fatal(err)
				}
				logSuccess(i18n.T("All stored keys removed"))
				return nil
			}
			if len(args) == 0 {
				return fatal(errors.New(i18n.T("name a provider or use --all")))
			}
			if err := settings.Remove(args[0]); err != nil {
				return fatal(err)
			}
			logSuccess(i18n.T("Removed key for %s"), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every stored key")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			header := color.New(color.FgBlue, color.Bold)
			section := color.New(color.FgYellow)

			header.Fprintf(out, "\n%s\n", i18n.T("Stored Credentials"))
			fmt.Fprintln(out, strings.Repeat("─", 60))

			section.Fprintf(out, "\n  %s\n", i18n.T("Providers"))
			defs := translate.DefaultProviders()
			for _, id := range []string{translate.ProviderDeepL, translate.ProviderGoogle} {
				entry := settings.Get(id)
				status := color.RedString(i18n.T("not configured"))
				if entry != nil && entry.Key != "" {
					status = color.GreenString(i18n.T("configured")) + fmt.Sprintf(" (key: %s)", settings.MaskKey(entry.Key))
					if entry.BaseURL != "" {
						status += fmt.Sprintf("\n  %-8s %-18s endpoint: %s", "", "", entry.BaseURL)
					}
				} else if id == translate.ProviderGoogle {
					status = i18n.T("no key needed")
				}
				fmt.Fprintf(out, "  %-8s %-18s %s\n", id, defs[id].Name, status)
			}

			section.Fprintf(out, "\n  %s\n", i18n.T("Environment Variables"))
			for _, name := range []string{"BUNDLEKIT_API_KEY", "DEEPL_AUTH_KEY"} {
				if v := os.Getenv(name); v != "" {
					fmt.Fprintf(out, "  %-18s %s %s\n", name+":", color.GreenString(settings.MaskKey(v)), i18n.T("(overrides stored keys)"))
				} else {
					fmt.Fprintf(out, "  %-18s %s\n", name+":", color.RedString(i18n.T("not set")))
				}
			}
			fmt.Fprintln(out)
		},
	}
}
