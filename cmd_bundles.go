package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/minios-linux/bundlekit/i18n"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/reconcile"
	"github.com/minios-linux/bundlekit/translate"
)

// ---------------------------------------------------------------------------
// reconcile
// ---------------------------------------------------------------------------

type reconcileArgs struct {
	langs, project, source string
	provider               providerFlags
	concatKnown, noPrepare bool
	restoreEmpty, dryRun   bool
	yes                    bool
	machineSuffix          string
}

func newReconcileCmd() *cobra.Command {
	var a reconcileArgs
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Translate flagged bundle entries",
		Long: `Scan the project for messages_<locale>.properties bundles, collect the
entries that are empty or carry the locale marker, translate them in
batches and write the results back.

Missing locale bundles are created from the reference bundles first
unless --no-prepare is given.

Exit codes: 0 success or quota declined, 1 some files or batches failed,
2 configuration error.`,
		Example: `  # Translate all flagged French entries of one project
  bundlekit reconcile --project acme --locale fr

  # Several locales, answering the quota prompt automatically
  bundlekit reconcile --locale fr,it,es --yes

  # Offline: fill entries with the known English/German text
  bundlekit reconcile --locale fr --concat-known`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(a)
		},
	}

	cmd.Flags().StringVar(&a.langs, "locale", "", "Target locales (comma-separated, default: configured or detected)")
	cmd.Flags().StringVar(&a.project, "project", "", "Project directory inside the workspace root")
	cmd.Flags().StringVar(&a.source, "source", "", "Source language sent to the provider (default: reference, \"auto\" to detect)")
	cmd.Flags().BoolVar(&a.concatKnown, "concat-known", false, "Fill entries with the known reference and German text instead of translating")
	cmd.Flags().BoolVar(&a.noPrepare, "no-prepare", false, "Do not create or extend locale bundles from the reference")
	cmd.Flags().BoolVar(&a.restoreEmpty, "restore-empty", false, "Write empty results for empty source texts")
	cmd.Flags().StringVar(&a.machineSuffix, "machine-suffix", "", "Suffix appended to machine translations, e.g. \" (T)\"")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Translate but do not write files")
	cmd.Flags().BoolVarP(&a.yes, "yes", "y", false, "Continue without asking when the quota looks insufficient")
	a.provider.register(cmd.Flags())

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"deepl\tDeepL API — API key required",
			"google\tGoogle Translate — free web endpoint",
		}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("locale", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return locale.Codes(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runReconcile(a reconcileArgs) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	cfg := ws.Config
	root, err := projectRoot(ws, a.project)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	codes, err := targetLanguages(ctx, ws, root, a.langs)
	if err != nil {
		return err
	}
	codes = filterOutLang(codes, cfg.Reference)

	mode := reconcile.ModeTranslate
	var prov translate.Provider
	if a.concatKnown {
		mode = reconcile.ModeConcatKnown
	} else {
		if prov, err = resolveProvider(cfg, a.provider); err != nil {
			return err
		}
	}

	source := a.source
	if source == "" {
		source = cfg.SourceLang
	}
	suffix := a.machineSuffix
	if suffix == "" {
		suffix = cfg.Bundles.MachineSuffix
	}

	logInfo(i18n.T("Reconciling %s in %s"), strings.Join(codes, ", "), root)

	code := exitOK
	var reports []*reconcile.Report
	for _, lc := range codes {
		if ctx.Err() != nil {
			break
		}
		update, finish := newProgress(lc)
		rep, err := reconcile.Run(ctx, reconcile.Options{
			Root:          root,
			Locale:        lc,
			Source:        source,
			Reference:     cfg.Reference,
			Scan:          cfg.ScanOptions(),
			Provider:      prov,
			Limits:        cfg.Limits(),
			RestoreEmpty:  a.restoreEmpty,
			MachineSuffix: suffix,
			Mode:          mode,
			Prepare:       !a.noPrepare,
			DryRun:        a.dryRun,
			Confirm:       confirmQuota(a.yes),
			OnState:       func(s reconcile.State) { logDebug("%s: %s", lc, s) },
			OnProgress:    update,
			OnLog:         logInfo,
		})
		finish()
		if err != nil {
			logDebug("%s: %v", lc, err)
		}
		printReconcileReport(rep)
		reports = append(reports, rep)
		code = max(code, rep.ExitCode())
	}

	if err := writeReport(reports); err != nil {
		logError("%v", err)
		code = max(code, exitPartial)
	}
	if ctx.Err() != nil {
		logWarning(i18n.T("Interrupted, completed batches were written"))
	}
	if code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

func printReconcileReport(rep *reconcile.Report) {
	for _, p := range rep.Unreadable {
		logWarning(i18n.T("Skipped %s: %s"), p.Path, p.Error)
	}
	for _, p := range rep.Suspicious {
		logWarning(i18n.T("Check %s [%s]: %s"), p.Path, p.Key, p.Error)
	}
	if verbose {
		for _, p := range rep.Failed {
			logWarning(i18n.T("Not translated %s [%s]: %s"), p.Path, p.Key, p.Error)
		}
	}

	switch rep.State {
	case reconcile.Failed:
		logError("%s: %s", rep.Locale, rep.Fatal)
	case reconcile.Aborted:
		logWarning(i18n.T("%s: aborted, nothing was sent or written"), rep.Locale)
	default:
		if rep.Partial() {
			logWarning("%s", rep.Summary())
			if err := rep.Err(); err != nil {
				logDebug("%v", err)
			}
			return
		}
		logSuccess("%s", rep.Summary())
	}
}

// ---------------------------------------------------------------------------
// prepare
// ---------------------------------------------------------------------------

func newPrepareCmd() *cobra.Command {
	var (
		langs, project string
		dryRun         bool
	)
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Create locale bundles from the reference bundles",
		Long: `For every reference bundle (messages_en.properties by default) create the
bundle for each target locale as a copy with the locale marker appended to
every value. Existing bundles get the keys they lack appended the same way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			root, err := projectRoot(ws, project)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			codes := splitLangs(langs)
			if len(codes) == 0 {
				return fatal(errors.New(i18n.T("no target locale; use --locale")))
			}

			code := exitOK
			for _, lc := range filterOutLang(codes, ws.Config.Reference) {
				res, err := reconcile.Prepare(ctx, root, lc, reconcile.PrepareOptions{
					Scan:   ws.Config.ScanOptions(),
					DryRun: dryRun,
					OnLog:  logDebug,
				})
				if err != nil {
					return fatal(err)
				}
				for _, e := range res.Errors {
					logWarning("%v", e)
					code = exitPartial
				}
				logSuccess(i18n.T("%s: %d bundle(s) created, %d extended"), lc, len(res.Created), len(res.Extended))
			}
			if code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&langs, "locale", "", "Target locales (comma-separated)")
	cmd.Flags().StringVar(&project, "project", "", "Project directory inside the workspace root")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing files")
	return cmd
}

// ---------------------------------------------------------------------------
// convert
// ---------------------------------------------------------------------------

func newConvertCmd() *cobra.Command {
	var (
		langs, project string
		dryRun         bool
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Re-encode bundles stored in the wrong charset",
		Long: `Find bundles whose bytes do not match the locale's charset (for example
UTF-8 content in an ISO-8859-1 French bundle) and rewrite them in the
locale's charset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			root, err := projectRoot(ws, project)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			codes, err := targetLanguages(ctx, ws, root, langs)
			if err != nil {
				return err
			}

			code := exitOK
			for _, lc := range codes {
				done, err := reconcile.ConvertUnreadable(ctx, root, lc, ws.Config.ScanOptions(), dryRun)
				for _, c := range done {
					logSuccess(i18n.T("Converted %s: %s → %s"), c.Path, c.From, c.To)
				}
				if err != nil {
					logError("%v", err)
					code = exitPartial
				}
			}
			if code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&langs, "locale", "", "Locales to check (comma-separated, default: all)")
	cmd.Flags().StringVar(&project, "project", "", "Project directory inside the workspace root")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing files")
	return cmd
}

// ---------------------------------------------------------------------------
// status
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var langs, project string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-locale translation statistics",
		Long: `Count translated, flagged and empty entries per locale. Does not modify
any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			root, err := projectRoot(ws, project)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			opts := ws.Config.ScanOptions()
			stats, err := reconcile.Status(ctx, root, splitLangs(langs), opts)
			if err != nil {
				return fatal(err)
			}
			printStatus(cmd, root, stats)
			return writeReport(stats)
		},
	}
	cmd.Flags().StringVar(&langs, "locale", "", "Locales to show (comma-separated, default: all found)")
	cmd.Flags().StringVar(&project, "project", "", "Project directory inside the workspace root")
	return cmd
}

func printStatus(cmd *cobra.Command, root string, stats []reconcile.LocaleStatus) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	bold.Fprintf(out, "\n%s\n", filepath.Base(root))
	fmt.Fprintln(out, strings.Repeat("─", 72))
	fmt.Fprintf(out, "  %-6s %-18s %8s %8s %8s %8s  %s\n",
		"", i18n.T("Language"), i18n.T("Bundles"), i18n.T("Entries"), i18n.T("Flagged"), i18n.T("Empty"), i18n.T("Progress"))
	for _, s := range stats {
		name := locale.Lookup(s.Locale).Name
		if !locale.Known(s.Locale) {
			name = "?"
		}
		fmt.Fprintf(out, "  %-6s %-18s %8d %8s %8s %8s  %s",
			s.Locale, name, s.Bundles,
			humanize.Comma(int64(s.Total)), humanize.Comma(int64(s.NeedsTranslation)), humanize.Comma(int64(s.Missing)),
			progressBar(int(s.Percent()), 20))
		if s.Unreadable > 0 {
			fmt.Fprintf(out, "  %s", color.RedString(i18n.T("%d unreadable"), s.Unreadable))
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out)
}

// ---------------------------------------------------------------------------
// quota
// ---------------------------------------------------------------------------

func newQuotaCmd() *cobra.Command {
	var pf providerFlags
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show provider character usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			prov, err := resolveProvider(ws.Config, pf)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			usage, err := prov.Usage(ctx)
			switch {
			case errors.Is(err, translate.ErrUsageUnsupported):
				logWarning(i18n.T("%s does not report usage"), prov.Name())
				return nil
			case err != nil:
				return fatal(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s / %s %s", prov.Name(),
				humanize.Comma(usage.Characters), humanize.Comma(usage.Limit), i18n.T("characters"))
			if rem := usage.Remaining(); rem >= 0 {
				pct := 0
				if usage.Limit > 0 {
					pct = int(usage.Characters * 100 / usage.Limit)
				}
				fmt.Fprintf(out, " (%s %s)  %s", humanize.Comma(rem), i18n.T("left"), progressBar(pct, 20))
			}
			fmt.Fprintln(out)
			return writeReport(usage)
		},
	}
	pf.register(cmd.Flags())
	return cmd
}
