package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/minios-linux/bundlekit/basedata"
	"github.com/minios-linux/bundlekit/i18n"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/reconcile"
	"github.com/minios-linux/bundlekit/wordlist"
)

// ---------------------------------------------------------------------------
// merge-basedata
// ---------------------------------------------------------------------------

// basedataSummary is the --report entry for one project.
type basedataSummary struct {
	Project   string   `yaml:"project"`
	Files     int      `yaml:"files"`
	Changed   []string `yaml:"changed,omitempty"`
	Applied   int      `yaml:"applied"`
	Total     int      `yaml:"total"`
	Unapplied []string `yaml:"unapplied,omitempty"`
	Errors    []string `yaml:"errors,omitempty"`
}

func newMergeBasedataCmd() *cobra.Command {
	var (
		translations, lang, project, cs string
		includeProduct, dryRun          bool
	)
	cmd := &cobra.Command{
		Use:   "merge-basedata",
		Short: "Merge a translation list into basedata CSV files",
		Long: `Read key<SEP>text lines and insert a key<SEP>locale<SEP>text line after
the last line of each key's block in the project's basedata files. An
existing line for the same locale is replaced. Files are only rewritten
when their content changes.`,
		Example: `  bundlekit merge-basedata --translations fr.txt --locale fr --project acme
  bundlekit merge-basedata --translations fr.txt --locale fr --project acme --include-product`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMergeBasedata(translations, cs, lang, project, includeProduct, dryRun)
		},
	}
	cmd.Flags().StringVar(&translations, "translations", "", "Translation list (key<SEP>text per line)")
	cmd.Flags().StringVar(&cs, "charset", "", "Charset of the translation list (default: the basedata charset)")
	cmd.Flags().StringVar(&lang, "locale", "", "Target locale")
	cmd.Flags().StringVar(&project, "project", "", "Project directory inside the workspace root")
	cmd.Flags().BoolVar(&includeProduct, "include-product", false, "Also merge into the product basedata")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing files")
	_ = cmd.MarkFlagRequired("translations")
	_ = cmd.MarkFlagRequired("locale")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runMergeBasedata(translations, cs, lang, project string, includeProduct, dryRun bool) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	cfg := ws.Config
	code := locale.Normalize(lang)
	if code == "" {
		return fatal(errors.New(i18n.T("no target locale; use --locale")))
	}
	if cs == "" {
		cs = cfg.Basedata.Charset
	}
	list, err := wordlist.ReadFile(translations, cfg.Separator(), cs)
	if err != nil {
		return fatal(err)
	}
	logInfo(i18n.T("Loaded %d translation(s) from %s"), list.Len(), translations)

	projects := []string{project}
	if includeProduct && project != cfg.Basedata.Product {
		projects = append(projects, cfg.Basedata.Product)
	}

	exit := exitOK
	var summaries []basedataSummary
	for _, name := range projects {
		p, err := ws.Project(name)
		if err != nil {
			return fatal(err)
		}
		if p.ModuleDir == "" {
			return fatal(fmt.Errorf(i18n.T("project %s has no module matching %q"), name, cfg.Basedata.ModuleGlob))
		}
		files := cfg.Basedata.Layout.Files(p.ModuleDir, p.Product)
		if len(files) == 0 {
			logWarning(i18n.T("%s: no basedata files found"), name)
			continue
		}

		rep := basedata.MergeFiles(files, list.Map(), code, basedata.Options{
			Separator: cfg.Separator(),
			Charset:   cfg.Basedata.Charset,
			DryRun:    dryRun,
			OnLog:     logDebug,
		})
		sum := basedataSummary{Project: name, Files: len(files), Applied: rep.Applied(), Total: rep.Total, Unapplied: rep.Unapplied}
		for _, f := range rep.Files {
			if f.Changed {
				sum.Changed = append(sum.Changed, f.Path)
			}
			if f.Err != nil {
				sum.Errors = append(sum.Errors, f.Err.Error())
				logError("%v", f.Err)
				exit = exitPartial
			}
		}
		summaries = append(summaries, sum)

		logSuccess(i18n.T("%s: %d of %d translation(s) applied, %d file(s) changed"),
			name, sum.Applied, sum.Total, rep.Changed())
		if n := len(rep.Unapplied); n > 0 {
			logWarning(i18n.N("%s: %d key was not found", "%s: %d keys were not found", n), name, n)
			for _, k := range rep.Unapplied {
				logDebug("not found: %s", k)
			}
		}
	}

	if err := writeReport(summaries); err != nil {
		logError("%v", err)
		exit = max(exit, exitPartial)
	}
	if exit != exitOK {
		return &exitError{code: exit}
	}
	return nil
}

// ---------------------------------------------------------------------------
// import / export
// ---------------------------------------------------------------------------

func newImportCmd() *cobra.Command {
	var (
		translations, lang, project, cs string
		dryRun                          bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Write a module.key<TAB>text wordlist into the bundles",
		Long: `Each key is <module>.<propertyKey>; the module selects the bundle
<project>/<module>/properties/messages_<locale>.properties. Missing keys are
appended, missing bundles are created and unknown modules are reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			root, err := projectRoot(ws, project)
			if err != nil {
				return err
			}
			code := locale.Normalize(lang)
			if code == "" {
				return fatal(errors.New(i18n.T("no target locale; use --locale")))
			}
			if cs == "" {
				cs = locale.Lookup(code).Charset
			}
			list, err := wordlist.ReadTSVFile(translations, cs)
			if err != nil {
				return fatal(err)
			}

			res, err := reconcile.ImportWordlist(root, code, list, reconcile.ExchangeOptions{
				Scan:      ws.Config.ScanOptions(),
				BundleDir: ws.Config.Bundles.Dir,
				DryRun:    dryRun,
				OnLog:     logDebug,
			})
			if err != nil {
				return fatal(err)
			}
			for _, p := range res.Created {
				logInfo(i18n.T("Created %s"), p)
			}
			for _, k := range res.Unapplied {
				logWarning(i18n.T("No module for key %s"), k)
			}
			logSuccess(i18n.T("%d value(s) applied in %d file(s)"), res.Writer.Applied(), res.Writer.Written())
			if err := writeReport(res.Writer); err != nil {
				logError("%v", err)
			}
			if err := res.Err(); err != nil {
				logError("%v", err)
				return &exitError{code: exitPartial}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&translations, "translations", "", "Wordlist file (module.key<TAB>text)")
	cmd.Flags().StringVar(&cs, "charset", "", "Charset of the wordlist (default: the target locale's bundle charset)")
	cmd.Flags().StringVar(&lang, "locale", "", "Target locale")
	cmd.Flags().StringVar(&project, "project", "", "Project directory inside the workspace root")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing files")
	_ = cmd.MarkFlagRequired("translations")
	_ = cmd.MarkFlagRequired("locale")
	return cmd
}

func newExportCmd() *cobra.Command {
	var lang, project, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write flagged entries as a module.key<TAB>text wordlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			root, err := projectRoot(ws, project)
			if err != nil {
				return err
			}
			code := locale.Normalize(lang)
			if code == "" {
				return fatal(errors.New(i18n.T("no target locale; use --locale")))
			}
			ctx, stop := signalContext()
			defer stop()

			res, err := reconcile.ExportFlagged(ctx, root, code, reconcile.ExchangeOptions{
				Scan:      ws.Config.ScanOptions(),
				BundleDir: ws.Config.Bundles.Dir,
			})
			if err != nil {
				return fatal(err)
			}
			for _, p := range res.Skipped {
				logWarning(i18n.T("Skipped %s [%s]: %s"), p.Path, p.Key, p.Error)
			}

			w, closeFn, err := outputWriter(cmd, out)
			if err != nil {
				return err
			}
			if err := wordlist.WriteTSV(w, res.Pairs); err != nil {
				_ = closeFn()
				return fatal(err)
			}
			if err := closeFn(); err != nil {
				return fatal(err)
			}
			logSuccess(i18n.T("Exported %d entr(ies)"), len(res.Pairs))
			if len(res.Scan.Unreadable) > 0 || len(res.Skipped) > 0 {
				return &exitError{code: exitPartial}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "locale", "", "Locale whose flagged entries are exported")
	cmd.Flags().StringVar(&project, "project", "", "Project directory inside the workspace root")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file (- for stdout)")
	_ = cmd.MarkFlagRequired("locale")
	return cmd
}

// outputWriter opens path for writing, "-" or "" meaning stdout.
func outputWriter(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fatal(err)
	}
	return f, f.Close, nil
}

// ---------------------------------------------------------------------------
// translate-wordlist
// ---------------------------------------------------------------------------

func newTranslateWordlistCmd() *cobra.Command {
	var (
		in, source, target, sep string
		pf                      providerFlags
	)
	cmd := &cobra.Command{
		Use:   "translate-wordlist",
		Short: "Translate a plain list of lines",
		Long: `Translate every line of a text file and write line<SEP>translation pairs
to <name>_out.<ext> next to it. Lines that already contain the separator
are skipped.`,
		Example: `  bundlekit translate-wordlist --in terms.txt --source de --target fr`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if !fileExists(in) {
				return fatal(fmt.Errorf(i18n.T("input file %s not found"), in))
			}
			r := ws.Config.Separator()
			if sep != "" {
				if utf8.RuneCountInString(sep) != 1 {
					return fatal(errors.New(i18n.T("--separator must be a single character")))
				}
				r, _ = utf8.DecodeRuneInString(sep)
			}
			prov, err := resolveProvider(ws.Config, pf)
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			update, finish := newProgress(in)
			outPath, res, err := reconcile.TranslateWordlist(ctx, in, reconcile.WordlistOptions{
				Provider:   prov,
				Limits:     ws.Config.Limits(),
				Source:     source,
				Target:     locale.Normalize(target),
				Separator:  r,
				OnProgress: update,
				OnLog:      logDebug,
			})
			finish()
			if err != nil {
				return fatal(err)
			}
			logSuccess(i18n.T("Wrote %s: %s"), outPath, res.Summary())
			if err := res.Err(); err != nil {
				logError("%v", err)
				return &exitError{code: exitPartial}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Input file, one text per line")
	cmd.Flags().StringVar(&source, "source", "de", "Source language (\"auto\" to detect)")
	cmd.Flags().StringVar(&target, "target", "", "Target language")
	cmd.Flags().StringVar(&sep, "separator", "", "Output separator (default: basedata separator)")
	pf.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
