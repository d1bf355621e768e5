// Command bundlekit reconciles multi-locale .properties bundles and basedata
// CSV files, filling untranslated entries through a machine translation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/bundlekit/config"
	"github.com/minios-linux/bundlekit/i18n"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/reconcile"
	"github.com/minios-linux/bundlekit/settings"
	"github.com/minios-linux/bundlekit/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

var (
	tagInfo    = color.New(color.FgBlue).SprintFunc()
	tagSuccess = color.New(color.FgGreen).SprintFunc()
	tagWarning = color.New(color.FgYellow, color.Bold).SprintFunc()
	tagError   = color.New(color.FgRed).SprintFunc()
)

// logOut receives all CLI log lines.
var logOut io.Writer = color.Error

func logInfo(format string, args ...any) {
	fmt.Fprintf(logOut, tagInfo("[INFO]")+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(logOut, tagSuccess("[OK]")+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(logOut, tagWarning("[WARN]")+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(logOut, tagError("[ERROR]")+" "+format+"\n", args...)
}

func logDebug(format string, args ...any) {
	if verbose {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir    string
	verbose    bool
	reportPath string
)

// ---------------------------------------------------------------------------
// Exit codes
// ---------------------------------------------------------------------------

// Exit codes: 0 success, 1 partial failure, 2 fatal configuration error.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

// exitError carries the process exit code out of a command. A nil err means
// the problem was already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func fatal(err error) error {
	return &exitError{code: exitFatal, err: err}
}

// exitCode maps a command error to a process exit code. Errors without a
// code are usage or configuration errors.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFatal
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bundlekit",
		Short: "Reconcile multi-locale resource bundles and basedata files",
		Long: `bundlekit — reconciles multi-locale .properties bundles and basedata CSV files.

Entries waiting for translation carry a locale marker such as " (FR)".
bundlekit finds them, translates them in batches through DeepL or Google
and writes the results back in each locale's charset.

Commands:
  reconcile           Translate flagged bundle entries for one or more locales
  merge-basedata      Merge a translation list into basedata CSV files
  prepare             Create locale bundles from the reference bundles
  import / export     Exchange flagged entries as key<TAB>text wordlists
  translate-wordlist  Translate a plain list of lines
  convert             Re-encode bundles stored in the wrong charset
  status              Show per-locale translation statistics
  quota               Show provider character usage
  auth                Manage provider API keys`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Workspace root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable detailed logging")
	root.PersistentFlags().StringVar(&reportPath, "report", "", "Write the run report as YAML to this file")

	root.AddCommand(
		newReconcileCmd(),
		newMergeBasedataCmd(),
		newPrepareCmd(),
		newImportCmd(),
		newExportCmd(),
		newTranslateWordlistCmd(),
		newConvertCmd(),
		newStatusCmd(),
		newQuotaCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	i18n.Init("")
	err := newRootCmd().Execute()
	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		logError("%v", err)
	}
	os.Exit(exitCode(err))
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bundlekit version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// openWorkspace loads the workspace at --root. Failures are fatal.
func openWorkspace() (*config.Workspace, error) {
	ws, err := config.Open(rootDir)
	if err != nil {
		return nil, fatal(err)
	}
	logDebug("workspace %s", ws.Root)
	return ws, nil
}

// projectRoot returns the directory scanned for bundles: the project
// directory when one is named, the workspace root otherwise.
func projectRoot(ws *config.Workspace, project string) (string, error) {
	if project == "" {
		return ws.Root, nil
	}
	p, err := ws.Project(project)
	if err != nil {
		return "", fatal(err)
	}
	return p.Dir, nil
}

// targetLanguages returns the --locale codes or, when none are given, the
// configured or detected locales under dir.
func targetLanguages(ctx context.Context, ws *config.Workspace, dir, flag string) ([]string, error) {
	if codes := splitLangs(flag); len(codes) > 0 {
		return codes, nil
	}
	codes, err := ws.Languages(ctx, dir)
	if err != nil {
		return nil, fatal(err)
	}
	if len(codes) == 0 {
		return nil, fatal(errors.New(i18n.T("no target locale; use --locale")))
	}
	return codes, nil
}

// signalContext is cancelled on SIGINT or SIGTERM. The running batch is
// allowed to finish; later batches are skipped.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logWarning(i18n.T("Interrupted, finishing the current batch..."))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// ---------------------------------------------------------------------------
// Provider selection
// ---------------------------------------------------------------------------

// providerFlags override the provider section of .bundlekit.yaml.
type providerFlags struct {
	name           string
	apiKey         string
	baseURL        string
	proxy          string
	timeout        time.Duration
	maxRetries     int
	packageSize    int
	characterLimit int
}

func (p *providerFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&p.name, "provider", "", "Translation provider: deepl, google")
	fs.StringVar(&p.apiKey, "api-key", "", "API key (or BUNDLEKIT_API_KEY / DEEPL_AUTH_KEY env var)")
	fs.StringVar(&p.baseURL, "base-url", "", "Custom API base URL")
	fs.StringVar(&p.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	fs.DurationVar(&p.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	fs.IntVar(&p.maxRetries, "max-retries", 0, "Retries on rate limit, server and network errors")
	fs.IntVar(&p.packageSize, "package-size", 0, "Maximum entries per request")
	fs.IntVar(&p.characterLimit, "character-limit", 0, "Maximum characters per request")
}

// apply writes the flags that were set into cfg.
func (p *providerFlags) apply(cfg *config.File) {
	if p.name != "" {
		cfg.Provider.Name = p.name
	}
	if p.baseURL != "" {
		cfg.Provider.BaseURL = p.baseURL
	}
	if p.proxy != "" {
		cfg.Provider.Proxy = p.proxy
	}
	if p.timeout > 0 {
		cfg.Provider.Timeout = p.timeout
	}
	if p.maxRetries > 0 {
		cfg.Provider.MaxRetries = p.maxRetries
	}
	if p.packageSize > 0 {
		cfg.Provider.PackageSize = p.packageSize
	}
	if p.characterLimit > 0 {
		cfg.Provider.CharacterLimit = p.characterLimit
	}
}

// resolveProvider builds the provider from config, flags, environment and
// the credential store.
func resolveProvider(cfg *config.File, pf providerFlags) (translate.Provider, error) {
	pf.apply(cfg)
	id := cfg.Provider.Name
	key := settings.ResolveAPIKey(id, pf.apiKey, cfg.Provider.Key())
	tc := cfg.TranslateConfig(key, verbose)
	if tc.BaseURL == "" {
		tc.BaseURL = settings.GetBaseURL(id)
	}
	prov, err := translate.New(tc)
	switch {
	case errors.Is(err, translate.ErrMissingKey):
		return nil, fatal(fmt.Errorf("%w\n  %s", err,
			fmt.Sprintf(i18n.T("Run 'bundlekit auth set %s' or set DEEPL_AUTH_KEY"), id)))
	case err != nil:
		return nil, fatal(err)
	}
	logInfo(i18n.T("Provider: %s"), prov.Name())
	return prov, nil
}

// ---------------------------------------------------------------------------
// Interaction
// ---------------------------------------------------------------------------

// isInteractive reports whether stdin is a terminal.
func isInteractive() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// confirmQuota asks whether to continue when the provider quota looks
// insufficient. Without a terminal the run is aborted unless yes is set.
func confirmQuota(yes bool) func(reconcile.QuotaDecision) bool {
	return func(d reconcile.QuotaDecision) bool {
		logWarning(i18n.T("Quota may be insufficient: %s"), d)
		if yes {
			return true
		}
		if !isInteractive() {
			logWarning(i18n.T("Not a terminal; use --yes to continue anyway"))
			return false
		}
		prompt := promptui.Prompt{
			Label:     i18n.T("Continue anyway"),
			IsConfirm: true,
		}
		_, err := prompt.Run()
		return err == nil
	}
}

// newProgress returns a progress callback drawing a bar on stderr and a
// function that completes the bar.
func newProgress(desc string) (func(done, total int), func()) {
	var bar *progressbar.ProgressBar
	update := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", desc)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}))
		}
		_ = bar.Set(done)
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
	}
	return update, finish
}

// writeReport writes v as YAML to --report when set.
func writeReport(v any) error {
	if reportPath == "" {
		return nil
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(reportPath, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	logInfo(i18n.T("Report written to %s"), reportPath)
	return nil
}

// ---------------------------------------------------------------------------
// Small helpers
// ---------------------------------------------------------------------------

// fileExists reports whether path is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// splitLangs parses a comma-separated locale list into normalised codes.
func splitLangs(s string) []string {
	codes := lo.FilterMap(strings.Split(s, ","), func(c string, _ int) (string, bool) {
		c = locale.Normalize(c)
		return c, c != ""
	})
	return lo.Uniq(codes)
}

// intersectLanguages keeps the codes of filter present in available, in
// filter order.
func intersectLanguages(available, filter []string) []string {
	set := lo.SliceToMap(available, func(l string) (string, bool) { return l, true })
	var out []string
	for _, f := range filter {
		f = strings.TrimSpace(f)
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}

// filterOutLang removes every occurrence of lang.
func filterOutLang(langs []string, lang string) []string {
	return lo.Reject(langs, func(l string, _ int) bool { return l == lang })
}

// progressBar renders a coloured fixed-width bar followed by the percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	c := color.New(color.FgRed)
	switch {
	case percent >= 100:
		c = color.New(color.FgGreen)
	case percent >= 50:
		c = color.New(color.FgYellow)
	}
	return c.Sprint(bar) + fmt.Sprintf(" %3d%%", percent)
}
