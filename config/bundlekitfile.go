package config

// When a .bundlekit.yaml file exists in the workspace root, bundlekit reads
// naming, layout and provider settings from it. Environment variables
// override the file; command-line flags override both.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/bundlekit/basedata"
	"github.com/minios-linux/bundlekit/batch"
	"github.com/minios-linux/bundlekit/locale"
	"github.com/minios-linux/bundlekit/scan"
	"github.com/minios-linux/bundlekit/translate"
	"github.com/minios-linux/bundlekit/wordlist"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .bundlekit.yaml structure.
type File struct {
	// Languages is the default list of target locales.
	Languages []string `yaml:"languages,omitempty"`
	// SourceLang is the language passed to the provider ("auto" detects).
	// Defaults to Reference.
	SourceLang string `yaml:"source_lang,omitempty"`
	// Reference is the locale bundles are prepared from (default "en").
	Reference string `yaml:"reference,omitempty"`

	Bundles  Bundles  `yaml:"bundles,omitempty"`
	Basedata Basedata `yaml:"basedata,omitempty"`
	Provider Provider `yaml:"provider,omitempty"`
}

// Bundles configures discovery of .properties bundles.
type Bundles struct {
	// Prefix and Suffix frame the locale code in file names.
	Prefix string `yaml:"prefix,omitempty"`
	Suffix string `yaml:"suffix,omitempty"`
	// Dir is the bundle subdirectory of a module (default "properties").
	Dir string `yaml:"dir,omitempty"`
	// Exclude lists directory names never scanned.
	Exclude []string `yaml:"exclude,omitempty"`
	// Workers bounds parallel directory walks.
	Workers int `yaml:"workers,omitempty"`
	// Strict rejects UTF-8 content in single-byte locale files.
	Strict bool `yaml:"strict,omitempty"`
	// MachineSuffix is appended to machine translations, e.g. " (T)".
	MachineSuffix string `yaml:"machine_suffix,omitempty"`
}

// Basedata configures basedata CSV merging.
type Basedata struct {
	basedata.Layout `yaml:",inline"`

	// Separator is the field separator, a single character (default "§").
	Separator string `yaml:"separator,omitempty"`
	// Charset is the encoding of basedata and translation files.
	Charset string `yaml:"charset,omitempty"`
	// Product is the name of the product project (default "product").
	Product string `yaml:"product,omitempty"`
	// ProductModule is the module directory of the product (default "ghs").
	ProductModule string `yaml:"product_module,omitempty"`
	// ModuleGlob finds the module directory of a customer project
	// (default "ghs_*").
	ModuleGlob string `yaml:"module_glob,omitempty"`
}

// Provider configures the translation backend.
type Provider struct {
	// Name is the provider id: "deepl" or "google".
	Name    string `yaml:"name,omitempty" env:"BUNDLEKIT_PROVIDER"`
	BaseURL string `yaml:"base_url,omitempty" env:"BUNDLEKIT_BASE_URL"`
	Proxy   string `yaml:"proxy,omitempty" env:"BUNDLEKIT_PROXY"`
	// Timeout is the per-request timeout, e.g. "60s".
	Timeout    time.Duration `yaml:"timeout,omitempty" env:"BUNDLEKIT_TIMEOUT"`
	MaxRetries int           `yaml:"max_retries,omitempty" env:"BUNDLEKIT_MAX_RETRIES"`
	// PackageSize and CharacterLimit are the batch ceilings.
	PackageSize    int `yaml:"package_size,omitempty" env:"BUNDLEKIT_PACKAGE_SIZE"`
	CharacterLimit int `yaml:"character_limit,omitempty" env:"BUNDLEKIT_CHARACTER_LIMIT"`

	// Keys never come from the file.
	APIKey   string `yaml:"-" env:"BUNDLEKIT_API_KEY"`
	DeepLKey string `yaml:"-" env:"DEEPL_AUTH_KEY"`
}

// Key returns the API key from the environment, "" when none is set.
func (p Provider) Key() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.Name == translate.ProviderDeepL {
		return p.DeepLKey
	}
	return ""
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".bundlekit.yaml"

// Default values.
const (
	DefaultReference     = "en"
	DefaultProduct       = "product"
	DefaultProductModule = "ghs"
	DefaultModuleGlob    = "ghs_*"
)

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

// Load reads .bundlekit.yaml from rootDir, applies environment overrides and
// defaults and validates the result. A missing file yields the defaults.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	f := &File{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	default:
		if err := decode(data, f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := env.Parse(f); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	f.applyDefaults()
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// decode rejects unknown keys so typos do not silently fall back to
// defaults.
func decode(data []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (f *File) applyDefaults() {
	if f.Reference == "" {
		f.Reference = DefaultReference
	}
	f.Reference = locale.Normalize(f.Reference)
	if f.SourceLang == "" {
		f.SourceLang = f.Reference
	}
	for i, l := range f.Languages {
		f.Languages[i] = locale.Normalize(l)
	}

	if f.Bundles.Prefix == "" {
		f.Bundles.Prefix = scan.DefaultPrefix
	}
	if f.Bundles.Suffix == "" {
		f.Bundles.Suffix = scan.DefaultSuffix
	}
	if f.Bundles.Dir == "" {
		f.Bundles.Dir = "properties"
	}
	if f.Bundles.Exclude == nil {
		f.Bundles.Exclude = append([]string(nil), scan.DefaultExclude...)
	}

	layout := basedata.DefaultLayout()
	b := &f.Basedata
	if b.Dir == "" {
		b.Dir = layout.Dir
	}
	if b.Prefix == "" {
		b.Prefix = layout.Prefix
	}
	if b.ProductSuffix == "" {
		b.ProductSuffix = layout.ProductSuffix
	}
	if b.ProjectSuffix == "" {
		b.ProjectSuffix = layout.ProjectSuffix
	}
	if len(b.Names) == 0 {
		b.Names = layout.Names
	}
	if b.Separator == "" {
		b.Separator = string(wordlist.DefaultSeparator)
	}
	if b.Charset == "" {
		b.Charset = locale.CharsetUTF8
	}
	if b.Product == "" {
		b.Product = DefaultProduct
	}
	if b.ProductModule == "" {
		b.ProductModule = DefaultProductModule
	}
	if b.ModuleGlob == "" {
		b.ModuleGlob = DefaultModuleGlob
	}

	p := &f.Provider
	if p.Name == "" {
		p.Name = translate.ProviderDeepL
	}
	if p.PackageSize == 0 {
		p.PackageSize = batch.DefaultPackageSize
	}
	if p.CharacterLimit == 0 {
		p.CharacterLimit = batch.DefaultCharacterLimit
	}
}

func (f *File) validate() error {
	if utf8.RuneCountInString(f.Basedata.Separator) != 1 {
		return fmt.Errorf("basedata separator %q must be a single character", f.Basedata.Separator)
	}
	if _, err := filepath.Match(f.Basedata.ModuleGlob, ""); err != nil {
		return fmt.Errorf("basedata module_glob %q: %w", f.Basedata.ModuleGlob, err)
	}
	if _, ok := translate.DefaultProviders()[f.Provider.Name]; !ok {
		return fmt.Errorf("%w: %q (valid: deepl, google)", translate.ErrUnknownProvider, f.Provider.Name)
	}
	if f.Provider.PackageSize < 0 || f.Provider.CharacterLimit < 0 {
		return errors.New("provider limits must not be negative")
	}
	for _, l := range f.Languages {
		if l == "" {
			return errors.New("languages contains an empty code")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversions to package options
// ---------------------------------------------------------------------------

// ScanOptions returns the bundle scan settings.
func (f *File) ScanOptions() scan.Options {
	return scan.Options{
		Prefix:    f.Bundles.Prefix,
		Suffix:    f.Bundles.Suffix,
		Exclude:   f.Bundles.Exclude,
		Workers:   f.Bundles.Workers,
		Strict:    f.Bundles.Strict,
		Reference: f.Reference,
	}
}

// Limits returns the batch ceilings.
func (f *File) Limits() batch.Limits {
	return batch.Limits{PackageSize: f.Provider.PackageSize, CharacterLimit: f.Provider.CharacterLimit}
}

// Separator returns the basedata separator rune.
func (f *File) Separator() rune {
	r, _ := utf8.DecodeRuneInString(f.Basedata.Separator)
	return r
}

// TranslateConfig returns the provider configuration with the given key.
func (f *File) TranslateConfig(apiKey string, verbose bool) translate.Config {
	return translate.Config{
		ID:         f.Provider.Name,
		BaseURL:    f.Provider.BaseURL,
		APIKey:     apiKey,
		Proxy:      f.Provider.Proxy,
		Timeout:    f.Provider.Timeout,
		MaxRetries: f.Provider.MaxRetries,
		Verbose:    verbose,
	}
}
