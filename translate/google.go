package translate

import (
	"context"
	"strings"

	"github.com/bregydoc/gtranslate"

	"github.com/minios-linux/bundlekit/locale"
)

// Google translates through the free Google Translate web backend, one
// text per request. It has no quota endpoint.
type Google struct {
	cfg Config
	// translate is swapped in tests.
	translate func(text, from, to string) (string, error)
}

// NewGoogle returns a Google provider.
func NewGoogle(cfg Config) *Google {
	if cfg.Name == "" {
		cfg.Name = "Google Translate"
	}
	return &Google{cfg: cfg, translate: gtranslateText}
}

func gtranslateText(text, from, to string) (string, error) {
	return gtranslate.TranslateWithParams(text, gtranslate.TranslationParams{
		From: from,
		To:   to,
	})
}

// Name implements Provider.
func (g *Google) Name() string { return g.cfg.Name }

// Translate implements Provider. The context is checked between texts; a
// single request cannot be interrupted.
func (g *Google) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	from := AutoDetect
	if source != "" && !strings.EqualFold(source, AutoDetect) {
		from = locale.Normalize(source)
	}
	to := locale.Normalize(target)

	out := make([]string, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(t) == "" {
			out[i] = t
			continue
		}
		res, err := g.translate(t, from, to)
		if err != nil {
			return nil, &ProviderError{Provider: g.Name(), Err: err}
		}
		out[i] = CleanOutput(res)
	}
	return out, nil
}

// Usage implements Provider.
func (g *Google) Usage(context.Context) (Usage, error) {
	return Usage{}, ErrUsageUnsupported
}
