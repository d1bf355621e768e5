package reconcile

import (
	"context"

	"github.com/minios-linux/bundlekit/detect"
	"github.com/minios-linux/bundlekit/scan"
)

// LocaleStatus summarises the bundles of one locale.
type LocaleStatus struct {
	detect.Counts `yaml:",inline"`

	Locale     string `yaml:"locale"`
	Bundles    int    `yaml:"bundles"`
	Unreadable int    `yaml:"unreadable"`
}

// Percent returns the share of translated entries.
func (s LocaleStatus) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Translated) / float64(s.Total) * 100
}

// Status counts translated, flagged and missing entries per locale. With
// no codes given, every locale found under root is reported.
func Status(ctx context.Context, root string, codes []string, opts scan.Options) ([]LocaleStatus, error) {
	opts.Reference = ""
	if len(codes) == 0 {
		found, err := scan.Locales(ctx, root, opts)
		if err != nil {
			return nil, err
		}
		codes = found
	}

	out := make([]LocaleStatus, 0, len(codes))
	for _, code := range codes {
		res, err := scan.Scan(ctx, root, code, opts)
		if err != nil {
			return nil, err
		}
		st := LocaleStatus{Locale: code, Bundles: len(res.Bundles), Unreadable: len(res.Unreadable)}
		for _, b := range res.Bundles {
			c := detect.Count(b.File, b.Locale)
			st.Total += c.Total
			st.Translated += c.Translated
			st.NeedsTranslation += c.NeedsTranslation
			st.Missing += c.Missing
		}
		out = append(out, st)
	}
	return out, nil
}
