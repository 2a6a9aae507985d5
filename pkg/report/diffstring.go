package report

import (
	"github.com/Kong/gojsondiff"
	"github.com/Kong/gojsondiff/formatter"
)

// PayloadDiff renders a human-readable ascii diff between two event
// payloads, for an operator to read before acting on a conflict. Used by
// cmd/syncctl and by conflict reports; never consulted by the delta engine
// itself, which operates on decoded JSON trees directly.
func PayloadDiff(before, after map[string]any) (string, error) {
	differ := gojsondiff.New()
	d := differ.CompareObjects(before, after)
	if !d.Modified() {
		return "", nil
	}
	f := formatter.NewAsciiFormatter(before, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	})
	return f.Format(d)
}
