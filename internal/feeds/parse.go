package feeds

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/net/html"
)

// UntitledTitle is used when no usable text node exists in a title.
const UntitledTitle = "Untitled"

// ExtractTitle returns the first non-empty text node of a title that may carry
// nested markup (e.g. `<span><b>Headline</b></span>`), or UntitledTitle.
func ExtractTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UntitledTitle
	}
	if !strings.Contains(raw, "<") {
		return collapse(html.UnescapeString(raw))
	}

	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return UntitledTitle
		case html.TextToken:
			if text := collapse(string(z.Text())); text != "" {
				return text
			}
		}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// vendorLayouts cover the "Mon D, YYYY H:MMam/pm" family some publishers emit.
// Input is uppercased before matching so "pm" and "PM" both parse; month
// names match case-insensitively.
var vendorLayouts = []string{
	"Jan 2, 2006 3:04PM",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04PM",
	"January 2, 2006 3:04 PM",
	"Jan. 2, 2006 3:04PM",
}

// ParseDate accepts the vendor format and ISO-ish or RFC-style strings. It
// returns nil instead of an error so an odd date never fails a fetch.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	upper := strings.ToUpper(s)
	for _, layout := range vendorLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			t = t.UTC()
			return &t
		}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
