package wallet

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// UnknownDate is rendered for missing or malformed timestamps.
const UnknownDate = "Unknown date"

// AmountPlaces is the number of fractional digits used for transaction amounts.
const AmountPlaces = 6

// BalancePlaces is the number of fractional digits used for balances.
const BalancePlaces = 2

// FormatAmount renders a transaction amount with six fractional digits
// and no grouping, e.g. "-2.500000".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}

// FormatSignedAmount is FormatAmount with an explicit "+" on inflows.
func FormatSignedAmount(d decimal.Decimal) string {
	s := FormatAmount(d)
	if d.Round(AmountPlaces).IsPositive() {
		return "+" + s
	}
	return s
}

type dateLayouts struct {
	long  string
	short string
}

var (
	usLayouts    = dateLayouts{long: "January 2, 2006 at 3:04 PM", short: "Jan 2, 2006"}
	intlLayouts  = dateLayouts{long: "2 January 2006 at 15:04", short: "2 Jan 2006"}
	isoLayouts   = dateLayouts{long: "2006-01-02 15:04", short: "2006-01-02"}
	englishBase  = language.MustParseBase("en")
	unitedStates = language.MustParseRegion("US")
)

// Formatter renders balances and dates for one locale. It holds only
// immutable configuration, so the same input always yields the same output.
type Formatter struct {
	tag      language.Tag
	layouts  dateLayouts
	symbols  numberSymbols
	location *time.Location
	logger   *slog.Logger
}

// NewFormatter creates a Formatter for a BCP 47 locale such as "en-US".
// Unparseable locales fall back to American English; a nil location means UTC.
func NewFormatter(locale string, location *time.Location, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if location == nil {
		location = time.UTC
	}
	tag, err := language.Parse(locale)
	if err != nil {
		logger.Warn("invalid locale, falling back to en-US", "locale", locale, "error", err)
		tag = language.AmericanEnglish
	}
	return &Formatter{
		tag:      tag,
		layouts:  layoutsFor(tag),
		symbols:  symbolsFor(tag),
		location: location,
		logger:   logger,
	}
}

func layoutsFor(tag language.Tag) dateLayouts {
	base, _ := tag.Base()
	if base != englishBase {
		return isoLayouts
	}
	region, _ := tag.Region()
	if region == unitedStates {
		return usLayouts
	}
	return intlLayouts
}

// Locale returns the locale tag in use.
func (f *Formatter) Locale() string {
	return f.tag.String()
}

// Balance renders a balance in the short, locale-aware form with
// grouping and two fractional digits, e.g. "1,234.50" for en-US.
func (f *Formatter) Balance(d decimal.Decimal) string {
	rounded := d.Round(BalancePlaces)
	intPart, frac, _ := strings.Cut(rounded.Abs().StringFixed(BalancePlaces), ".")

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(f.symbols.group)
		}
		b.WriteRune(r)
	}
	b.WriteString(f.symbols.decimal)
	b.WriteString(frac)
	return b.String()
}

// numberSymbols are a locale's digit grouping and decimal separators.
type numberSymbols struct {
	group   string
	decimal string
}

// symbolsFor reads the separators off the locale's rendering of 1234.5.
func symbolsFor(tag language.Tag) numberSymbols {
	sample := message.NewPrinter(tag).Sprint(number.Decimal(1234.5, number.Scale(1)))
	one := strings.IndexRune(sample, '1')
	two := strings.IndexRune(sample, '2')
	four := strings.IndexRune(sample, '4')
	five := strings.IndexRune(sample, '5')
	if one < 0 || two < one || four < two || five < four {
		return numberSymbols{group: ",", decimal: "."}
	}
	return numberSymbols{group: sample[one+1 : two], decimal: sample[four+1 : five]}
}

// LongDate renders an ISO 8601 timestamp for detail views.
func (f *Formatter) LongDate(iso string) string {
	return f.formatISO(iso, f.layouts.long)
}

// ShortDate renders an ISO 8601 timestamp for list rows.
func (f *Formatter) ShortDate(iso string) string {
	return f.formatISO(iso, f.layouts.short)
}

// LongTime is LongDate for an already parsed time.
func (f *Formatter) LongTime(t time.Time) string {
	return f.formatTime(t, f.layouts.long)
}

// ShortTime is ShortDate for an already parsed time.
func (f *Formatter) ShortTime(t time.Time) string {
	return f.formatTime(t, f.layouts.short)
}

func (f *Formatter) formatISO(iso, layout string) string {
	t, err := parseTimestamp(iso)
	if err != nil {
		f.logger.Warn("cannot format date", "value", iso, "error", err)
		return UnknownDate
	}
	return f.formatTime(t, layout)
}

func (f *Formatter) formatTime(t time.Time, layout string) string {
	if t.IsZero() {
		return UnknownDate
	}
	return t.In(f.location).Format(layout)
}
