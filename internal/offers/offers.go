// Package offers holds the fixed catalog of data bundles shown in the table.
package offers

import (
	"math"
	"strconv"
	"strings"

	"github.com/0gfoundation/0g-data-redeem/internal/pricing"
)

// MBPerGB is the conversion used for both presets and custom amounts.
const MBPerGB = 1000

// Offer is a selectable data volume.
type Offer struct {
	Label    string  `json:"label"`
	AmountMB float64 `json:"amount_mb"`
}

// Row pairs an offer with its quote for table rendering.
type Row struct {
	Offer
	pricing.Quote
}

type Catalog struct {
	MBSteps   []int
	GBPresets []int
}

func DefaultMBSteps() []int {
	steps := make([]int, 0, 9)
	for mb := 100; mb <= 900; mb += 100 {
		steps = append(steps, mb)
	}
	return steps
}

func DefaultGBPresets() []int { return []int{1, 2, 5, 10} }

func DefaultCatalog() Catalog {
	return Catalog{MBSteps: DefaultMBSteps(), GBPresets: DefaultGBPresets()}
}

// All returns MB steps then GB presets, each in configured order.
func (c Catalog) All() []Offer {
	out := make([]Offer, 0, len(c.MBSteps)+len(c.GBPresets))
	for _, mb := range c.MBSteps {
		out = append(out, Offer{Label: strconv.Itoa(mb) + " MB", AmountMB: float64(mb)})
	}
	for _, gb := range c.GBPresets {
		out = append(out, Offer{Label: strconv.Itoa(gb) + " GB", AmountMB: float64(gb * MBPerGB)})
	}
	return out
}

// Filter keeps offers whose label contains query, ignoring case.
// Surrounding whitespace in query is ignored; an empty query keeps everything.
func (c Catalog) Filter(query string) []Offer {
	all := c.All()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all
	}
	out := all[:0]
	for _, o := range all {
		if strings.Contains(strings.ToLower(o.Label), q) {
			out = append(out, o)
		}
	}
	return out
}

func (c Catalog) Rows(engine pricing.Engine, query string) []Row {
	filtered := c.Filter(query)
	rows := make([]Row, 0, len(filtered))
	for _, o := range filtered {
		rows = append(rows, Row{Offer: o, Quote: engine.Quote(o.AmountMB)})
	}
	return rows
}

// LabelFor names amountMB the way the table does when it is a catalog
// entry, and as "<n> MB" otherwise.
func (c Catalog) LabelFor(amountMB float64) string {
	for _, o := range c.All() {
		if o.AmountMB == amountMB {
			return o.Label
		}
	}
	return strconv.FormatFloat(amountMB, 'f', -1, 64) + " MB"
}

// ParseLabel reads an "<n> MB" or "<n> GB" label back into megabytes.
func ParseLabel(label string) (float64, bool) {
	fields := strings.Fields(label)
	if len(fields) != 2 {
		return 0, false
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	switch strings.ToUpper(fields[1]) {
	case "MB":
		return n, true
	case "GB":
		return n * MBPerGB, true
	}
	return 0, false
}
