package maintenance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATOR - completion counts per technician or client
// =============================================================================

// GroupKey selects the MergedRow field summaries are grouped by.
type GroupKey string

const (
	ByTechnician GroupKey = "technician"
	ByClient     GroupKey = "client"
)

// ParseGroupKey accepts the canonical names and the Portuguese labels
// (colaborador, cliente).
func ParseGroupKey(s string) (GroupKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "technician", "colaborador", "tecnico":
		return ByTechnician, nil
	case "client", "cliente":
		return ByClient, nil
	}
	return "", fmt.Errorf("unknown group key %q", s)
}

// Value extracts the grouping value from row.
func (k GroupKey) Value(row MergedRow) string {
	if k == ByClient {
		return row.Client
	}
	return row.Technician
}

// Other is the key used for drill-down: technicians break down by client
// and clients by technician.
func (k GroupKey) Other() GroupKey {
	if k == ByClient {
		return ByTechnician
	}
	return ByClient
}

// GroupSummary is one line of a summary. Pending is Total - Completed.
type GroupSummary struct {
	Value     string          `json:"value"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Pending   int             `json:"pending"`
	Percent   decimal.Decimal `json:"percent"`
}

// Summary groups merged rows by key.
type Summary struct {
	Key    GroupKey       `json:"key"`
	Groups []GroupSummary `json:"groups"`
	Totals GroupSummary   `json:"totals"`
}

var hundred = decimal.NewFromInt(100)

// Percent returns completed/total*100 rounded to two places; zero when
// total is zero.
func Percent(completed, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(completed)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}

// Summarize counts rows per distinct key value, sorted by value. Every row
// is counted once; the row-level predicate decides completion.
func Summarize(rows []MergedRow, isCompleted func(MergedRow) bool, key GroupKey) Summary {
	byValue := make(map[string]*GroupSummary)
	totals := GroupSummary{}

	for _, r := range rows {
		v := key.Value(r)
		g, ok := byValue[v]
		if !ok {
			g = &GroupSummary{Value: v}
			byValue[v] = g
		}
		g.Total++
		totals.Total++
		if isCompleted(r) {
			g.Completed++
			totals.Completed++
		}
	}

	groups := make([]GroupSummary, 0, len(byValue))
	for _, g := range byValue {
		g.Pending = g.Total - g.Completed
		g.Percent = Percent(g.Completed, g.Total)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Value < groups[j].Value })

	totals.Pending = totals.Total - totals.Completed
	totals.Percent = Percent(totals.Completed, totals.Total)

	return Summary{Key: key, Groups: groups, Totals: totals}
}

// RowCompleted is the predicate for rows already decorated by MarkCompletion.
func RowCompleted(r MergedRow) bool { return r.Completed }

// CountDistinct returns how many distinct non-blank values key takes.
func CountDistinct(rows []MergedRow, key GroupKey) int {
	seen := make(map[string]struct{})
	for _, r := range rows {
		if v := strings.TrimSpace(key.Value(r)); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}
