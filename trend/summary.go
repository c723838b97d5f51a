package trend

import (
	"fmt"
	"sort"
	"strings"
)

// maxSummaryTopics bounds how many topics a summary lists.
const maxSummaryTopics = 30

// Summarize renders a compact text digest of the count matrix, suited
// for seeding a chat context over completed results. Topics are listed
// by total frequency descending.
func Summarize(result *Result) string {
	if result == nil || result.Matrix == nil {
		return "No analysis results available."
	}

	matrix := result.Matrix
	dates := matrix.Dates()

	type topicTotal struct {
		name  string
		total int
	}
	totals := make([]topicTotal, 0, len(matrix.Topics))
	for _, name := range matrix.Topics {
		totals = append(totals, topicTotal{name, matrix.TopicTotal(name)})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].total != totals[j].total {
			return totals[i].total > totals[j].total
		}
		return totals[i].name < totals[j].name
	})

	var sb strings.Builder
	if len(dates) > 0 {
		fmt.Fprintf(&sb, "Analysis period: %s to %s (%d days with mentions).\n",
			dates[0], dates[len(dates)-1], len(dates))
	}
	fmt.Fprintf(&sb, "Total topic mentions: %d across %d canonical topics.\n\n",
		matrix.Total(), len(matrix.Topics))

	sb.WriteString("Topics by mention count:\n")
	for i, tt := range totals {
		if i >= maxSummaryTopics {
			fmt.Fprintf(&sb, "... and %d more topics\n", len(totals)-maxSummaryTopics)
			break
		}
		fmt.Fprintf(&sb, "- %s: %d\n", tt.name, tt.total)
	}

	if len(result.Unmapped) > 0 {
		fmt.Fprintf(&sb, "\nUnmapped labels needing review: %d\n", len(result.Unmapped))
	}
	return sb.String()
}
