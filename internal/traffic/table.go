package traffic

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// RenderTable renders a summary as a plain-text group table for callers
// that want something readable instead of JSON.
func RenderTable(s Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nframes=%d sent=%d received=%d duration_ms=%.0f\n",
		s.URL, s.TotalFrames, s.Sent, s.Received, s.DurationMS)

	t := tablewriter.NewWriter(&sb)
	t.SetHeader([]string{"Group", "Dir", "Fingerprint", "Bucket", "Count", "Size", "Hint", "Samples"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)

	for _, g := range s.Groups {
		size := fmt.Sprintf("%d", g.MinSize)
		if g.MaxSize != g.MinSize {
			size = fmt.Sprintf("%d-%d", g.MinSize, g.MaxSize)
		}
		t.Append([]string{
			g.ID,
			string(g.Direction),
			g.Fingerprint,
			g.SizeBucket,
			fmt.Sprintf("%d", g.Count),
			size,
			g.Hint,
			joinInts(g.Samples),
		})
	}
	t.Render()
	return sb.String()
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}
