package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// TableFormatter renders exported changes as markdown tables, one per
// source block.
type TableFormatter struct {
	// MaxWidth is the maximum width for a column
	MaxWidth int
	// TruncateString is the string to append when truncating
	TruncateString string
}

// NewTableFormatter creates a table formatter with default settings.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{
		MaxWidth:       50,
		TruncateString: "...",
	}
}

// FormatExports renders every block's exported changes, resolving IDs back
// to raw values through the context's interner.
func (tf *TableFormatter) FormatExports(ctx *Context, exports Exports) string {
	if len(exports) == 0 {
		return "_No exports_"
	}

	names := make(map[int]string, len(ctx.Blocks))
	for _, b := range ctx.Blocks {
		names[b.ID] = b.Name
	}

	ids := make([]int, 0, len(exports))
	for id := range exports {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out strings.Builder
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = fmt.Sprintf("block-%d", id)
		}
		fmt.Fprintf(&out, "**%s**\n\n%s\n", name, tf.formatChanges(ctx, exports[id]))
	}
	return out.String()
}

func (tf *TableFormatter) formatChanges(ctx *Context, changes []fixpoint.Change) string {
	if len(changes) == 0 {
		return "_No rows_"
	}

	tableString := &strings.Builder{}

	headers := []string{"e", "a", "v", "round", "count"}
	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(tableString,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)

	for _, c := range changes {
		table.Append([]string{
			tf.cell(ctx.Interner.Reverse(c.E)),
			tf.cell(ctx.Interner.Reverse(c.A)),
			tf.cell(ctx.Interner.Reverse(c.V)),
			fmt.Sprintf("%d", c.Round),
			fmt.Sprintf("%+d", c.Count),
		})
	}
	table.Render()
	return tableString.String()
}

func (tf *TableFormatter) cell(v fixpoint.Value) string {
	s := fmt.Sprintf("%v", v)
	if tf.MaxWidth > 0 && len(s) > tf.MaxWidth {
		s = s[:tf.MaxWidth-len(tf.TruncateString)] + tf.TruncateString
	}
	return s
}
