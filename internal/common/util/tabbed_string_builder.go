package util

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// TabbedStringBuilder builds tab-aligned text in memory. Writes to a strings.Builder can't fail,
// so unlike *tabwriter.Writer it has no error returns.
type TabbedStringBuilder struct {
	sb     *strings.Builder
	writer *tabwriter.Writer
}

// NewTabbedStringBuilder takes the same parameters as tabwriter.NewWriter.
func NewTabbedStringBuilder(minwidth, tabwidth, padding int, padchar byte, flags uint) *TabbedStringBuilder {
	sb := &strings.Builder{}
	return &TabbedStringBuilder{
		sb:     sb,
		writer: tabwriter.NewWriter(sb, minwidth, tabwidth, padding, padchar, flags),
	}
}

// Writef writes one formatted cell sequence; cells are separated by tabs.
func (t *TabbedStringBuilder) Writef(format string, a ...any) {
	_, _ = fmt.Fprintf(t.writer, format, a...)
}

// Row writes cells followed by a terminating tab and a newline.
func (t *TabbedStringBuilder) Row(cells ...string) {
	_, _ = fmt.Fprint(t.writer, strings.Join(cells, "\t")+"\t\n")
}

// String flushes pending cells and returns everything written so far.
func (t *TabbedStringBuilder) String() string {
	_ = t.writer.Flush()
	return t.sb.String()
}
