// Package report renders a ranked registry for people and scripts.
//
// Table draws a bordered lipgloss table with human-readable sizes, for a
// terminal. Plain writes tab-separated raw values, for pipes.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"bundle-dupscan/internal/cache"
	"bundle-dupscan/internal/registry"
)

var headers = []string{"#", "asset", "marked", "mem", "canSave", "count", "bundles"}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numStyle    = cellStyle.Align(lipgloss.Right)
	savingStyle = numStyle.Foreground(lipgloss.Color("214"))
)

// SummaryLine is the one-line scan summary: cnt=N,cansave/all=X/Y=P.
func SummaryLine(s registry.Summary) string {
	return s.String()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Write renders the first top records of reg (all when top <= 0) followed by
// the summary line; as a table when tty is set, tab-separated otherwise.
func Write(w io.Writer, reg *registry.Registry, top int, tty bool) error {
	if tty {
		if _, err := fmt.Fprintln(w, Table(reg, top)); err != nil {
			return err
		}
	} else if err := Plain(w, reg, top); err != nil {
		return err
	}
	s, ok := reg.Summary()
	if !ok {
		s = reg.Sum()
	}
	_, err := fmt.Fprintln(w, SummaryLine(s))
	return err
}

// Table renders the first top records as a bordered table.
func Table(reg *registry.Registry, top int) string {
	rows := head(reg, top)
	cells := make([][]string, 0, len(rows))
	for i, ai := range rows {
		cells = append(cells, []string{
			strconv.Itoa(i + 1),
			ai.Asset,
			marked(ai),
			registry.ReadableSize(ai.MemSize),
			registry.ReadableSize(ai.CanSaveMemSize),
			strconv.Itoa(ai.ContainingABCount),
			ai.ContainingABs.Join(", "),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 4 && rows[row].CanSaveMemSize > 0:
				return savingStyle
			case col == 0 || col == 3 || col == 4 || col == 5:
				return numStyle
			default:
				return cellStyle
			}
		}).
		String()
}

// Plain writes the first top records as tab-separated lines with a header.
// Sizes are raw byte counts.
func Plain(w io.Writer, reg *registry.Registry, top int) error {
	if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for i, ai := range head(reg, top) {
		line := strings.Join([]string{
			strconv.Itoa(i + 1),
			ai.Asset,
			marked(ai),
			strconv.FormatInt(ai.MemSize, 10),
			strconv.FormatInt(ai.CanSaveMemSize, 10),
			strconv.Itoa(ai.ContainingABCount),
			ai.ContainingABs.Join(registry.SetSeparator),
		}, "\t")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Delta writes a short account of what changed since the baseline.
func Delta(w io.Writer, d cache.Delta) error {
	if d.Empty() {
		_, err := fmt.Fprintln(w, "no change since baseline")
		return err
	}
	shift := d.SavingsShift()
	sign := "+"
	if shift < 0 {
		sign = ""
	}
	if _, err := fmt.Fprintf(w, "since baseline: added=%d removed=%d changed=%d moved=%d canSave%s%s\n",
		len(d.Added), len(d.Removed), len(d.Changed), len(d.Moved), sign, registry.ReadableSize(shift)); err != nil {
		return err
	}
	for _, e := range d.Added {
		if e.CanSave > 0 {
			if _, err := fmt.Fprintf(w, "  + %s (%s in %d bundles)\n", e.Asset, registry.ReadableSize(e.CanSave), e.Count); err != nil {
				return err
			}
		}
	}
	for _, c := range d.Changed {
		if _, err := fmt.Fprintf(w, "  ~ %s (%s -> %s, %d -> %d bundles)\n", c.Asset,
			registry.ReadableSize(c.CanSaveBefore), registry.ReadableSize(c.CanSaveAfter), c.CountBefore, c.CountAfter); err != nil {
			return err
		}
	}
	for _, m := range d.Moved {
		if _, err := fmt.Fprintf(w, "  > %s -> %s\n", m.From, m.To); err != nil {
			return err
		}
	}
	return nil
}

func head(reg *registry.Registry, top int) []*registry.AssetInfo {
	all := reg.All()
	if top > 0 && top < len(all) {
		return all[:top]
	}
	return all
}

func marked(ai *registry.AssetInfo) string {
	if ai.IsMarked {
		return "1"
	}
	return "0"
}
