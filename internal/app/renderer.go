package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/chmouel/gw/internal/models"
	"github.com/chmouel/gw/internal/state"
)

// Table headers and fixed column widths.
var columns = []struct {
	header string
	width  int
}{
	{"BRANCH", 40},
	{"LAST COMMIT", 20},
	{"PULL/PUSH", 14},
	{"PR", 26},
	{"BEHIND|AHEAD", 12},
	{"CHANGES", 38},
	{"CHECKS", 10},
}

const columnGap = " "

// nowFn is swapped out by tests.
var nowFn = func() int64 { return time.Now().Unix() }

// RelativeTime formats an epoch timestamp as a compact age. Zero or
// negative timestamps render as "unknown".
func RelativeTime(ts, now int64) string {
	if ts <= 0 {
		return "unknown"
	}
	delta := now - ts
	if delta < 0 {
		return "just now"
	}
	switch {
	case delta < 60:
		return fmt.Sprintf("%ds ago", delta)
	case delta < 3600:
		return fmt.Sprintf("%dm ago", delta/60)
	case delta < 86400:
		return fmt.Sprintf("%dh ago", delta/3600)
	case delta < 604800:
		return fmt.Sprintf("%dd ago", delta/86400)
	case delta < 2629800:
		return fmt.Sprintf("%dw ago", delta/604800)
	}
	return fmt.Sprintf("%dmo ago", delta/2629800)
}

// Hyperlink wraps a label in an OSC 8 terminal hyperlink with underline.
func Hyperlink(label, url string) string {
	if url == "" {
		return label
	}
	return "\x1b[4m\x1b]8;;" + url + "\x1b\\" + label + "\x1b]8;;\x1b\\\x1b[24m"
}

// fit truncates a cell to the column width with an ellipsis, then pads
// it to the full width. Widths are display widths, not byte counts.
func fit(text string, width int) string {
	if runewidth.StringWidth(text) > width {
		if width <= 3 {
			return truncate.String(text, uint(width)) // #nosec G115
		}
		text = truncate.StringWithTail(text, uint(width), "...") // #nosec G115
	}
	pad := width - runewidth.StringWidth(text)
	if pad > 0 {
		text += strings.Repeat(" ", pad)
	}
	return text
}

func branchCell(st models.WorktreeStatus) string {
	if st.Branch == nil {
		return models.DetachedSentinel
	}
	return *st.Branch
}

func pullPushCell(st models.WorktreeStatus) string {
	out := ""
	switch {
	case st.IsMerged():
		out = "merged (remote deleted)"
	case st.Upstream != nil && st.Ahead != nil && st.Behind != nil:
		out = fmt.Sprintf("%d↓ %d↑", *st.Behind, *st.Ahead)
	}
	if st.Dirty != nil && *st.Dirty {
		out = strings.TrimSpace(out + " (dirty)")
	}
	return out
}

func prCell(st models.WorktreeStatus, defaultBranch string) string {
	if st.PRNumber == nil {
		return ""
	}
	prState := models.PRStateOpen
	if st.PRState != nil {
		prState = *st.PRState
	}
	out := fmt.Sprintf("#%d", *st.PRNumber)
	switch prState {
	case models.PRStateMerged:
		out += " merged (remote deleted)"
	case models.PRStateClosed:
		out += " closed"
	}
	if st.PRBase != nil && *st.PRBase != "" && *st.PRBase != defaultBranch {
		out += " -> " + *st.PRBase
	}
	return out
}

func behindAheadCell(st models.WorktreeStatus) string {
	if st.Ahead == nil || st.Behind == nil {
		return ""
	}
	return fmt.Sprintf("%d|%d", *st.Behind, *st.Ahead)
}

func changesCell(st models.WorktreeStatus) string {
	if st.ChangesAdded == nil || st.ChangesDeleted == nil || st.ChangesTarget == nil {
		return "n/a"
	}
	return fmt.Sprintf("+%-5d -%-5d into %s", *st.ChangesAdded, *st.ChangesDeleted, *st.ChangesTarget)
}

func checksCell(st models.WorktreeStatus) string {
	if st.ChecksPassed == nil || st.ChecksTotal == nil {
		return ""
	}
	ratio := fmt.Sprintf("%d/%d", *st.ChecksPassed, *st.ChecksTotal)
	if st.ChecksState == nil {
		return ratio
	}
	return *st.ChecksState + " " + ratio
}

// rowCells builds the display text for one row, column by column.
func rowCells(st models.WorktreeStatus, defaultBranch string) []string {
	return []string{
		branchCell(st),
		RelativeTime(st.LastCommitTS, nowFn()),
		pullPushCell(st),
		prCell(st, defaultBranch),
		behindAheadCell(st),
		changesCell(st),
		checksCell(st),
	}
}

// cellStale maps column index to the staleness flag that dims it. The
// branch column is identity and never dims.
func cellStale(col int, stale state.Stale) bool {
	switch col {
	case 0:
		return false
	case 3, 6:
		return stale.Forge
	default:
		return stale.Local
	}
}

func renderHeader(style lipgloss.Style) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fit(col.header, col.width)
	}
	return style.Render(strings.Join(parts, columnGap))
}

func renderSeparator(style lipgloss.Style) string {
	total := len(columnGap) * (len(columns) - 1)
	for _, col := range columns {
		total += col.width
	}
	return style.Render(strings.Repeat("-", total))
}

// renderRow renders one table row. Stale cells render dimmed; the
// selected row gets the selection background. The PR cell becomes a
// hyperlink after styling so the escape sequences survive untouched.
func renderRow(row state.Row, defaultBranch string, selected bool, styles rowStyles) string {
	cells := rowCells(row.Status, defaultBranch)
	parts := make([]string, len(cells))
	for i, cell := range cells {
		text := fit(cell, columns[i].width)
		style := styles.normal
		if cellStale(i, row.Stale) {
			style = styles.stale
		}
		if selected {
			style = style.Background(styles.selectionBg)
		}
		rendered := style.Render(text)
		if i == 3 && row.Status.PRURL != nil && strings.TrimSpace(cell) != "" {
			rendered = Hyperlink(rendered, *row.Status.PRURL)
		}
		parts[i] = rendered
	}
	return strings.Join(parts, columnGap)
}

type rowStyles struct {
	normal      lipgloss.Style
	stale       lipgloss.Style
	selectionBg lipgloss.Color
}

// RenderPlainTable renders the table without colors or links, for
// non-interactive output.
func RenderPlainTable(rows []state.Row, defaultBranch string) string {
	var b strings.Builder
	headers := make([]string, len(columns))
	total := len(columnGap) * (len(columns) - 1)
	for i, col := range columns {
		headers[i] = fit(col.header, col.width)
		total += col.width
	}
	b.WriteString(strings.Join(headers, columnGap))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", total))
	b.WriteString("\n")
	for _, row := range rows {
		cells := rowCells(row.Status, defaultBranch)
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fit(cell, columns[i].width)
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, columnGap), " "))
		b.WriteString("\n")
	}
	return b.String()
}
