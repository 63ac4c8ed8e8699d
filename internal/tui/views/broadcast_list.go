package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpphub/internal/broadcast"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/tui/ui"
	"github.com/rivo/tview"
)

// BroadcastList shows broadcast jobs, newest first.
type BroadcastList struct {
	*tview.Table
	theme *ui.Theme
	now   func() time.Time
}

func NewBroadcastList(theme *ui.Theme) *BroadcastList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.Border)
	table.SetBackgroundColor(theme.Bg)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.Cursor.Fg).
		Background(theme.Cursor.Bg))
	table.SetTitleColor(theme.Title)
	return &BroadcastList{Table: table, theme: theme, now: time.Now}
}

func (bl *BroadcastList) Name() string { return "broadcasts" }

func (bl *BroadcastList) Hints() []ui.MenuHint { return nil }

func (bl *BroadcastList) Update(jobs []store.BroadcastJob) {
	bl.Clear()
	for col, h := range []string{" JOB", " CONNECTION", " STATUS", " MODE", " PROGRESS", " SENT", " FAILED", " STARTED", " ENDED"} {
		bl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(bl.theme.Header).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1))
	}

	now := bl.now()
	for i, j := range jobs {
		row := i + 1
		color := bl.theme.Pending
		switch j.Status {
		case broadcast.StatusCompleted:
			color = bl.theme.Ok
		case broadcast.StatusCancelled:
			color = bl.theme.Down
		}
		ended := "-"
		if j.EndTime != nil {
			ended = formatTime(*j.EndTime, now)
		}
		id := j.ID
		if len(id) > 8 {
			id = id[:8]
		}
		cells := []string{
			id,
			j.ConnectionID,
			j.Status,
			j.Mode,
			progressBar(j.Sent+j.Failed, j.Total, 12),
			fmt.Sprint(j.Sent),
			fmt.Sprint(j.Failed),
			formatTime(j.StartTime, now),
			ended,
		}
		for col, text := range cells {
			cell := tview.NewTableCell(" " + tview.Escape(text)).SetExpansion(1).SetTextColor(bl.theme.Fg)
			if col == 2 {
				cell.SetTextColor(color)
			}
			bl.SetCell(row, col, cell)
		}
	}
	bl.SetTitle(fmt.Sprintf(" Broadcasts (%d) ", len(jobs)))
}

// progressBar draws done/total as a fixed-width bar followed by the count.
func progressBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	bar := make([]rune, width)
	for i := range bar {
		bar[i] = '░'
		if i < filled {
			bar[i] = '█'
		}
	}
	return fmt.Sprintf("%s %d/%d", string(bar), done, total)
}
