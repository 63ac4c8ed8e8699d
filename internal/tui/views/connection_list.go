package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConnectionList is the main table: one row per connection.
type ConnectionList struct {
	*tview.Table
	theme   *ui.Theme
	conns   []session.Info
	visible []session.Info
	filter  string
}

func NewConnectionList(theme *ui.Theme) *ConnectionList {
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

	cl := &ConnectionList{Table: table, theme: theme}
	cl.render()
	return cl
}

// Name implements ui.Component.
func (cl *ConnectionList) Name() string { return "connections" }

// Hints implements ui.Component.
func (cl *ConnectionList) Hints() []ui.MenuHint { return nil }

// Update replaces the rows, keeping the selection on the same connection when possible.
func (cl *ConnectionList) Update(conns []session.Info) {
	selected := cl.Selected()
	cl.conns = conns
	cl.render()
	for i, c := range cl.visible {
		if c.ID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
}

func (cl *ConnectionList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

func (cl *ConnectionList) render() {
	cl.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" ID", 1},
		{" STATUS", 1},
		{" PHONE", 1},
		{" QR", 0},
		{" RETRY IN", 0},
		{" LAST DISCONNECT", 2},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.Header).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cl.visible = cl.visible[:0]
	for _, c := range cl.conns {
		if cl.filter != "" && !containsFold(c.ID, cl.filter) && !containsFold(c.Phone, cl.filter) && !containsFold(string(c.Status), cl.filter) {
			continue
		}
		cl.visible = append(cl.visible, c)
	}

	for i, c := range cl.visible {
		row := i + 1
		qr := ""
		if c.HasQR {
			qr = "yes"
		}
		retry := ""
		if c.ReconnectDelayMs > 0 {
			retry = (time.Duration(c.ReconnectDelayMs) * time.Millisecond).String()
		}
		phone := c.Phone
		if phone == "" {
			phone = "-"
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(c.ID)).SetExpansion(1).SetTextColor(cl.theme.Fg))
		cl.SetCell(row, 1, tview.NewTableCell(" "+string(c.Status)).SetExpansion(1).SetTextColor(cl.theme.StatusColor(c.Status)))
		cl.SetCell(row, 2, tview.NewTableCell(" "+phone).SetExpansion(1).SetTextColor(cl.theme.Fg))
		cl.SetCell(row, 3, tview.NewTableCell(" "+qr).SetTextColor(cl.theme.Pending))
		cl.SetCell(row, 4, tview.NewTableCell(" "+retry).SetTextColor(cl.theme.Fg).SetAlign(tview.AlignRight))
		cl.SetCell(row, 5, tview.NewTableCell(" "+tview.Escape(oneLine(c.LastDisconnectReason, 60))).SetExpansion(2).SetTextColor(cl.theme.Fg))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Connections (%d/%d) filter: %s ", len(cl.visible), len(cl.conns), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Connections (%d) ", len(cl.conns)))
	}
}

// Selected returns the id of the highlighted connection, or "".
func (cl *ConnectionList) Selected() string {
	row, _ := cl.GetSelection()
	if row < 1 || row > len(cl.visible) {
		return ""
	}
	return cl.visible[row-1].ID
}
