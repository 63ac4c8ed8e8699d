package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
}

// Component is a page of the monitor.
type Component interface {
	tview.Primitive
	Name() string
	Hints() []MenuHint
}

// Menu lists the shortcuts of the current page in columns of four.
type Menu struct {
	*tview.TextView
	theme *Theme
}

func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	const rows = 4
	kc := colorName(m.theme.Key)
	lines := make([]string, rows)
	for i, h := range hints {
		lines[i%rows] += fmt.Sprintf("[%s::b]<%s>[-:-:-] %-12s", kc, h.Key, h.Description)
	}
	_, _ = fmt.Fprint(m, strings.Join(lines, "\n"))
}

// Crumbs shows the page stack.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	return &Crumbs{TextView: tv, theme: theme}
}

func (c *Crumbs) Update(stack []string) {
	c.Clear()
	parts := make([]string, 0, len(stack))
	for i, name := range stack {
		fg, bg, attr := c.theme.CrumbOff.Fg, c.theme.CrumbOff.Bg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbOn.Fg, c.theme.CrumbOn.Bg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", colorName(fg), colorName(bg), attr, strings.ToLower(name)))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}

// DaemonData is the header summary of the daemon.
type DaemonData struct {
	Addr      string
	Reachable bool
	Uptime    time.Duration
	Counts    map[string]int
}

// DaemonInfo renders DaemonData.
type DaemonInfo struct {
	*tview.TextView
	theme *Theme
}

func NewDaemonInfo(theme *Theme) *DaemonInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &DaemonInfo{TextView: tv, theme: theme}
}

func (d *DaemonInfo) Update(data DaemonData) {
	d.Clear()
	fg := colorName(d.theme.Fg)
	val := colorName(d.theme.Counter)

	state := fmt.Sprintf("[%s]up %s[-]", colorName(d.theme.Ok), formatUptime(data.Uptime))
	if !data.Reachable {
		state = fmt.Sprintf("[%s]unreachable[-]", colorName(d.theme.Dead))
	}

	statuses := make([]string, 0, len(data.Counts))
	for s := range data.Counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	var counts []string
	total := 0
	for _, s := range statuses {
		counts = append(counts, fmt.Sprintf("%s=%d", s, data.Counts[s]))
		total += data.Counts[s]
	}

	_, _ = fmt.Fprintf(d,
		"[%s::b]Daemon:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]State:[-:-:-]  %s\n"+
			"[%s::b]Conns:[-:-:-]  [%s]%d[-]\n"+
			"[%s::b]By status:[-:-:-] [%s]%s[-]",
		fg, val, data.Addr,
		fg, state,
		fg, val, total,
		fg, val, strings.Join(counts, " "),
	)
}

// Logo is the compact ASCII logo in the header.
type Logo struct {
	*tview.TextView
}

func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	tc := colorName(theme.Title)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]╦ ╦╔═╗╔═╗╦ ╦╦ ╦╔╗ [-:-:-]\n"+
			"[%s::b]║║║╠═╝╠═╝╠═╣║ ║╠╩╗[-:-:-]\n"+
			"[%s::b]╚╩╝╩  ╩  ╩ ╩╚═╝╚═╝[-:-:-]",
		tc, tc, tc)
	return &Logo{TextView: tv}
}

func formatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
