package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/wpphub/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView lists key bindings and commands.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.Title)

	hv := &HelpView{TextView: tv, theme: theme}
	hv.render()
	return hv
}

func (hv *HelpView) Name() string { return "help" }

func (hv *HelpView) Hints() []ui.MenuHint { return nil }

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"/", "Filter connections"},
		{"Esc", "Back"},
		{"b", "Broadcast jobs"},
		{"?", "This help"},
		{"q", "Quit"},
	}},
	{"Connections", [][2]string{
		{"Enter", "Open message log"},
		{"c", "Show pairing QR"},
		{"r", "Re-pair (wipe credentials, new QR)"},
		{"d", "Disconnect and forget"},
	}},
	{"Message log", [][2]string{
		{"i", "Focus the send box"},
		{"Enter", "Send <number> <message>"},
	}},
	{"Commands", [][2]string{
		{":start <id>", "Start or resume a connection"},
		{":disconnect <id>", "Disconnect and forget"},
		{":reinit <id>", "Re-pair a connection"},
		{":qr <id>", "Show pairing QR"},
		{":broadcasts", "Broadcast jobs"},
		{":q", "Quit"},
	}},
}

func (hv *HelpView) render() {
	kc := colorName(hv.theme.Key)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
