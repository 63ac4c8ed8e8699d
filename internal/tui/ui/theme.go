package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpphub/internal/status"
)

// Palette is a foreground/background pair.
type Palette struct {
	Fg, Bg tcell.Color
}

// Theme holds the colors of the monitor.
type Theme struct {
	Bg      tcell.Color
	Fg      tcell.Color
	Border  tcell.Color
	Title   tcell.Color
	Key     tcell.Color
	Counter tcell.Color
	Header  tcell.Color

	Cursor   Palette
	CrumbOn  Palette
	CrumbOff Palette

	Flash map[FlashLevel]tcell.Color

	// Ok through Dead color connection health, from connected to logged out.
	Ok      tcell.Color
	Pending tcell.Color
	Down    tcell.Color
	Dead    tcell.Color
}

func DefaultTheme() *Theme {
	return &Theme{
		Bg:       tcell.ColorBlack,
		Fg:       tcell.ColorCadetBlue,
		Border:   tcell.ColorDodgerBlue,
		Title:    tcell.ColorFuchsia,
		Key:      tcell.ColorDodgerBlue,
		Counter:  tcell.ColorPapayaWhip,
		Header:   tcell.ColorWhite,
		Cursor:   Palette{Fg: tcell.ColorBlack, Bg: tcell.ColorAqua},
		CrumbOn:  Palette{Fg: tcell.ColorBlack, Bg: tcell.ColorOrange},
		CrumbOff: Palette{Fg: tcell.ColorBlack, Bg: tcell.ColorAqua},
		Flash: map[FlashLevel]tcell.Color{
			FlashInfo: tcell.ColorNavajoWhite,
			FlashWarn: tcell.ColorOrange,
			FlashErr:  tcell.ColorOrangeRed,
		},
		Ok:      tcell.ColorLimeGreen,
		Pending: tcell.ColorGold,
		Down:    tcell.ColorOrange,
		Dead:    tcell.ColorOrangeRed,
	}
}

// StatusColor picks the color a connection status is drawn in.
func (t *Theme) StatusColor(s status.State) tcell.Color {
	switch s {
	case status.Connected:
		return t.Ok
	case status.Connecting, status.WaitingForQR:
		return t.Pending
	case status.Reconnecting, status.Disconnected:
		return t.Down
	case status.LoggedOut:
		return t.Dead
	}
	return t.Fg
}

// Tag wraps text in a tview color tag.
func Tag(c tcell.Color, text string) string {
	return fmt.Sprintf("[%s]%s[-]", colorName(c), text)
}

func colorName(c tcell.Color) string {
	if c == tcell.ColorDefault {
		return "-"
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
