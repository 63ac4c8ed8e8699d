package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// QRView shows the pairing code of one connection.
type QRView struct {
	*tview.TextView
}

func NewQRView(theme *ui.Theme) *QRView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.Border)
	tv.SetBackgroundColor(theme.Bg)
	tv.SetTextColor(theme.Fg)
	tv.SetTitleColor(theme.Title)
	return &QRView{TextView: tv}
}

func (qv *QRView) Name() string { return "qr" }

func (qv *QRView) Hints() []ui.MenuHint { return nil }

// Show renders code for connectionID, or a status line when there is none.
func (qv *QRView) Show(connectionID string, st status.State, code string) {
	qv.Clear()
	qv.SetTitle(fmt.Sprintf(" Pair %s ", tview.Escape(connectionID)))
	switch {
	case code != "":
		_, _ = fmt.Fprintf(qv, "\nScan with WhatsApp > Linked devices:\n\n%s\n[::d]The code rotates; this view refreshes with it.", renderQR(code))
	case st == status.Connected:
		_, _ = fmt.Fprint(qv, "\n\nAlready paired and connected.")
	default:
		_, _ = fmt.Fprintf(qv, "\n\nNo QR code yet (status: %s).", st)
	}
}

// renderQR draws content with half-block characters, two modules per cell.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "(QR generation failed: " + err.Error() + ")"
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
