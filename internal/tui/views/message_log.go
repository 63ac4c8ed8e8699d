package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageLog shows the ledger of one connection with a send box below.
type MessageLog struct {
	*tview.Flex
	theme    *ui.Theme
	log      *tview.TextView
	composer *tview.InputField
	onSend   func(input string)
	now      func() time.Time
}

func NewMessageLog(theme *ui.Theme) *MessageLog {
	log := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	log.SetBorder(true)
	log.SetBorderColor(theme.Border)
	log.SetBackgroundColor(theme.Bg)
	log.SetTextColor(theme.Fg)
	log.SetTitleColor(theme.Title)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0).
		SetPlaceholder("<number> <message>")
	composer.SetBorder(true)
	composer.SetBorderColor(theme.Border)
	composer.SetBackgroundColor(theme.Bg)
	composer.SetFieldBackgroundColor(theme.Bg)
	composer.SetFieldTextColor(theme.Fg)
	composer.SetLabelColor(theme.Key)
	composer.SetTitle(" Send (i to focus) ")
	composer.SetTitleColor(theme.Title)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(log, 0, 1, true).
		AddItem(composer, 3, 0, false)

	ml := &MessageLog{
		Flex:     flex,
		theme:    theme,
		log:      log,
		composer: composer,
		now:      time.Now,
	}
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || ml.onSend == nil {
			return
		}
		if text := composer.GetText(); text != "" {
			ml.onSend(text)
			composer.SetText("")
		}
	})
	return ml
}

func (ml *MessageLog) Name() string { return "messages" }

func (ml *MessageLog) Hints() []ui.MenuHint { return nil }

func (ml *MessageLog) SetOnSend(fn func(input string)) { ml.onSend = fn }

// Composer returns the send box for focus management.
func (ml *MessageLog) Composer() *tview.InputField { return ml.composer }

// Log returns the message pane for focus management.
func (ml *MessageLog) Log() *tview.TextView { return ml.log }

// Update renders msgs (newest first) oldest at the top.
func (ml *MessageLog) Update(connectionID string, msgs []store.Message) {
	ml.log.Clear()
	ml.log.SetTitle(fmt.Sprintf(" %s: %d messages ", tview.Escape(connectionID), len(msgs)))

	now := ml.now()
	in := colorName(ml.theme.Counter)
	out := colorName(ml.theme.Ok)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		arrow, color := "<-", in
		if m.Direction == store.Outgoing {
			arrow, color = "->", out
		}
		who := m.Counterparty
		if m.DisplayName != "" {
			who = m.DisplayName + " (" + m.Counterparty + ")"
		}
		body := m.Body
		if m.AttachmentName != "" {
			body = "[" + m.AttachmentName + "] " + body
		}
		_, _ = fmt.Fprintf(ml.log, "[%s::b]%s %s[-:-:-] [::d]%s %s[-:-:-]\n%s\n\n",
			color, arrow, tview.Escape(sanitizeForTerminal(who)),
			formatTimestamp(m.Timestamp, now), m.MessageType,
			tview.Escape(sanitizeForTerminal(body)))
	}
	ml.log.ScrollToEnd()
}

func colorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
