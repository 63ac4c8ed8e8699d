package ui

import (
	"sync"
	"time"

	"github.com/rivo/tview"
)

type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// flashTTL is how long each level stays on screen.
var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel keeps the latest notice. Background refreshes write to it, so it
// is guarded by a mutex.
type FlashModel struct {
	mu  sync.Mutex
	msg FlashMessage
	now func() time.Time
}

func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

func (f *FlashModel) Info(text string) { f.Post(FlashInfo, text) }
func (f *FlashModel) Warn(text string) { f.Post(FlashWarn, text) }
func (f *FlashModel) Err(err error)    { f.Post(FlashErr, err.Error()) }

// Post replaces the current notice.
func (f *FlashModel) Post(level FlashLevel, text string) {
	f.mu.Lock()
	f.msg = FlashMessage{Text: text, Level: level, Expires: f.now().Add(flashTTL[level])}
	f.mu.Unlock()
}

// Current returns the notice still on screen, or nil.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msg.Text == "" || !f.now().Before(f.msg.Expires) {
		return nil
	}
	m := f.msg
	return &m
}

// FlashBar renders a FlashModel notice on one line.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.Bg)
	return &FlashBar{TextView: tv, theme: theme}
}

func (fb *FlashBar) Update(msg *FlashMessage) {
	if msg == nil {
		fb.SetText("")
		return
	}
	fb.SetText(" " + Tag(fb.theme.Flash[msg.Level], tview.Escape(msg.Text)))
}
