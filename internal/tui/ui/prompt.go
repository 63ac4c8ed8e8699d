package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects how the prompt input is interpreted.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	// PromptConfirm asks a yes/no question; only "y" confirms.
	PromptConfirm
)

// Prompt is the command, filter and confirmation input bar.
type Prompt struct {
	*tview.InputField
	mode      PromptMode
	onSubmit  func(mode PromptMode, text string)
	onCancel  func()
	onConfirm func()
}

func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.Border)
	input.SetBackgroundColor(theme.Bg)
	input.SetFieldBackgroundColor(theme.Bg)
	input.SetFieldTextColor(theme.Fg)
	input.SetLabelColor(theme.Key)

	p := &Prompt{InputField: input}
	input.SetDoneFunc(func(key tcell.Key) {
		text := p.GetText()
		p.SetText("")
		switch key {
		case tcell.KeyEnter:
			if p.mode == PromptConfirm {
				confirm := p.onConfirm
				p.onConfirm = nil
				if text == "y" && confirm != nil {
					confirm()
				}
				if p.onCancel != nil {
					p.onCancel()
				}
				return
			}
			if text != "" && p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
		case tcell.KeyEscape:
			p.onConfirm = nil
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})
	return p
}

func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) { p.onSubmit = fn }

// SetOnCancel sets the callback that hides the prompt.
func (p *Prompt) SetOnCancel(fn func()) { p.onCancel = fn }

// Activate shows the prompt in command or filter mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
	}
}

// Confirm asks question and runs fn when the user answers "y".
func (p *Prompt) Confirm(question string, fn func()) {
	p.mode = PromptConfirm
	p.onConfirm = fn
	p.SetText("")
	p.SetLabel(question + " [y/N] ")
	p.SetTitle(" Confirm ")
}

func (p *Prompt) Mode() PromptMode { return p.mode }
