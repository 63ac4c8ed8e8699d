package ui

import "github.com/rivo/tview"

// Pages is a stack of components over tview.Pages. A component is added as a
// page the first time it is pushed.
type Pages struct {
	*tview.Pages
	stack    []Component
	onChange func(top Component, stack []string)
}

func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange sets a callback that fires after every push, pop or reset.
func (p *Pages) SetOnChange(fn func(top Component, stack []string)) {
	p.onChange = fn
}

// Push shows c on top of the stack.
func (p *Pages) Push(c Component) {
	if !p.HasPage(c.Name()) {
		p.AddPage(c.Name(), c, true, false)
	}
	if top := p.Current(); top != nil {
		p.HidePage(top.Name())
	}
	p.stack = append(p.stack, c)
	p.ShowPage(c.Name())
	p.SendToFront(c.Name())
	p.notify()
}

// Pop removes the top component unless it is the last one.
func (p *Pages) Pop() bool {
	if len(p.stack) <= 1 {
		return false
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top.Name())
	p.stack = p.stack[:len(p.stack)-1]
	current := p.stack[len(p.stack)-1]
	p.ShowPage(current.Name())
	p.SendToFront(current.Name())
	p.notify()
	return true
}

// Reset clears the stack down to c.
func (p *Pages) Reset(c Component) {
	for _, old := range p.stack {
		p.HidePage(old.Name())
	}
	p.stack = nil
	p.Push(c)
}

// Current returns the top component, or nil.
func (p *Pages) Current() Component {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *Pages) notify() {
	if p.onChange == nil {
		return
	}
	names := make([]string, len(p.stack))
	for i, c := range p.stack {
		names[i] = c.Name()
	}
	p.onChange(p.Current(), names)
}
