package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/tui/keys"
	"github.com/matheus3301/wpphub/internal/tui/model"
	"github.com/matheus3301/wpphub/internal/tui/ui"
	"github.com/matheus3301/wpphub/internal/tui/views"
	"github.com/rivo/tview"
)

const refreshInterval = 3 * time.Second

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	addr     string
	vm       *model.ViewModel
	registry *keys.Registry
	flash    *ui.FlashModel

	root     *tview.Flex
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	info     *ui.DaemonInfo
	pages    *ui.Pages
	prompt   *ui.Prompt
	flashBar *ui.FlashBar

	conns  *views.ConnectionList
	bcasts *views.BroadcastList
	msgs   *views.MessageLog
	qr     *views.QRView
	help   *views.HelpView

	// qrFor is the connection the QR page shows. Only touched on the UI goroutine.
	qrFor string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application for the daemon reachable through b at addr.
func NewApp(b model.Backend, addr string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		addr:     addr,
		vm:       model.NewViewModel(b),
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		menu:     ui.NewMenu(theme),
		crumbs:   ui.NewCrumbs(theme),
		info:     ui.NewDaemonInfo(theme),
		pages:    ui.NewPages(),
		prompt:   ui.NewPrompt(theme),
		flashBar: ui.NewFlashBar(theme),
		conns:    views.NewConnectionList(theme),
		bcasts:   views.NewBroadcastList(theme),
		msgs:     views.NewMessageLog(theme),
		qr:       views.NewQRView(theme),
		help:     views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "command",
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'b', Description: "broadcasts",
		Handler: func() { a.pages.Push(a.bcasts) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "help",
		Handler: func() { a.pages.Push(a.help) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "quit",
		Handler: a.Stop,
	})

	view := a.conns.Name()
	a.registry.AddView(view, &keys.Action{
		Key: tcell.KeyEnter, Label: "enter", Description: "messages",
		Handler: func() { a.withSelected(a.openMessages) },
	})
	a.registry.AddView(view, &keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "filter",
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(view, &keys.Action{
		Key: tcell.KeyRune, Rune: 'c', Description: "qr code",
		Handler: func() { a.withSelected(a.openQR) },
	})
	a.registry.AddView(view, &keys.Action{
		Key: tcell.KeyRune, Rune: 's', Description: "start",
		Handler: func() { a.withSelected(a.start) },
	})
	a.registry.AddView(view, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "re-pair",
		Handler: func() { a.withSelected(a.confirmReinit) },
	})
	a.registry.AddView(view, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Description: "disconnect",
		Handler: func() { a.withSelected(a.confirmDisconnect) },
	})

	a.registry.AddView(a.msgs.Name(), &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "send",
		Handler: func() { a.app.SetFocus(a.msgs.Composer()) },
	})
}

func (a *App) setupCallbacks() {
	a.pages.SetOnChange(func(top ui.Component, stack []string) {
		a.menu.Update(a.registry.Hints(top.Name()))
		a.crumbs.Update(stack)
		a.app.SetFocus(top)
	})

	a.prompt.SetOnCancel(a.hidePrompt)
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.conns.SetFilter(text)
			a.flash.Info("filter: " + text)
			a.flashBar.Update(a.flash.Current())
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})

	a.msgs.SetOnSend(func(input string) {
		go func() {
			rec, err := a.vm.Send(a.ctx, input)
			if err != nil {
				a.flash.Err(fmt.Errorf("send: %w", err))
			} else {
				a.flash.Info("sent to " + rec.Counterparty)
			}
			a.app.QueueUpdateDraw(func() {
				a.msgs.Update(a.vm.Active(), a.vm.Messages())
				a.flashBar.Update(a.flash.Current())
			})
		}()
	})
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(ui.NewLogo(a.theme), 10, 0, false).
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 2, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 4, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false)
	a.root.SetBackgroundColor(a.theme.Bg)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Reset(a.conns)
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	focused := a.app.GetFocus()
	if focused == a.msgs.Composer() && ev.Key() == tcell.KeyEscape {
		a.app.SetFocus(a.msgs.Log())
		return nil
	}
	// Text inputs get every key.
	if _, ok := focused.(*tview.InputField); ok {
		return ev
	}

	top := a.pages.Current()
	if ev.Key() == tcell.KeyEscape {
		if !a.pages.Pop() && top == a.conns {
			a.conns.SetFilter("")
		}
		return nil
	}
	if top != nil && a.registry.HandleEvent(top.Name(), ev) {
		return nil
	}
	return ev
}

func (a *App) runCommand(cmd Command) {
	switch name := cmd.Canonical(); name {
	case "quit":
		a.Stop()
	case "connections":
		a.pages.Reset(a.conns)
	case "broadcasts":
		a.pages.Push(a.bcasts)
	case "help":
		a.pages.Push(a.help)
	case "start", "disconnect", "reinit", "qr", "messages":
		id, err := cmd.Target(a.conns.Selected())
		if err != nil {
			a.flash.Warn(err.Error())
			a.flashBar.Update(a.flash.Current())
			return
		}
		switch name {
		case "start":
			a.start(id)
		case "disconnect":
			a.confirmDisconnect(id)
		case "reinit":
			a.confirmReinit(id)
		case "qr":
			a.openQR(id)
		case "messages":
			a.openMessages(id)
		}
	default:
		a.flash.Warn("unknown command: " + cmd.Name)
		a.flashBar.Update(a.flash.Current())
	}
}

func (a *App) withSelected(fn func(id string)) {
	if id := a.conns.Selected(); id != "" {
		fn(id)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	if top := a.pages.Current(); top != nil {
		a.app.SetFocus(top)
	}
}

func (a *App) confirm(question string, fn func()) {
	a.prompt.Confirm(question, fn)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) confirmDisconnect(id string) {
	a.confirm(fmt.Sprintf("Disconnect and forget %s?", id), func() {
		a.act("disconnected "+id, func() error { return a.vm.Disconnect(a.ctx, id) })
	})
}

func (a *App) confirmReinit(id string) {
	a.confirm(fmt.Sprintf("Wipe credentials of %s and pair again?", id), func() {
		a.act("re-pairing "+id, func() error { return a.vm.Reinit(a.ctx, id) })
	})
}

func (a *App) start(id string) {
	a.act("starting "+id, func() error { return a.vm.Start(a.ctx, id) })
}

// act runs fn off the UI goroutine, reports the outcome and refreshes.
func (a *App) act(done string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			a.flash.Err(err)
		} else {
			a.flash.Info(done)
		}
		a.refresh()
	}()
}

func (a *App) openMessages(id string) {
	go func() {
		if err := a.vm.LoadMessages(a.ctx, id); err != nil {
			a.flash.Err(fmt.Errorf("load messages: %w", err))
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.msgs.Update(id, a.vm.Messages())
			a.pages.Push(a.msgs)
		})
	}()
}

func (a *App) openQR(id string) {
	a.qrFor = id
	a.qr.Show(id, status.Connecting, "")
	a.pages.Push(a.qr)
	go a.loadQR(id)
}

func (a *App) loadQR(id string) {
	q, err := a.vm.QR(a.ctx, id)
	a.app.QueueUpdateDraw(func() {
		if a.qrFor != id {
			return
		}
		if err != nil {
			a.flash.Err(fmt.Errorf("qr: %w", err))
			a.flashBar.Update(a.flash.Current())
			return
		}
		a.qr.Show(id, status.State(q.Status), q.Code)
	})
}

// Run starts polling and blocks until the UI exits.
func (a *App) Run() error {
	go a.pollLoop()
	return a.app.Run()
}

func (a *App) pollLoop() {
	a.refresh()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.refresh()
		case <-a.ctx.Done():
			return
		}
	}
}

// refresh polls the daemon and redraws. The open page's detail is reloaded too.
func (a *App) refresh() {
	if err := a.vm.Refresh(a.ctx); err != nil && a.ctx.Err() == nil {
		a.flash.Err(err)
	}
	if id := a.vm.Active(); id != "" {
		_ = a.vm.LoadMessages(a.ctx, id)
	}

	a.app.QueueUpdateDraw(func() {
		snap := a.vm.Snapshot()
		a.conns.Update(snap.Connections)
		a.bcasts.Update(snap.Broadcasts)
		a.info.Update(ui.DaemonData{
			Addr:      a.addr,
			Reachable: snap.Reachable,
			Uptime:    time.Duration(snap.Health.UptimeMs) * time.Millisecond,
			Counts:    snap.Health.Connections,
		})
		if a.pages.Current() == a.msgs {
			a.msgs.Update(a.vm.Active(), a.vm.Messages())
		}
		if a.pages.Current() == a.qr && a.qrFor != "" {
			go a.loadQR(a.qrFor)
		}
		a.flashBar.Update(a.flash.Current())
	})
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
