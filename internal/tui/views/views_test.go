package views

import (
	"strings"
	"testing"

	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/tui/ui"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total int
		want        string
	}{
		{0, 0, "░░░░ 0/0"},
		{1, 4, "█░░░ 1/4"},
		{4, 4, "████ 4/4"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.done, tt.total, 4); got != tt.want {
			t.Errorf("progressBar(%d, %d) = %q, want %q", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestConnectionListFilterAndSelection(t *testing.T) {
	cl := NewConnectionList(ui.DefaultTheme())
	cl.Update([]session.Info{
		{ID: "acme", Status: status.Connected, Phone: "6281111"},
		{ID: "beta", Status: status.WaitingForQR, HasQR: true},
		{ID: "gamma", Status: status.Reconnecting, ReconnectDelayMs: 4000},
	})

	if got := cl.GetRowCount(); got != 4 {
		t.Fatalf("expected header + 3 rows, got %d", got)
	}

	cl.Select(2, 0)
	if got := cl.Selected(); got != "beta" {
		t.Fatalf("Selected() = %q, want beta", got)
	}

	cl.SetFilter("RECONN")
	if got := cl.GetRowCount(); got != 2 {
		t.Fatalf("filter by status: expected 1 row, got %d", got-1)
	}
	if !strings.Contains(cl.GetTitle(), "filter: RECONN") {
		t.Errorf("title %q does not show the filter", cl.GetTitle())
	}

	cl.SetFilter("")
	cl.Select(1, 0)
	cl.Update([]session.Info{
		{ID: "zulu", Status: status.Disconnected},
		{ID: "acme", Status: status.Connected},
	})
	if got := cl.Selected(); got != "acme" {
		t.Fatalf("selection should follow acme across updates, got %q", got)
	}
}

func TestQRViewShowsStatusWithoutCode(t *testing.T) {
	qv := NewQRView(ui.DefaultTheme())
	qv.Show("acme", status.Connecting, "")
	if text := qv.GetText(true); !strings.Contains(text, "status: connecting") {
		t.Fatalf("unexpected text %q", text)
	}

	qv.Show("acme", status.WaitingForQR, "2@abc,def,ghi")
	if text := qv.GetText(true); !strings.Contains(text, "█") && !strings.Contains(text, "▀") {
		t.Fatalf("expected a rendered code, got %q", text)
	}
}
