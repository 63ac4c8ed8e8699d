package reply

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

var rules = []store.KeywordReply{
	{Keyword: "harga", Response: "Harga mulai Rp 10.000"},
	{Keyword: "Jam Buka", Response: "Buka 08.00-17.00"},
	{Keyword: "halo", Response: "Halo juga!"},
}

func TestMatch(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"harga", "Harga mulai Rp 10.000"},
		{"HARGA", "Harga mulai Rp 10.000"},
		{"berapa harganya kak?", "Harga mulai Rp 10.000"},
		{"jam buka toko?", "Buka 08.00-17.00"},
		{"halo, berapa harga?", "Harga mulai Rp 10.000"},
		{"terima kasih", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Match(rules, tc.text); got != tc.want {
			t.Errorf("Match(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestMatchSkipsBlankKeywords(t *testing.T) {
	got := Match([]store.KeywordReply{{Keyword: " ", Response: "x"}}, "anything")
	if got != "" {
		t.Errorf("Match() = %q, want empty", got)
	}
}

func TestKeywordMatcherReadsStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	m := NewKeywordMatcher(db)
	if got, _ := m.Reply(context.Background(), "harga"); got != "" {
		t.Fatalf("Reply() with no rules = %q", got)
	}
	if err := db.AddKeywordReply(&store.KeywordReply{Keyword: "harga", Response: "murah"}); err != nil {
		t.Fatalf("AddKeywordReply() error = %v", err)
	}
	got, err := m.Reply(context.Background(), "Harga?")
	if err != nil || got != "murah" {
		t.Errorf("Reply() = %q, %v; want murah", got, err)
	}
}

type sourceFunc func(ctx context.Context, text string) (string, error)

func (f sourceFunc) Reply(ctx context.Context, text string) (string, error) { return f(ctx, text) }

func TestChainPrefersKeyword(t *testing.T) {
	called := false
	c := Chain{
		Keyword: sourceFunc(func(context.Context, string) (string, error) { return "keyword", nil }),
		Fallback: sourceFunc(func(context.Context, string) (string, error) {
			called = true
			return "generated", nil
		}),
	}
	got, err := c.Reply(context.Background(), "harga")
	if err != nil || got != "keyword" {
		t.Fatalf("Reply() = %q, %v", got, err)
	}
	if called {
		t.Error("fallback should not run when a keyword matched")
	}
}

func TestChainFallback(t *testing.T) {
	c := Chain{
		Keyword:  sourceFunc(func(context.Context, string) (string, error) { return "", nil }),
		Fallback: sourceFunc(func(context.Context, string) (string, error) { return "  generated\n", nil }),
	}
	got, err := c.Reply(context.Background(), "apa kabar")
	if err != nil || got != "generated" {
		t.Fatalf("Reply() = %q, %v", got, err)
	}

	c.Fallback = sourceFunc(func(context.Context, string) (string, error) { return "", errors.New("quota") })
	if _, err := c.Reply(context.Background(), "apa kabar"); !errors.Is(err, session.ErrExternalService) {
		t.Errorf("Reply() error = %v, want session.ErrExternalService", err)
	}

	if got, err := (Chain{}).Reply(context.Background(), "x"); got != "" || err != nil {
		t.Errorf("empty Chain Reply() = %q, %v", got, err)
	}
}

func TestChainFallsBackWhenRulesFail(t *testing.T) {
	c := Chain{
		Keyword:  sourceFunc(func(context.Context, string) (string, error) { return "", errors.New("database is locked") }),
		Fallback: sourceFunc(func(context.Context, string) (string, error) { return "generated", nil }),
		Logger:   zap.NewNop(),
	}
	got, err := c.Reply(context.Background(), "harga")
	if err != nil || got != "generated" {
		t.Fatalf("Reply() = %q, %v; want the fallback answer", got, err)
	}

	// Without a fallback the rule error is still reported.
	c.Fallback = nil
	if _, err := c.Reply(context.Background(), "harga"); err == nil {
		t.Error("Reply() without fallback should return the rule error")
	}
}

func TestGeminiSourceBuildsRequest(t *testing.T) {
	g := newGemini(GeminiOptions{SystemPrompt: "be brief", Timeout: time.Second})
	var gotModel, gotText, gotSystem string
	var hadDeadline bool
	g.generate = func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
		_, hadDeadline = ctx.Deadline()
		gotModel = model
		gotText = contents[0].Parts[0].Text
		gotSystem = cfg.SystemInstruction.Parts[0].Text
		return "ok", nil
	}

	got, err := g.Reply(context.Background(), "halo")
	if err != nil || got != "ok" {
		t.Fatalf("Reply() = %q, %v", got, err)
	}
	if gotModel != "gemini-2.5-flash" || gotText != "halo" || gotSystem != "be brief" || !hadDeadline {
		t.Errorf("request model=%q text=%q system=%q deadline=%v", gotModel, gotText, gotSystem, hadDeadline)
	}
}

func TestNewGeminiSourceRequiresKey(t *testing.T) {
	if _, err := NewGeminiSource(context.Background(), GeminiOptions{}); err == nil {
		t.Error("expected error without api key")
	}
}
