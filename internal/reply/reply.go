// Package reply produces automatic answers to inbound text.
package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// Source answers inbound text. An empty string means no answer.
type Source interface {
	Reply(ctx context.Context, text string) (string, error)
}

// RuleStore supplies keyword rules in match order.
type RuleStore interface {
	ListKeywordReplies() ([]store.KeywordReply, error)
}

// KeywordMatcher answers with the response of the first rule whose keyword
// occurs in the text, ignoring case. Rules are read on every call so edits
// take effect without a restart.
type KeywordMatcher struct {
	rules RuleStore
}

// NewKeywordMatcher creates a matcher over rules.
func NewKeywordMatcher(rules RuleStore) *KeywordMatcher {
	return &KeywordMatcher{rules: rules}
}

// Reply implements Source.
func (k *KeywordMatcher) Reply(_ context.Context, text string) (string, error) {
	rules, err := k.rules.ListKeywordReplies()
	if err != nil {
		return "", fmt.Errorf("load keyword rules: %w", err)
	}
	return Match(rules, text), nil
}

// Match returns the response of the first rule matching text, or "".
func Match(rules []store.KeywordReply, text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return ""
	}
	for _, r := range rules {
		kw := strings.ToLower(strings.TrimSpace(r.Keyword))
		if kw == "" {
			continue
		}
		if text == kw || strings.Contains(text, kw) {
			return r.Response
		}
	}
	return ""
}

// Chain asks Keyword first and falls back to Fallback when no rule matched
// or the rules could not be read. Any field may be nil.
type Chain struct {
	Keyword  Source
	Fallback Source
	Logger   *zap.Logger
}

// Reply implements Source. Fallback failures wrap session.ErrExternalService.
func (c Chain) Reply(ctx context.Context, text string) (string, error) {
	if c.Keyword != nil {
		res, err := c.Keyword.Reply(ctx, text)
		switch {
		case err != nil:
			if c.Fallback == nil {
				return "", err
			}
			if c.Logger != nil {
				c.Logger.Warn("keyword rules unavailable, using fallback", zap.Error(err))
			}
		case res != "":
			return res, nil
		}
	}
	if c.Fallback == nil {
		return "", nil
	}
	res, err := c.Fallback.Reply(ctx, text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", session.ErrExternalService, err)
	}
	return strings.TrimSpace(res), nil
}
