// Package assistant resolves a conversation to the next assistant reply.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/catalog"
	"github.com/Wainainajnr/ngongtownbot/internal/completion"
	"github.com/Wainainajnr/ngongtownbot/internal/domain"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/intent"
)

// DefaultCompletionTimeout bounds a completion call when none is configured.
const DefaultCompletionTimeout = 20 * time.Second

// Source tells where a reply came from.
type Source string

const (
	SourceCatalog    Source = "catalog"
	SourceCompletion Source = "completion"
	SourceFallback   Source = "fallback"
)

// Reply is a resolved assistant turn. All behavioural branching is driven by
// Key, never by the text.
type Reply struct {
	Text        string
	Key         catalog.Key
	Source      Source
	OpenForm    bool
	DisplayHint string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProvider sets the completion provider used for unmatched input.
func WithProvider(p completion.Provider) Option {
	return func(r *Resolver) { r.provider = p }
}

// WithTimeout bounds each completion call.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Resolver picks canned replies and escalates unmatched input.
type Resolver struct {
	catalog  *catalog.Catalog
	router   *intent.Router
	msgs     *i18n.Catalog
	provider completion.Provider
	timeout  time.Duration
}

// New creates a Resolver. Without a provider, unmatched input in strict mode
// gets the localized fallback text.
func New(c *catalog.Catalog, router *intent.Router, msgs *i18n.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog: c,
		router:  router,
		msgs:    msgs,
		timeout: DefaultCompletionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the reply to the most recent user turn. It only reads
// history. The sole error is domain.ErrEmptyInput; upstream failures degrade
// to the fallback reply.
func (r *Resolver) Resolve(ctx context.Context, history []domain.Turn, lang i18n.Language) (Reply, error) {
	text := domain.LastUserText(history)
	if strings.TrimSpace(text) == "" {
		return Reply{}, domain.ErrEmptyInput
	}

	m := r.router.Route(text)
	if !m.None() {
		return r.canned(m, lang), nil
	}

	if r.provider == nil {
		return r.fallback(lang), nil
	}

	reply, err := r.complete(ctx, history, lang)
	if err != nil {
		slog.Warn("Completion failed, using fallback reply",
			"provider", r.provider.Name(),
			"error", err)
		return r.fallback(lang), nil
	}
	return Reply{Text: reply, Source: SourceCompletion}, nil
}

// Text renders a canned response outside of routing, e.g. for quick options.
func (r *Resolver) Text(key catalog.Key, lang i18n.Language) (string, bool) {
	return r.catalog.Text(key, lang)
}

func (r *Resolver) canned(m intent.Match, lang i18n.Language) Reply {
	entry, _ := r.catalog.Entry(m.Key)
	text, _ := r.catalog.Text(m.Key, lang)
	return Reply{
		Text:        text,
		Key:         m.Key,
		Source:      SourceCatalog,
		OpenForm:    m.FormRequested || entry.OpensForm,
		DisplayHint: entry.DisplayHint,
	}
}

func (r *Resolver) fallback(lang i18n.Language) Reply {
	return Reply{
		Text:   r.msgs.T(lang, "fallbackReply", r.catalog.Values(lang)),
		Source: SourceFallback,
	}
}

// complete calls the provider on its own goroutine so that a provider which
// ignores its context still cannot hold the caller past the timeout.
func (r *Resolver) complete(ctx context.Context, history []domain.Turn, lang i18n.Language) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := completion.Request{
		Preamble: r.catalog.SystemPreamble(lang),
		History:  append([]domain.Turn(nil), history...),
	}
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("completion provider panicked: %v", rec)}
			}
		}()
		text, err := r.provider.Complete(ctx, req)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if strings.TrimSpace(res.text) == "" {
			return "", completion.ErrEmptyCompletion
		}
		return res.text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("completion timed out: %w", ctx.Err())
	}
}
