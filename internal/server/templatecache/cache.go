// Package templatecache resolves template ids to content, fetching from the
// remote authority on first use and keeping the result in the database.
//
// The unique key on the template id is the only coordination between
// workers. Every caller that finds the entry unfilled polls the authority
// and the first successful fill wins.
package templatecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/dmitrijs2005/sheetscan/internal/server/authority"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/templates"
)

// Fetcher is the remote authority. A nil payload means "not yet".
type Fetcher interface {
	Resolve(ctx context.Context, templateID string) (json.RawMessage, error)
}

// Observer receives cache outcomes for metrics. Any method may be a no-op.
type Observer interface {
	CacheHit()
	CacheMiss()
	Poll(ok bool)
}

type nopObserver struct{}

func (nopObserver) CacheHit()   {}
func (nopObserver) CacheMiss()  {}
func (nopObserver) Poll(_ bool) {}

type Options struct {
	Backoff Backoff
	// MaxWait bounds the total time spent polling for a single Resolve.
	MaxWait  time.Duration
	Observer Observer
}

type Cache struct {
	repo    templates.Repository
	fetcher Fetcher
	log     logging.Logger
	backoff Backoff
	maxWait time.Duration
	obs     Observer

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(repo templates.Repository, fetcher Fetcher, log logging.Logger, opts Options) *Cache {
	if opts.MaxWait <= 0 {
		opts.MaxWait = time.Minute
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Cache{
		repo:    repo,
		fetcher: fetcher,
		log:     log,
		backoff: opts.Backoff,
		maxWait: opts.MaxWait,
		obs:     opts.Observer,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolve returns the filled template for templateID.
//
// Errors: common.ErrNotResolvable for an empty id, common.ErrTemplateTimeout
// when the authority has not produced content within MaxWait, the context
// error on cancellation, or a wrapped storage error.
func (c *Cache) Resolve(ctx context.Context, templateID string) (*models.Template, error) {
	if templateID == "" {
		return nil, common.ErrNotResolvable
	}

	t, err := c.repo.Get(ctx, templateID)
	switch {
	case err == nil && t.Filled():
		c.obs.CacheHit()
		return t, nil
	case err == nil:
		// Pending: someone else created it and is (or was) polling.
	case errors.Is(err, common.ErrorNotFound):
		if _, err := c.repo.Create(ctx, templateID); err != nil && !errors.Is(err, common.ErrAlreadyExists) {
			return nil, fmt.Errorf("create template entry: %w", err)
		}
	default:
		return nil, fmt.Errorf("get template: %w", err)
	}

	c.obs.CacheMiss()
	return c.await(ctx, templateID)
}

func (c *Cache) await(ctx context.Context, templateID string) (*models.Template, error) {
	deadline := c.now().Add(c.maxWait)
	log := c.log.With("template_id", templateID)
	rng := rand.New(rand.NewSource(c.now().UnixNano()))

	for attempt := 1; ; attempt++ {
		t, err := c.repo.Get(ctx, templateID)
		if err != nil {
			return nil, fmt.Errorf("get template: %w", err)
		}
		if t.Filled() {
			return t, nil
		}

		content, err := c.fetcher.Resolve(ctx, templateID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn(ctx, "template authority request failed", "attempt", attempt, "error", err)
		}
		c.obs.Poll(len(content) > 0)

		if len(content) > 0 {
			pages := authority.PageCount(content, common.DefaultTemplatePages)
			won, err := c.repo.Fill(ctx, templateID, content, pages)
			if err != nil {
				return nil, fmt.Errorf("fill template: %w", err)
			}
			if won {
				log.Info(ctx, "template cached", "pages", pages, "attempts", attempt)
				t.Content, t.PageCount = content, pages
				return t, nil
			}
			// Lost the fill race; the next Get returns the winner's content.
			continue
		}

		delay := c.backoff.Delay(attempt, rng)
		if c.now().Add(delay).After(deadline) {
			log.Warn(ctx, "gave up waiting for template", "attempts", attempt)
			return nil, common.ErrTemplateTimeout
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
