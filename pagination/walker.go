// Package pagination walks page-numbered GitHub listings as a lazy,
// single-pass sequence of decoded items.
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"githubactivity/github"
	"githubactivity/logger"

	"go.uber.org/zap"
)

// DefaultPageSize is GitHub's maximum per_page.
const DefaultPageSize = 100

// Options bounds a walk.
type Options[T any] struct {
	// PageSize is sent as per_page. Defaults to DefaultPageSize.
	PageSize int
	// MaxItems stops the walk once this many items were yielded.
	MaxItems int
	// MaxPages stops the walk after this many pages were requested.
	MaxPages int
	// Cutoff stops the walk at the first item whose TimeOf is before it.
	// Listings must be sorted newest first for this to be sound.
	Cutoff time.Time
	TimeOf func(T) time.Time
	// ItemsField names the array inside a wrapped response object, such as
	// "items" for search results. Empty means the body is the array.
	ItemsField string
}

// Walk is a lazy page walk over one endpoint. It is consumed once.
type Walk[T any] struct {
	fetcher  github.Fetcher
	endpoint string
	params   url.Values
	opts     Options[T]

	started atomic.Bool
	err     error
	partial bool
	pages   int
}

// New prepares a walk; nothing is fetched until the sequence is ranged over.
func New[T any](fetcher github.Fetcher, endpoint string, params url.Values, opts Options[T]) *Walk[T] {
	if opts.PageSize <= 0 || opts.PageSize > DefaultPageSize {
		opts.PageSize = DefaultPageSize
	}
	return &Walk[T]{
		fetcher:  fetcher,
		endpoint: endpoint,
		params:   params,
		opts:     opts,
	}
}

// All yields items page by page. A second call yields nothing.
func (w *Walk[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		if !w.started.CompareAndSwap(false, true) {
			return
		}

		yielded := 0
		for page := 1; ; page++ {
			if w.opts.MaxPages > 0 && page > w.opts.MaxPages {
				return
			}

			resp, err := w.fetcher.Fetch(ctx, w.endpoint, w.pageParams(page))
			if err != nil {
				w.fail(page, err)
				return
			}
			w.pages++

			items, err := decodeItems[T](resp.Body, w.opts.ItemsField)
			if err != nil {
				w.fail(page, fmt.Errorf("failed to decode page %d of %s: %w", page, w.endpoint, err))
				return
			}
			if len(items) == 0 {
				return
			}

			for _, item := range items {
				if w.beforeCutoff(item) {
					return
				}
				if !yield(item) {
					return
				}
				yielded++
				if w.opts.MaxItems > 0 && yielded >= w.opts.MaxItems {
					return
				}
			}

			if !resp.HasNext() {
				return
			}
		}
	}
}

// Err returns the error that ended the walk early, if any.
func (w *Walk[T]) Err() error { return w.err }

// Partial reports whether pages were yielded before a failure.
func (w *Walk[T]) Partial() bool { return w.partial }

// Pages returns how many pages were fetched successfully.
func (w *Walk[T]) Pages() int { return w.pages }

// Result is a materialized walk.
type Result[T any] struct {
	Items   []T
	Partial bool
	Err     error
	Pages   int
}

// Collect drains the walk into memory.
func (w *Walk[T]) Collect(ctx context.Context) Result[T] {
	var items []T
	for item := range w.All(ctx) {
		items = append(items, item)
	}
	return Result[T]{
		Items:   items,
		Partial: w.partial,
		Err:     w.err,
		Pages:   w.pages,
	}
}

func (w *Walk[T]) fail(page int, err error) {
	w.err = err
	w.partial = page > 1
	if w.partial {
		logger.Warn("Page walk ended early",
			zap.String("endpoint", w.endpoint),
			zap.Int("page", page),
			zap.Error(err))
	}
}

func (w *Walk[T]) beforeCutoff(item T) bool {
	if w.opts.Cutoff.IsZero() || w.opts.TimeOf == nil {
		return false
	}
	return w.opts.TimeOf(item).Before(w.opts.Cutoff)
}

func (w *Walk[T]) pageParams(page int) url.Values {
	params := make(url.Values, len(w.params)+2)
	for k, vs := range w.params {
		params[k] = append([]string(nil), vs...)
	}
	params.Set("per_page", strconv.Itoa(w.opts.PageSize))
	params.Set("page", strconv.Itoa(page))
	return params
}

func decodeItems[T any](body []byte, field string) ([]T, error) {
	var items []T
	if field == "" {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	raw, ok := wrapped[field]
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
