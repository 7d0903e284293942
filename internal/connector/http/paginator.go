package http

import (
	"context"
	"encoding/json"
	"net/http"
)

// =============================================================================
// PAGINATION STRATEGIES
// =============================================================================

// Paginator handles API pagination.
type Paginator interface {
	// NextPage returns the request for the next page, or nil if done.
	NextPage(ctx context.Context, resp *Response) (*Request, error)
}

// =============================================================================
// LINK PAGINATION
// =============================================================================

// LinkPaginator follows an absolute "next" URL embedded in each page, such as
// Planet's {"_links": {"_next": "..."}}.
type LinkPaginator struct {
	// LinksKey is the object holding links (default: "_links").
	LinksKey string
	// NextKey is the member holding the next URL (default: "_next").
	NextKey string
}

// NewLinkPaginator returns a paginator for Planet style responses.
func NewLinkPaginator() *LinkPaginator {
	return &LinkPaginator{LinksKey: "_links", NextKey: "_next"}
}

// NextPage returns the next page request based on response.
func (p *LinkPaginator) NextPage(ctx context.Context, resp *Response) (*Request, error) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, err
	}
	rawLinks, ok := data[p.LinksKey]
	if !ok {
		return nil, nil
	}
	var links map[string]any
	if err := json.Unmarshal(rawLinks, &links); err != nil {
		return nil, err
	}
	next, _ := links[p.NextKey].(string)
	if next == "" {
		return nil, nil
	}
	return &Request{Method: http.MethodGet, URL: next}, nil
}

// =============================================================================
// PAGINATED ITERATOR
// =============================================================================

// PaginatedIterator fetches all pages from an API.
type PaginatedIterator[T any] struct {
	client       *Client
	paginator    Paginator
	parseResults func(resp *Response) ([]T, error)

	current     []T
	currentIdx  int
	nextRequest *Request
	done        bool
	err         error
}

// NewPaginatedIterator creates a paginated iterator.
func NewPaginatedIterator[T any](
	client *Client,
	firstRequest *Request,
	paginator Paginator,
	parseResults func(resp *Response) ([]T, error),
) *PaginatedIterator[T] {
	return &PaginatedIterator[T]{
		client:       client,
		paginator:    paginator,
		parseResults: parseResults,
		nextRequest:  firstRequest,
	}
}

// Next advances to the next item, fetching pages as needed. Empty pages in the
// middle of a sequence are skipped.
func (it *PaginatedIterator[T]) Next(ctx context.Context) bool {
	for {
		if it.currentIdx < len(it.current) {
			return true
		}
		if it.done || it.nextRequest == nil {
			return false
		}

		resp, err := it.client.Do(ctx, it.nextRequest)
		if err != nil {
			it.err = err
			return false
		}
		results, err := it.parseResults(resp)
		if err != nil {
			it.err = err
			return false
		}
		nextReq, err := it.paginator.NextPage(ctx, resp)
		if err != nil {
			it.err = err
			return false
		}

		it.current = results
		it.currentIdx = 0
		it.nextRequest = nextReq
		it.done = nextReq == nil
	}
}

// Value returns the current item and advances.
func (it *PaginatedIterator[T]) Value() T {
	if it.currentIdx < len(it.current) {
		val := it.current[it.currentIdx]
		it.currentIdx++
		return val
	}
	var zero T
	return zero
}

// Err returns any error encountered.
func (it *PaginatedIterator[T]) Err() error {
	return it.err
}

// Collect drains the iterator.
func Collect[T any](ctx context.Context, it *PaginatedIterator[T]) ([]T, error) {
	var out []T
	for it.Next(ctx) {
		out = append(out, it.Value())
	}
	return out, it.Err()
}
