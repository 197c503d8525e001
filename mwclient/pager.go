package mwclient

import (
	"context"

	"github.com/orlodrim/wikibot/jsonv"
	"github.com/orlodrim/wikibot/metrics"
)

// PagerAll asks a pager for every item.
const PagerAll = -1

// Pager drives a paged list query. The caller sets a total limit
// (PagerAll for everything); the pager picks a per-request size, feeds
// the server's continue object back, and stops when the limit is
// reached or the server stops returning one. The opaque continue token
// is the JSON text of the server's continue object, so enumerations
// can be suspended and resumed across processes.
type Pager struct {
	client *Client
	req    *Request
	// limitParam is the API's limit parameter, e.g. "cmlimit".
	limitParam string
	// listName locates the item array under the "query" object.
	listName string

	limit     int
	cont      string
	exhausted bool
	lastQuery string
	returned  int

	// extract pulls the items out of one response.
	extract func(query *jsonv.Value) []*jsonv.Value
}

// NewPager prepares a paged enumeration for the given list query.
func (c *Client) NewPager(req *Request, listName, limitParam string) *Pager {
	p := &Pager{
		client:     c,
		req:        req,
		limitParam: limitParam,
		listName:   listName,
		limit:      PagerAll,
	}
	p.extract = func(query *jsonv.Value) []*jsonv.Value {
		var items []*jsonv.Value
		list := query.Get(p.listName)
		for i := 0; i < list.Len(); i++ {
			items = append(items, list.Index(i))
		}
		return items
	}
	return p
}

// NewPropPager prepares a paged enumeration for a prop query, whose
// items hang off each page object instead of a top-level list.
func (c *Client) NewPropPager(req *Request, propName, limitParam string) *Pager {
	p := c.NewPager(req, propName, limitParam)
	p.extract = func(query *jsonv.Value) []*jsonv.Value {
		var items []*jsonv.Value
		pages := query.Get("pages")
		for i := 0; i < pages.Len(); i++ {
			list := pages.Index(i).Get(propName)
			for j := 0; j < list.Len(); j++ {
				items = append(items, list.Index(j))
			}
		}
		return items
	}
	return p
}

// SetLimit bounds the total number of items; PagerAll means all.
func (p *Pager) SetLimit(limit int) { p.limit = limit }

// ContinueToken returns the current resume position, or "" when the
// enumeration is finished or has not produced a partial page yet.
func (p *Pager) ContinueToken() string { return p.cont }

// SetContinueToken resumes from a token obtained earlier.
func (p *Pager) SetContinueToken(token string) error {
	if token != "" {
		if _, err := jsonv.Parse(token); err != nil {
			return &ParseError{Message: "continue token: " + err.Error()}
		}
	}
	p.cont = token
	return nil
}

// requestSize picks the per-request limit.
func (p *Pager) requestSize() int {
	size := p.client.pagerLimit
	if p.limit != PagerAll {
		if remaining := p.limit - p.returned; remaining < size {
			size = remaining
		}
	}
	return size
}

// Next returns the next batch of items, or nil when the enumeration is
// done.
func (p *Pager) Next(ctx context.Context) ([]*jsonv.Value, error) {
	if p.exhausted || (p.limit != PagerAll && p.returned >= p.limit) {
		return nil, nil
	}

	if p.limitParam != "" {
		p.req.SetInt(p.limitParam, int64(p.requestSize()))
	}
	// Replace the previous continue parameters with the current ones.
	p.req.Set("continue", "")
	contParams := map[string]bool{}
	if p.cont != "" {
		contObj, err := jsonv.Parse(p.cont)
		if err != nil {
			return nil, &ParseError{Message: "continue token: " + err.Error()}
		}
		for _, key := range contObj.Keys() {
			p.req.Set(key, scalarText(contObj.Get(key)))
			contParams[key] = true
		}
	}

	query := p.req.encode(p.client.ambientParams())
	if query == p.lastQuery {
		return nil, &UnexpectedAPIResponseError{Message: "pager is looping on request " + query}
	}
	p.lastQuery = query
	metrics.PagerRequests.WithLabelValues(p.listName).Inc()

	result, err := p.client.Do(ctx, p.req)
	if err != nil {
		return nil, err
	}

	var items []*jsonv.Value
	if result.Has("query") {
		items = p.extract(result.Get("query"))
	}
	if p.limit != PagerAll && p.returned+len(items) > p.limit {
		items = items[:p.limit-p.returned]
	}
	p.returned += len(items)

	if result.Has("continue") {
		p.cont = result.Get("continue").String()
	} else {
		p.cont = ""
		p.exhausted = true
	}
	// Drop continue parameters that the new token no longer carries.
	for key := range contParams {
		contObj, _ := jsonv.Parse(p.cont)
		if p.cont == "" || contObj == nil || !contObj.Has(key) {
			p.req.params.Del(key)
		}
	}
	return items, nil
}

// Collect runs the pager to completion and returns every item.
func (p *Pager) Collect(ctx context.Context) ([]*jsonv.Value, error) {
	var all []*jsonv.Value
	for !p.exhausted && (p.limit == PagerAll || p.returned < p.limit) {
		batch, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

// scalarText renders a continue value the way it goes into a query
// parameter: strings unquoted, numbers as their literal text.
func scalarText(v *jsonv.Value) string {
	if v.Kind() == jsonv.String {
		return v.Str()
	}
	return v.String()
}
