package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sales-dialer/internal/leads"
)

var ErrNotInPage = errors.New("queue: lead not in loaded callback page")

// CallbackSource lists callback leads assigned to an agent.
type CallbackSource interface {
	ListCallbacks(ctx context.Context, agentID string, offset, limit int) ([]leads.Lead, error)
}

type CallbackPage struct {
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Leads    []leads.Lead `json:"leads"`
	HasMore  bool         `json:"has_more"`
}

// CallbackQueue is the agent's "my callbacks" view. It is paginated
// independently of the main queue and never mutates it.
type CallbackQueue struct {
	src      CallbackSource
	agentID  string
	pageSize int

	mu      sync.Mutex
	current CallbackPage
}

func NewCallbackQueue(src CallbackSource, agentID string, pageSize int) *CallbackQueue {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &CallbackQueue{
		src:      src,
		agentID:  agentID,
		pageSize: pageSize,
		current:  CallbackPage{PageSize: pageSize, Leads: []leads.Lead{}},
	}
}

// LoadPage fetches a zero-based page. One extra row is requested to tell
// whether another page exists.
func (c *CallbackQueue) LoadPage(ctx context.Context, page int) (CallbackPage, error) {
	if page < 0 {
		page = 0
	}
	ls, err := c.src.ListCallbacks(ctx, c.agentID, page*c.pageSize, c.pageSize+1)
	if err != nil {
		return CallbackPage{}, fmt.Errorf("queue: load callbacks page %d: %w", page, err)
	}
	p := CallbackPage{Page: page, PageSize: c.pageSize, Leads: ls}
	if len(ls) > c.pageSize {
		p.Leads = ls[:c.pageSize]
		p.HasMore = true
	}

	c.mu.Lock()
	c.current = p
	c.mu.Unlock()
	return p, nil
}

// Reload refetches the page currently shown.
func (c *CallbackQueue) Reload(ctx context.Context) (CallbackPage, error) {
	c.mu.Lock()
	page := c.current.Page
	c.mu.Unlock()
	return c.LoadPage(ctx, page)
}

func (c *CallbackQueue) Page() CallbackPage {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.current
	p.Leads = append([]leads.Lead(nil), c.current.Leads...)
	return p
}

// Find looks a lead up in the loaded page.
func (c *CallbackQueue) Find(leadID string) (leads.Lead, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.current.Leads {
		if l.ID == leadID {
			return l, nil
		}
	}
	return leads.Lead{}, ErrNotInPage
}

// Drop removes a lead from the loaded page once it is no longer a callback.
func (c *CallbackQueue) Drop(leadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.current.Leads[:0:0]
	for _, l := range c.current.Leads {
		if l.ID != leadID {
			out = append(out, l)
		}
	}
	c.current.Leads = out
}
