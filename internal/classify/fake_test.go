package classify

import (
	"context"
	"strconv"
	"sync"

	"github.com/hyperjump/taxonomia/internal/llm"
)

// scriptedClient replays canned responses in call order and records requests.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []llm.Request
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Generate(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.requests)
	c.requests = append(c.requests, req)
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", nil
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type fixedIDs struct{ n int }

func (f *fixedIDs) Next() string {
	f.n++
	return "id-" + strconv.Itoa(f.n)
}
