package session

import (
	"sync"

	"streamcast/internal/domain"
)

const maxRetries = 3

// RetryPolicy guards start attempts with a bounded, user-triggered retry
// budget. It remembers the most recent start request so a retry can replay
// it without the caller resupplying arguments.
type RetryPolicy struct {
	mu     sync.Mutex
	max    int
	count  int
	source string
	opts   domain.StartOptions
	stored bool
}

func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{max: maxRetries}
}

// Remember records the request behind the current start attempt. Switching
// to a different source abandons the previous retry budget.
func (p *RetryPolicy) Remember(source string, opts domain.StartOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stored && p.source != source {
		p.count = 0
	}
	p.source = source
	p.opts = opts
	p.stored = true
}

// Request returns the remembered start arguments, if any.
func (p *RetryPolicy) Request() (string, domain.StartOptions, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source, p.opts, p.stored
}

// Retry consumes one unit of the retry budget. The caller invokes it only
// in response to an explicit user action.
func (p *RetryPolicy) Retry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
}

// OnFailure reports whether the user may still be offered a retry. Once
// the budget is spent the failure is terminal and the counter resets so a
// later request starts from a clean slate.
func (p *RetryPolicy) OnFailure() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count < p.max {
		return true
	}
	p.count = 0
	return false
}

// OnSuccess resets the budget. Called when a session actually begins
// transferring.
func (p *RetryPolicy) OnSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = 0
}

func (p *RetryPolicy) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
