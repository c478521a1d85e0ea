package push

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WaitState classifies one poll of a pending push login.
type WaitState int

const (
	// TooEarly means the poll referenced a message not yet registered.
	TooEarly WaitState = iota
	// Waiting means no answer arrived yet; poll again after the advised
	// backoff.
	Waiting
	// Complete means the device answered; consult Approved.
	Complete
	// Timeout means the message's deadline passed before an answer.
	Timeout
	// Spammed means the client polled faster than the allowed rate.
	Spammed
)

func (s WaitState) String() string {
	switch s {
	case TooEarly:
		return "TOO_EARLY"
	case Waiting:
		return "WAITING"
	case Complete:
		return "COMPLETE"
	case Timeout:
		return "TIMEOUT"
	case Spammed:
		return "SPAMMED"
	default:
		return fmt.Sprintf("WaitState(%d)", int(s))
	}
}

// Advice is the advisor's verdict for one poll.
type Advice struct {
	State    WaitState
	Approved bool
	// RetryMillis is the backoff before the next poll, set when State is
	// Waiting.
	RetryMillis int
}

// pollBucket is a per-message token bucket. Tokens refill at the
// configured sustained rate up to the burst ceiling.
type pollBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
	polls      int
}

// Advisor computes the wait state for each poll of a pending push login:
// deadline expiry, poll-rate abuse, and the dispatcher's message state.
type Advisor struct {
	dispatcher Dispatcher

	// Sustained polls per second and burst allowance before a poller is
	// flagged as spamming.
	rate  float64
	burst int

	mu      sync.Mutex
	buckets map[string]*pollBucket
}

// NewAdvisor creates an advisor polling dispatcher with the given rate
// limit.
func NewAdvisor(dispatcher Dispatcher, rate float64, burst int) *Advisor {
	return &Advisor{
		dispatcher: dispatcher,
		rate:       rate,
		burst:      burst,
		buckets:    make(map[string]*pollBucket),
	}
}

// allow consumes one poll token for the message, refilling on elapsed
// time like a standard token bucket.
func (a *Advisor) allow(messageID string, now time.Time) (ok bool, polls int) {
	a.mu.Lock()
	b, exists := a.buckets[messageID]
	if !exists {
		b = &pollBucket{tokens: float64(a.burst), lastUpdate: now}
		a.buckets[messageID] = b
	}
	a.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastUpdate)
	if elapsed > 0 {
		b.tokens += elapsed.Seconds() * a.rate
		if b.tokens > float64(a.burst) {
			b.tokens = float64(a.burst)
		}
		b.lastUpdate = now
	}

	b.polls++
	if b.tokens >= 1 {
		b.tokens--
		return true, b.polls
	}
	return false, b.polls
}

// backoffMillis grows the advised poll interval with each poll, capped.
func backoffMillis(polls int) int {
	const base, step, ceiling = 2000, 1000, 10000
	interval := base + step*(polls-1)
	if interval > ceiling {
		return ceiling
	}
	return interval
}

// Advise classifies one poll of the message against its deadline.
func (a *Advisor) Advise(ctx context.Context, messageID string, deadline time.Time, now time.Time) (*Advice, error) {
	if now.After(deadline) {
		a.forget(messageID)
		return &Advice{State: Timeout}, nil
	}

	allowed, polls := a.allow(messageID, now)
	if !allowed {
		a.forget(messageID)
		return &Advice{State: Spammed}, nil
	}

	state, err := a.dispatcher.Check(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("check push message: %w", err)
	}
	switch state {
	case StatusUnknown:
		return &Advice{State: TooEarly, RetryMillis: backoffMillis(polls)}, nil
	case StatusWaiting:
		return &Advice{State: Waiting, RetryMillis: backoffMillis(polls)}, nil
	case StatusApproved:
		a.forget(messageID)
		return &Advice{State: Complete, Approved: true}, nil
	case StatusDenied:
		a.forget(messageID)
		return &Advice{State: Complete, Approved: false}, nil
	default:
		return nil, fmt.Errorf("unexpected message state %v", state)
	}
}

// forget drops the message's poll bucket once its attempt ended.
func (a *Advisor) forget(messageID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buckets, messageID)
}
