// SPDX-License-Identifier: GPL-3.0-only

// Package looper provides the single-goroutine message loop that owns all control state.
//
// Work is posted as closures with a due time. Only the goroutine inside Run (or a test
// calling RunDue) executes them, so state touched exclusively from posted closures needs
// no locking. Timers are plain messages; cancelling a Token drops the message silently.
package looper

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Token identifies a posted message so it can be cancelled.
type Token uint64

type message struct {
	token Token
	when  time.Time
	fn    func()
	index int
}

type messageQueue []*message

func (q messageQueue) Len() int { return len(q) }

func (q messageQueue) Less(i, j int) bool {
	if q[i].when.Equal(q[j].when) {
		return q[i].token < q[j].token
	}
	return q[i].when.Before(q[j].when)
}

func (q messageQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *messageQueue) Push(x any) {
	m := x.(*message)
	m.index = len(*q)
	*q = append(*q, m)
}

func (q *messageQueue) Pop() any {
	old := *q
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	m.index = -1
	*q = old[:n-1]
	return m
}

// Looper is a time-ordered message queue drained by a single goroutine.
// Post, PostDelayed, PostAt and Cancel are safe to call from any goroutine.
type Looper struct {
	clock Clock

	mu       sync.Mutex
	queue    messageQueue
	byToken  map[Token]*message
	next     Token
	wake     chan struct{}
	executed uint64
}

// New creates a Looper that reads time from clock.
func New(clock Clock) *Looper {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Looper{
		clock:   clock,
		byToken: make(map[Token]*message),
		wake:    make(chan struct{}, 1),
	}
}

// Now returns the looper's notion of the current time.
func (l *Looper) Now() time.Time {
	return l.clock.Now()
}

// Post queues fn to run as soon as possible.
func (l *Looper) Post(fn func()) Token {
	return l.PostAt(l.clock.Now(), fn)
}

// PostDelayed queues fn to run after d has elapsed.
func (l *Looper) PostDelayed(d time.Duration, fn func()) Token {
	return l.PostAt(l.clock.Now().Add(d), fn)
}

// PostAt queues fn to run at or after when.
func (l *Looper) PostAt(when time.Time, fn func()) Token {
	l.mu.Lock()
	l.next++
	m := &message{token: l.next, when: when, fn: fn}
	heap.Push(&l.queue, m)
	l.byToken[m.token] = m
	l.mu.Unlock()

	l.signal()
	return m.token
}

// Cancel removes a queued message. It reports whether the message was still pending.
func (l *Looper) Cancel(token Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.byToken[token]
	if !ok {
		return false
	}
	delete(l.byToken, token)
	heap.Remove(&l.queue, m.index)
	return true
}

// Pending returns the number of queued messages.
func (l *Looper) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Executed returns how many messages have run since the looper was created.
func (l *Looper) Executed() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.executed
}

// RunDue runs every message due at the current clock time, including messages that
// become due while draining. It returns the number of messages run.
func (l *Looper) RunDue() int {
	count := 0
	for {
		m := l.popDue(l.clock.Now())
		if m == nil {
			return count
		}
		m.fn()
		count++
	}
}

// Run drains the queue until ctx is cancelled.
func (l *Looper) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.RunDue()

		wait := time.Hour
		if when, ok := l.nextDue(); ok {
			wait = when.Sub(l.clock.Now())
			if wait <= 0 {
				continue
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timer.C:
		}
	}
}

func (l *Looper) popDue(now time.Time) *message {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 || l.queue[0].when.After(now) {
		return nil
	}
	m := heap.Pop(&l.queue).(*message)
	delete(l.byToken, m.token)
	l.executed++
	return m
}

func (l *Looper) nextDue() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return time.Time{}, false
	}
	return l.queue[0].when, true
}

func (l *Looper) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
