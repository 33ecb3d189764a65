package command

import (
	"sync"
	"time"
)

// key identifies one sent message.
type key struct {
	chatID    int64
	messageID int
}

type entry struct {
	reply     ReplyWaiter
	callback  CallbackWaiter
	updatedAt time.Time
}

// Tracker holds at most one pending reply waiter and one pending callback
// waiter per (chat, message). Every method runs as a single critical section.
type Tracker struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[key]*entry
}

func NewTracker() *Tracker {
	return &Tracker{
		now:     time.Now,
		entries: make(map[key]*entry),
	}
}

// ExpectReply sets the reply waiter for the message, replacing any previous
// one and keeping a pending callback waiter.
func (t *Tracker) ExpectReply(w ReplyWaiter, chatID int64, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(key{chatID, messageID})
	e.reply = w
}

// ExpectCallback sets the callback waiter for the message, replacing any
// previous one and keeping a pending reply waiter.
func (t *Tracker) ExpectCallback(w CallbackWaiter, chatID int64, messageID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(key{chatID, messageID})
	e.callback = w
}

// ConsumeReply takes the reply waiter for the message. On a hit the whole
// entry is removed, so a reply waiter fires at most once. A miss leaves the
// table untouched.
func (t *Tracker) ConsumeReply(chatID int64, messageID int) (ReplyWaiter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{chatID, messageID}
	e, ok := t.entries[k]
	if !ok || e.reply == nil {
		return nil, false
	}

	delete(t.entries, k)
	return e.reply, true
}

// ConsumeCallback takes the callback waiter for the message and removes the
// entry. An entry without a callback waiter is stale and is removed as well.
func (t *Tracker) ConsumeCallback(chatID int64, messageID int) (CallbackWaiter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{chatID, messageID}
	e, ok := t.entries[k]
	if !ok {
		return nil, false
	}

	delete(t.entries, k)
	if e.callback == nil {
		return nil, false
	}
	return e.callback, true
}

// Forget drops any pending waiters for the message.
func (t *Tracker) Forget(chatID int64, messageID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{chatID, messageID}
	if _, ok := t.entries[k]; !ok {
		return false
	}
	delete(t.entries, k)
	return true
}

// Sweep removes entries not updated since cutoff and returns how many were
// removed.
func (t *Tracker) Sweep(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, e := range t.entries {
		if e.updatedAt.Before(cutoff) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) entryLocked(k key) *entry {
	e, ok := t.entries[k]
	if !ok {
		e = &entry{}
		t.entries[k] = e
	}
	e.updatedAt = t.now()
	return e
}
