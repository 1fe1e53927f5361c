package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry is an Event linked into the trail's hash chain.
type Entry struct {
	Seq       uint64 `json:"seq"`
	Event     Event  `json:"event"`
	PrevHash  string `json:"prevHash"`
	EntryHash string `json:"entryHash"`
}

// Trail keeps the most recent audit events in memory, each entry hashed over its fields and
// the previous entry's hash.
type Trail struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	seq     uint64
	last    string
}

// NewTrail returns a trail retaining at most max entries. max <= 0 keeps everything.
func NewTrail(max int) *Trail {
	return &Trail{max: max}
}

func computeEntryHash(e Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|", e.Seq)
	h.Write([]byte(e.Event.Timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(e.Event.EventType))
	h.Write([]byte(e.Event.EntityID))
	h.Write([]byte(e.Event.Result))
	h.Write([]byte(e.Event.Reason))
	keys := make([]string, 0, len(e.Event.Metadata))
	for k := range e.Event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, e.Event.Metadata[k])
	}
	h.Write([]byte(e.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// LogEvent implements Logger.
func (t *Trail) LogEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := Entry{Seq: t.seq, Event: event, PrevHash: t.last}
	e.EntryHash = computeEntryHash(e)
	t.seq++
	t.last = e.EntryHash
	t.entries = append(t.entries, e)
	if t.max > 0 && len(t.entries) > t.max {
		t.entries = append([]Entry(nil), t.entries[len(t.entries)-t.max:]...)
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (t *Trail) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Verify checks entries for tampering and returns the sequence number of the first bad entry.
func Verify(entries []Entry) (uint64, bool) {
	for i, e := range entries {
		if computeEntryHash(e) != e.EntryHash {
			return e.Seq, false
		}
		if i > 0 && e.PrevHash != entries[i-1].EntryHash {
			return e.Seq, false
		}
	}
	return 0, true
}
