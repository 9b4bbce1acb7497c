package app

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

// DefaultSummarySentences is the sentence count of a chat summary.
const DefaultSummarySentences = 3

// sentenceEdgeBoost weights the first and last sentence of a summary.
const sentenceEdgeBoost = 1.2

// HistoryBuffer keeps the most recent chat messages across all channels.
// After every Record it holds at most capacity entries, none older than
// maxAge at the time of that Record.
type HistoryBuffer struct {
	capacity int
	maxAge   time.Duration
	clock    clockwork.Clock

	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func NewHistoryBuffer(capacity int, maxAge time.Duration, clock clockwork.Clock) *HistoryBuffer {
	return &HistoryBuffer{
		capacity: max(capacity, 0),
		maxAge:   maxAge,
		clock:    clock,
		entries:  make([]domain.HistoryEntry, 0, max(capacity, 0)),
	}
}

// Record evicts expired entries from the oldest end, makes room if the
// buffer is full and appends entry.
func (h *HistoryBuffer) Record(entry domain.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.clock.Now().Add(-h.maxAge)
	expired := 0
	for expired < len(h.entries) && h.entries[expired].Timestamp.Before(cutoff) {
		expired++
	}
	h.entries = h.entries[expired:]

	if h.capacity == 0 {
		h.entries = h.entries[:0]
		return
	}
	if len(h.entries) == h.capacity {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, entry)
}

// Summarize returns an extractive summary of the channel's messages:
// the maxSentences longest sentences, the first and last sentence weighted
// by 1.2, ordered by score. Length stands in for importance.
func (h *HistoryBuffer) Summarize(channel string, maxSentences int) string {
	h.mu.Lock()
	var messages []string
	for _, e := range h.entries {
		if e.Channel == channel {
			messages = append(messages, e.Message)
		}
	}
	h.mu.Unlock()

	if len(messages) == 0 || maxSentences <= 0 {
		return ""
	}
	return summarize(strings.Join(messages, "\n"), maxSentences)
}

func summarize(text string, maxSentences int) string {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	if len(sentences) == 0 {
		return ""
	}

	first := make(map[string]int, len(sentences))
	scores := make([]float64, len(sentences))
	for i, s := range sentences {
		scores[i] = float64(utf8.RuneCountInString(strings.TrimSpace(s)))
		if i == 0 || i == len(sentences)-1 {
			scores[i] *= sentenceEdgeBoost
		}
		if _, seen := first[s]; !seen {
			first[s] = i
		}
	}

	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	score := func(i int) float64 { return scores[first[sentences[i]]] }
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(score(b), score(a))
	})

	picked := make([]string, 0, min(maxSentences, len(order)))
	for _, i := range order[:min(maxSentences, len(order))] {
		picked = append(picked, sentences[i])
	}
	return strings.Join(picked, " ")
}

// DrainAll removes every entry and returns the messages oldest first.
func (h *HistoryBuffer) DrainAll() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.Message)
	}
	h.entries = h.entries[:0]
	return out
}

// Drain removes the channel's entries and returns their messages oldest
// first. Entries of other channels stay.
func (h *HistoryBuffer) Drain(channel string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []string
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.Channel == channel {
			out = append(out, e.Message)
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept
	return out
}

func (h *HistoryBuffer) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *HistoryBuffer) Entries() []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries)
}
