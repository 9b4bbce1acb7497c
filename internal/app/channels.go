package app

import (
	"slices"
	"strings"
	"sync"
)

// JoinedChannels is the set of channels whose chat the bot receives.
// Names compare case-insensitively.
type JoinedChannels struct {
	mu       sync.RWMutex
	channels map[string]struct{}
}

func NewJoinedChannels() *JoinedChannels {
	return &JoinedChannels{channels: make(map[string]struct{})}
}

func (j *JoinedChannels) Contains(channel string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	_, ok := j.channels[strings.ToLower(channel)]
	return ok
}

func (j *JoinedChannels) Add(channel string) {
	j.mu.Lock()
	j.channels[strings.ToLower(channel)] = struct{}{}
	j.mu.Unlock()
}

func (j *JoinedChannels) Remove(channel string) {
	j.mu.Lock()
	delete(j.channels, strings.ToLower(channel))
	j.mu.Unlock()
}

// Reset empties the set and returns what it held, sorted.
func (j *JoinedChannels) Reset() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.list()
	clear(j.channels)
	return out
}

func (j *JoinedChannels) List() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.list()
}

func (j *JoinedChannels) list() []string {
	out := make([]string, 0, len(j.channels))
	for c := range j.channels {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
