package game

import (
	"math/rand"
	"sort"
	"strings"
)

// Hat is the shared pool of words still in play. Words are compared
// case-insensitively; duplicates collapse into one entry.
type Hat struct {
	words map[string]struct{}
}

func NewHat() *Hat {
	return &Hat{words: make(map[string]struct{})}
}

func (h *Hat) Put(word string) {
	h.words[strings.ToLower(word)] = struct{}{}
}

// Remove takes a word out of play. Removing an absent word is a no-op.
func (h *Hat) Remove(word string) {
	delete(h.words, strings.ToLower(word))
}

// Draw picks a uniformly random word without removing it.
func (h *Hat) Draw() (string, bool) {
	if len(h.words) == 0 {
		return "", false
	}
	n := rand.Intn(len(h.words))
	for w := range h.words {
		if n == 0 {
			return w, true
		}
		n--
	}
	return "", false
}

func (h *Hat) Len() int { return len(h.words) }

func (h *Hat) Contains(word string) bool {
	_, ok := h.words[strings.ToLower(word)]
	return ok
}

// Words returns the remaining words in sorted order.
func (h *Hat) Words() []string {
	out := make([]string, 0, len(h.words))
	for w := range h.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
