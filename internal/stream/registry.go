package stream

import "sort"

// Wildcard matches any instrument or timeframe in a subscription.
const Wildcard = "*"

// topicSeparator joins instrument and timeframe into a canonical key.
const topicSeparator = "_"

// Topic is an (instrument, timeframe) subscription pair.
type Topic struct {
	Instrument string
	Timeframe  string
}

// Key returns the canonical registry key.
func (t Topic) Key() string {
	return t.Instrument + topicSeparator + t.Timeframe
}

// registry is the set of topics the consumer wants. Its contents are
// independent of connection state: a disconnect never clears it, and every
// successful open replays it in full before the outbound queue is flushed.
type registry struct {
	topics map[string]Topic
}

func newRegistry() *registry {
	return &registry{topics: make(map[string]Topic)}
}

// add inserts a topic. Returns false if it was already present.
func (r *registry) add(t Topic) bool {
	key := t.Key()
	if _, ok := r.topics[key]; ok {
		return false
	}
	r.topics[key] = t
	return true
}

// remove deletes a topic. Removing an absent topic is a no-op.
func (r *registry) remove(t Topic) bool {
	key := t.Key()
	if _, ok := r.topics[key]; !ok {
		return false
	}
	delete(r.topics, key)
	return true
}

func (r *registry) len() int {
	return len(r.topics)
}

// snapshot returns all topics, sorted by key for deterministic replay.
func (r *registry) snapshot() []Topic {
	topics := make([]Topic, 0, len(r.topics))
	for _, t := range r.topics {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Key() < topics[j].Key()
	})
	return topics
}

// keys returns the canonical keys, sorted.
func (r *registry) keys() []string {
	keys := make([]string, 0, len(r.topics))
	for key := range r.topics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
