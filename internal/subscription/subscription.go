// Package subscription models user subscriptions to tracked operators as a
// flat set of (user, entity, kind) keys.
package subscription

import (
	"fmt"
	"sort"
	"strings"
)

// Kind selects which notification a subscription drives.
type Kind string

const (
	// Daily subscribers receive the private digest.
	Daily Kind = "daily"
	// Alerts subscribers are mentioned in the broadcast threshold report.
	Alerts Kind = "alerts"
)

// ParseKind validates a user-supplied kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case Daily, Alerts:
		return k, nil
	default:
		return "", fmt.Errorf("unknown subscription kind %q (expected daily or alerts)", raw)
	}
}

// Key uniquely identifies one subscription.
type Key struct {
	UserID   int64
	EntityID int64
	Kind     Kind
}

// Set is an unordered collection of subscriptions.
type Set map[Key]struct{}

// NewSet builds a set from keys.
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts a key.
func (s Set) Add(k Key) { s[k] = struct{}{} }

// Has reports whether the key is present.
func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// EntityIDs returns every entity with at least one subscription of kind, ascending.
func (s Set) EntityIDs(kind Kind) []int64 {
	seen := make(map[int64]struct{})
	for k := range s {
		if k.Kind == kind {
			seen[k.EntityID] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Users returns the distinct users subscribed to kind for any of the given
// entities, ascending. A user subscribed to several of them appears once.
func (s Set) Users(entityIDs []int64, kind Kind) []int64 {
	targets := make(map[int64]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		targets[id] = struct{}{}
	}
	seen := make(map[int64]struct{})
	for k := range s {
		if k.Kind != kind {
			continue
		}
		if _, ok := targets[k.EntityID]; ok {
			seen[k.UserID] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Entities returns the entities a user is subscribed to for kind, ascending.
func (s Set) Entities(userID int64, kind Kind) []int64 {
	seen := make(map[int64]struct{})
	for k := range s {
		if k.UserID == userID && k.Kind == kind {
			seen[k.EntityID] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
