package service

import (
	"sync"

	"github.com/craftapp/craftd/internal/domain/event"
)

// metadataCache stores the last observed metadata snapshot per session.
type metadataCache struct {
	mu        sync.RWMutex
	snapshots map[string]event.MetadataSnapshot
}

func newMetadataCache() *metadataCache {
	return &metadataCache{snapshots: make(map[string]event.MetadataSnapshot)}
}

// Metadata returns the stored snapshot for a session. It implements
// MetadataSource for the prompt pipeline.
func (c *metadataCache) Metadata(sessionID string) (event.MetadataSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[sessionID]
	return snap, ok
}

func (c *metadataCache) set(sessionID string, snap event.MetadataSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[sessionID] = snap
}

func (c *metadataCache) remove(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, sessionID)
}

func (c *metadataCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = make(map[string]event.MetadataSnapshot)
}

// diffEvent is one event implied by a metadata transition.
type diffEvent struct {
	typ     event.Type
	payload event.Payload
}

// diffSnapshots computes the events implied by moving a session from old to
// new, in emission order: permission mode, label additions, label removals,
// flag, session status. An unchanged field produces nothing.
func diffSnapshots(old, new event.MetadataSnapshot) []diffEvent {
	base := event.Payload{SessionName: new.SessionName}
	var out []diffEvent

	if old.PermissionMode != new.PermissionMode {
		p := base
		p.OldMode = old.PermissionMode
		p.NewMode = new.PermissionMode
		out = append(out, diffEvent{event.TypePermissionModeChange, p})
	}

	added, removed := diffLabels(old.Labels, new.Labels)
	for _, label := range added {
		p := base
		p.Label = label
		out = append(out, diffEvent{event.TypeLabelAdd, p})
	}
	for _, label := range removed {
		p := base
		p.Label = label
		out = append(out, diffEvent{event.TypeLabelRemove, p})
	}

	if old.IsFlagged != new.IsFlagged {
		p := base
		p.IsFlagged = event.Bool(new.IsFlagged)
		out = append(out, diffEvent{event.TypeFlagChange, p})
	}

	if old.SessionStatus != new.SessionStatus {
		p := base
		p.OldStatus = old.SessionStatus
		p.NewStatus = new.SessionStatus
		out = append(out, diffEvent{event.TypeSessionStatusChange, p})
	}

	return out
}

// diffLabels compares two label lists with set semantics. Results keep the
// order of their source list; duplicates within one list count once.
func diffLabels(old, new []string) (added, removed []string) {
	oldSet := make(map[string]bool, len(old))
	for _, label := range old {
		oldSet[label] = true
	}
	newSet := make(map[string]bool, len(new))
	for _, label := range new {
		newSet[label] = true
	}

	seen := make(map[string]bool)
	for _, label := range new {
		if !oldSet[label] && !seen[label] {
			seen[label] = true
			added = append(added, label)
		}
	}
	seen = make(map[string]bool)
	for _, label := range old {
		if !newSet[label] && !seen[label] {
			seen[label] = true
			removed = append(removed, label)
		}
	}
	return added, removed
}
