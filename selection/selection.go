// Package selection accumulates the files picked for the next upload.
package selection

import (
	"fmt"
	"slices"
	"sync"

	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

// Unlimited is the quota of an authenticated identity.
const Unlimited = -1

// Selection holds the candidate items. It is locked while a transfer session is active.
type Selection struct {
	mu             sync.Mutex
	items          []types.SelectedItem
	nextID         int64
	locked         bool
	anonymousQuota int
	identity       func() types.Identity
	onChange       func()
}

// New creates an empty selection. identity is consulted on every add to pick the quota.
func New(anonymousQuota int, identity func() types.Identity) *Selection {
	if anonymousQuota <= 0 {
		anonymousQuota = tool.DefaultAnonymousQuota
	}
	if identity == nil {
		identity = func() types.Identity { return types.Identity{} }
	}
	return &Selection{anonymousQuota: anonymousQuota, identity: identity}
}

// SetOnChange registers a hook run after every mutation, outside the selection lock.
// The controller uses it to drop the previous share link.
func (s *Selection) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Quota returns the item limit for the current identity, or Unlimited.
func (s *Selection) Quota() int {
	if s.identity().Authenticated() {
		return Unlimited
	}
	return s.anonymousQuota
}

// AddItems filters junk, applies the quota and appends the accepted entries.
func (s *Selection) AddItems(entries []types.RawEntry, isFolderBatch bool) (types.AddResult, error) {
	quota := s.Quota()

	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return types.AddResult{}, types.ErrSessionBusy
	}

	var result types.AddResult
	candidates := make([]types.RawEntry, 0, len(entries))
	for _, entry := range entries {
		inFolder := isFolderBatch || entry.InFolder || tool.HasPathSeparator(entry.DisplayName)
		if entry.SizeBytes < 0 || (entry.SizeBytes == 0 && !inFolder) || tool.IsJunkName(entry.DisplayName) {
			tool.DefaultLogger.Debugf("[Selection] Skipping %q (%d bytes)", entry.DisplayName, entry.SizeBytes)
			result.Skipped++
			continue
		}
		entry.InFolder = inFolder
		candidates = append(candidates, entry)
	}

	accepted := candidates
	if quota != Unlimited {
		remaining := max(quota-len(s.items), 0)
		if len(candidates) > remaining {
			accepted = candidates[:remaining]
			result.Advisory = fmt.Sprintf("Anonymous uploads are limited to %d files. Added %d of %d; log in to add more.",
				quota, len(accepted), len(candidates))
		}
	}

	for _, entry := range accepted {
		s.nextID++
		item := types.SelectedItem{
			ID:             s.nextID,
			Source:         entry.Source,
			DisplayName:    entry.DisplayName,
			SizeBytes:      entry.SizeBytes,
			IsFolderMember: entry.InFolder,
			IconHint:       tool.IconHint(entry.DisplayName),
		}
		s.items = append(s.items, item)
		result.Added = append(result.Added, item)
	}
	onChange := s.onChange
	s.mu.Unlock()

	if len(result.Added) > 0 && onChange != nil {
		onChange()
	}
	if result.Advisory != "" {
		tool.DefaultLogger.Infof("[Selection] %s", result.Advisory)
	}
	return result, nil
}

// RemoveItem removes one item by id. Unknown ids are ignored.
func (s *Selection) RemoveItem(id int64) error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return types.ErrSessionBusy
	}
	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(item types.SelectedItem) bool { return item.ID == id })
	changed := len(s.items) != before
	onChange := s.onChange
	s.mu.Unlock()

	if changed && onChange != nil {
		onChange()
	}
	return nil
}

// ClearAll empties the selection.
func (s *Selection) ClearAll() error {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return types.ErrSessionBusy
	}
	s.items = nil
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// Reset drops every item regardless of the lock. Ids keep counting up.
func (s *Selection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.locked = false
}

// Items returns a copy of the current items.
func (s *Selection) Items() []types.SelectedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Selection) TotalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, item := range s.items {
		total += item.SizeBytes
	}
	return total
}

func (s *Selection) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = true
}

func (s *Selection) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
}

func (s *Selection) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}
