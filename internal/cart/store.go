package cart

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

var (
	ErrInvalidKey      = errors.New("invalid cart line key")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrLineNotFound    = errors.New("cart line not found")
	ErrParentMissing   = errors.New("add-on parent line is not in the cart")
)

// Listener is notified after every successful write.
type Listener func()

// Store holds the cart lines of one session.
type Store struct {
	mu        sync.RWMutex
	lines     map[string]domain.CartLine
	baseOrder []string
	listeners []Listener
}

func NewStore() *Store {
	return &Store{lines: make(map[string]domain.CartLine)}
}

func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Get returns a copy of the live lines keyed by compound key.
func (s *Store) Get() map[string]domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.CartLine, len(s.lines))
	for k, v := range s.lines {
		out[k] = v
	}
	return out
}

// Lines returns base lines in first-seen order, each followed by its add-ons
// in key order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CartLine, 0, len(s.lines))
	for _, key := range s.baseOrder {
		out = append(out, s.lines[key])
		out = append(out, s.addonsOf(key)...)
	}
	return out
}

// BaseOrder returns the live base keys in first-seen order.
func (s *Store) BaseOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.baseOrder...)
}

func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.baseOrder) == 0
}

// Put inserts or replaces a line. A zero quantity removes it.
func (s *Store) Put(line domain.CartLine) error {
	itemID, variantID, addon, ok := domain.SplitKey(line.Key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidKey, line.Key)
	}
	if line.ItemID == "" {
		line.ItemID = itemID
	}
	if line.VariantID == "" {
		line.VariantID = variantID
	}
	if line.ItemID != itemID || line.VariantID != variantID {
		return fmt.Errorf("%w: %q does not match item %s variant %s", ErrInvalidKey, line.Key, line.ItemID, line.VariantID)
	}
	if addon != "" {
		base := domain.BaseKeyOf(itemID, variantID)
		if line.AddonRef == "" {
			line.AddonRef = base
		}
		if line.AddonRef != base {
			return fmt.Errorf("%w: add-on %q must reference %q", ErrInvalidKey, line.Key, base)
		}
	} else if line.AddonRef != "" {
		return fmt.Errorf("%w: base line %q cannot carry an add-on reference", ErrInvalidKey, line.Key)
	}
	if line.Quantity < 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	if err := s.putLocked(line); err != nil {
		s.mu.Unlock()
		return err
	}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners)
	return nil
}

// SetQuantity updates an existing line. Setting zero on an unknown key is a no-op.
func (s *Store) SetQuantity(key string, qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	line, ok := s.lines[key]
	if !ok {
		s.mu.Unlock()
		if qty == 0 {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrLineNotFound, key)
	}
	line.Quantity = qty
	if err := s.putLocked(line); err != nil {
		s.mu.Unlock()
		return err
	}
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners)
	return nil
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	s.lines = make(map[string]domain.CartLine)
	s.baseOrder = nil
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners)
}

func (s *Store) putLocked(line domain.CartLine) error {
	if line.IsAddon() {
		parent, ok := s.lines[line.AddonRef]
		if line.Quantity > 0 && (!ok || parent.Quantity <= 0) {
			return fmt.Errorf("%w: %q", ErrParentMissing, line.AddonRef)
		}
		if line.Quantity == 0 {
			delete(s.lines, line.Key)
			return nil
		}
		s.lines[line.Key] = line
		return nil
	}

	if line.Quantity == 0 {
		s.removeBaseLocked(line.Key)
		return nil
	}
	if _, exists := s.lines[line.Key]; !exists {
		s.baseOrder = append(s.baseOrder, line.Key)
	}
	s.lines[line.Key] = line
	return nil
}

// removeBaseLocked drops a base line together with its add-ons.
func (s *Store) removeBaseLocked(key string) {
	if _, ok := s.lines[key]; !ok {
		return
	}
	delete(s.lines, key)
	for k, l := range s.lines {
		if l.AddonRef == key {
			delete(s.lines, k)
		}
	}
	for i, k := range s.baseOrder {
		if k == key {
			s.baseOrder = append(s.baseOrder[:i], s.baseOrder[i+1:]...)
			break
		}
	}
}

func (s *Store) addonsOf(base string) []domain.CartLine {
	var out []domain.CartLine
	for _, l := range s.lines {
		if l.AddonRef == base {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) snapshotListeners() []Listener {
	return append([]Listener(nil), s.listeners...)
}

func notify(listeners []Listener) {
	for _, l := range listeners {
		l()
	}
}
