package cart

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cloud-wave-best-zizon/promotion-service/internal/domain"
)

func baseLine(key string, price float64, qty int) domain.CartLine {
	return domain.CartLine{Key: key, UnitPrice: price, Quantity: qty}
}

func TestPut_FillsIdentifiersFromKey(t *testing.T) {
	s := NewStore()
	if err := s.Put(baseLine("burger:large", 9.5, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := s.Get()["burger:large"]
	if line.ItemID != "burger" || line.VariantID != "large" {
		t.Errorf("expected burger/large, got %s/%s", line.ItemID, line.VariantID)
	}
}

func TestPut_RejectsMalformedKeys(t *testing.T) {
	s := NewStore()
	for _, key := range []string{"", "burger", ":large", "burger:", "burger:large:"} {
		if err := s.Put(baseLine(key, 1, 1)); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestPut_NegativeQuantity(t *testing.T) {
	s := NewStore()
	if err := s.Put(baseLine("a:1", 1, -1)); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestPut_AddonRequiresLiveParent(t *testing.T) {
	s := NewStore()
	err := s.Put(domain.CartLine{Key: "burger:large:cheese", UnitPrice: 1, Quantity: 1})
	if !errors.Is(err, ErrParentMissing) {
		t.Fatalf("expected ErrParentMissing, got %v", err)
	}

	_ = s.Put(baseLine("burger:large", 9, 1))
	if err := s.Put(domain.CartLine{Key: "burger:large:cheese", UnitPrice: 1, Quantity: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addon := s.Get()["burger:large:cheese"]
	if addon.AddonRef != "burger:large" {
		t.Errorf("expected addon ref burger:large, got %q", addon.AddonRef)
	}
}

func TestPut_AddonWithForeignParentRejected(t *testing.T) {
	s := NewStore()
	_ = s.Put(baseLine("burger:large", 9, 1))
	err := s.Put(domain.CartLine{Key: "burger:large:cheese", AddonRef: "fries:small", UnitPrice: 1, Quantity: 1})
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSetQuantity_ZeroCascadesAddons(t *testing.T) {
	s := NewStore()
	_ = s.Put(baseLine("burger:large", 9, 1))
	_ = s.Put(domain.CartLine{Key: "burger:large:cheese", UnitPrice: 1, Quantity: 1})
	_ = s.Put(domain.CartLine{Key: "burger:large:bacon", UnitPrice: 2, Quantity: 1})
	_ = s.Put(baseLine("fries:small", 3, 1))

	if err := s.SetQuantity("burger:large", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := s.Get()
	if len(lines) != 1 {
		t.Fatalf("expected only fries to remain, got %v", lines)
	}
	if _, ok := lines["fries:small"]; !ok {
		t.Error("expected fries:small to remain")
	}
	if !reflect.DeepEqual(s.BaseOrder(), []string{"fries:small"}) {
		t.Errorf("unexpected base order %v", s.BaseOrder())
	}
}

func TestSetQuantity_UnknownKey(t *testing.T) {
	s := NewStore()
	if err := s.SetQuantity("a:1", 0); err != nil {
		t.Errorf("expected no-op for zero on unknown key, got %v", err)
	}
	if err := s.SetQuantity("a:1", 2); !errors.Is(err, ErrLineNotFound) {
		t.Errorf("expected ErrLineNotFound, got %v", err)
	}
}

func TestBaseOrder_PreservesFirstSeen(t *testing.T) {
	s := NewStore()
	_ = s.Put(baseLine("a:1", 1, 1))
	_ = s.Put(baseLine("b:1", 1, 1))
	_ = s.Put(baseLine("c:1", 1, 1))
	_ = s.SetQuantity("a:1", 3)
	_ = s.SetQuantity("b:1", 0)
	_ = s.Put(baseLine("b:1", 1, 1))

	want := []string{"a:1", "c:1", "b:1"}
	if got := s.BaseOrder(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLines_GroupsAddonsUnderParent(t *testing.T) {
	s := NewStore()
	_ = s.Put(baseLine("a:1", 1, 1))
	_ = s.Put(baseLine("b:1", 1, 1))
	_ = s.Put(domain.CartLine{Key: "a:1:z", UnitPrice: 1, Quantity: 1})
	_ = s.Put(domain.CartLine{Key: "a:1:m", UnitPrice: 1, Quantity: 1})

	var keys []string
	for _, l := range s.Lines() {
		keys = append(keys, l.Key)
	}
	want := []string{"a:1", "a:1:m", "a:1:z", "b:1"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
}

func TestSubscribe_NotifiedAfterEveryWrite(t *testing.T) {
	s := NewStore()
	calls := 0
	s.Subscribe(func() { calls++ })

	_ = s.Put(baseLine("a:1", 1, 1))
	_ = s.SetQuantity("a:1", 2)
	_ = s.Put(baseLine("bad", 1, 1))
	s.Clear()

	if calls != 3 {
		t.Errorf("expected 3 notifications, got %d", calls)
	}
	if !s.Empty() {
		t.Error("expected empty cart after Clear")
	}
}
