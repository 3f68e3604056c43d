package adapter

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func nopBuilder(_ context.Context, _ Properties, _ *slog.Logger) (Provider, error) {
	return Provider{}, nil
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Descriptor{}, nopBuilder); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor for empty type, got %v", err)
	}
	if err := r.Register(Descriptor{Type: "x"}, nopBuilder); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor for empty capabilities, got %v", err)
	}
	if err := r.Register(Descriptor{Type: "x", Capabilities: []Capability{CapabilityContentStorage}}, nil); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor for nil builder, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	d := Descriptor{Type: "x", Capabilities: []Capability{CapabilityContentStorage}}

	if err := r.Register(d, nopBuilder); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(d, nopBuilder); !errors.Is(err, ErrDuplicateAdapterType) {
		t.Fatalf("expected ErrDuplicateAdapterType, got %v", err)
	}
}

func TestByType(t *testing.T) {
	r := NewRegistry()
	d := Descriptor{Type: "s3", Capabilities: []Capability{CapabilityContentStorage}, Priority: 10}
	if err := r.Register(d, nopBuilder); err != nil {
		t.Fatal(err)
	}

	reg, ok := r.ByType("s3")
	if !ok {
		t.Fatal("expected registration")
	}
	if reg.Descriptor.Priority != 10 {
		t.Errorf("priority = %d, want 10", reg.Descriptor.Priority)
	}
	if _, ok := r.ByType("unknown"); ok {
		t.Fatal("expected no registration for unknown type")
	}
	if !r.Has("s3") || r.Has("unknown") {
		t.Fatal("Has gave wrong answers")
	}
}

func TestByCapabilityOrdering(t *testing.T) {
	r := NewRegistry()

	// Registered low-priority first to check the sort is by priority, and two
	// with equal priority to check registration order breaks the tie.
	regs := []Descriptor{
		{Type: "low", Capabilities: []Capability{CapabilityContentStorage}, Priority: 0},
		{Type: "first", Capabilities: []Capability{CapabilityContentStorage}, Priority: 5},
		{Type: "second", Capabilities: []Capability{CapabilityContentStorage}, Priority: 5},
		{Type: "high", Capabilities: []Capability{CapabilityContentStorage}, Priority: 10},
		{Type: "other", Capabilities: []Capability{CapabilityEsignEnvelopes}, Priority: 99},
	}
	for _, d := range regs {
		if err := r.Register(d, nopBuilder); err != nil {
			t.Fatal(err)
		}
	}

	got := r.ByCapability(CapabilityContentStorage)
	want := []string{"high", "first", "second", "low"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Descriptor.Type != w {
			t.Errorf("candidate %d = %s, want %s", i, got[i].Descriptor.Type, w)
		}
	}
}

func TestTypesInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		d := Descriptor{Type: name, Capabilities: []Capability{CapabilityContentStorage}}
		if err := r.Register(d, nopBuilder); err != nil {
			t.Fatal(err)
		}
	}

	got := r.Types()
	want := []string{"c", "a", "b"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("Types() = %v, want %v", got, want)
		}
	}
}

func TestMustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.MustRegister(Descriptor{}, nopBuilder)
}
