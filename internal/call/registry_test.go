package call

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type testBlock struct {
	name  string
	types []string
}

func (b testBlock) Name() string { return b.name }

func (b testBlock) Register(r *Registry) {
	for _, typ := range b.types {
		r.Register(typ, func(map[string]any) (Call, error) {
			return Func(func(context.Context, *Context) error { return nil }), nil
		})
	}
}

func TestNewRegistryRegistersBlocks(t *testing.T) {
	r := NewRegistry(
		testBlock{name: "misc", types: []string{"sleep", "service"}},
		testBlock{name: "exec", types: []string{"exec"}},
	)

	got := strings.Join(r.Types(), ",")
	if got != "exec,service,sleep" {
		t.Errorf("Types() = %q, want exec,service,sleep", got)
	}
	if owner := r.Owner("sleep"); owner != "misc" {
		t.Errorf("Owner(sleep) = %q, want misc", owner)
	}
	if owner := r.Owner("exec"); owner != "exec" {
		t.Errorf("Owner(exec) = %q, want exec", owner)
	}
	if !r.Has("service") {
		t.Error("expected service to be registered")
	}
}

func TestRegistryNewUnknownType(t *testing.T) {
	r := NewRegistry(testBlock{name: "misc", types: []string{"sleep"}})

	_, err := r.New(Spec{Type: "nope"})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if !strings.Contains(err.Error(), "sleep") {
		t.Errorf("error should list registered types: %v", err)
	}
}

func TestRegistryNewPassesConfig(t *testing.T) {
	r := NewRegistry()
	var seen map[string]any
	r.Register("probe", func(cfg map[string]any) (Call, error) {
		seen = cfg
		return Func(func(context.Context, *Context) error { return nil }), nil
	})

	if _, err := r.New(Spec{Type: "probe"}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if seen == nil {
		t.Error("nil config should be replaced by an empty map")
	}

	if _, err := r.New(Spec{Type: "probe", Config: map[string]any{"a": 1}}); err != nil {
		t.Fatalf("New: %v", err)
	}
	if seen["a"] != 1 {
		t.Errorf("config not forwarded: %v", seen)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry()
	r.Register("bad", func(map[string]any) (Call, error) {
		return nil, errors.New("missing option")
	})

	_, err := r.New(Spec{Type: "bad"})
	if err == nil || !strings.Contains(err.Error(), "configure bad: missing option") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	f := func(map[string]any) (Call, error) { return nil, nil }
	r.Register("dup", f)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.Register("dup", f)
}

func TestDecode(t *testing.T) {
	type opts struct {
		Seconds  int           `mapstructure:"seconds"`
		Duration time.Duration `mapstructure:"duration"`
		Args     []string      `mapstructure:"arguments"`
	}

	var o opts
	err := Decode(map[string]any{
		"seconds":   "3",
		"duration":  "250ms",
		"arguments": []any{"a", "b"},
	}, &o)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if o.Seconds != 3 || o.Duration != 250*time.Millisecond || len(o.Args) != 2 {
		t.Errorf("unexpected decode result: %+v", o)
	}

	if err := Decode(map[string]any{"secnods": 1}, &o); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestContextFallbacks(t *testing.T) {
	var c *Context
	if c.Stdout() == nil {
		t.Error("Stdout() should never be nil")
	}
	if c.Log() == nil {
		t.Error("Log() should never be nil")
	}
	if _, ok := Services(nil).Lookup("x"); ok {
		t.Error("nil services should not resolve")
	}
}
