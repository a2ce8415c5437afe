package flowcore

import (
	"reflect"
	"testing"
)

func TestUUIDv7GeneratorProducesDistinctTokens(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()
	if a == "" || b == "" {
		t.Fatal("expected non-empty tokens")
	}
	if a == b {
		t.Error("expected two successive tokens to differ")
	}
}

func TestFixedGeneratorReturnsTokensInOrder(t *testing.T) {
	gen := NewFixedGenerator("one", "two")
	if got := gen.Generate(); got != "one" {
		t.Errorf("expected %q, got %q", "one", got)
	}
	if got := gen.Generate(); got != "two" {
		t.Errorf("expected %q, got %q", "two", got)
	}
}

func TestFixedGeneratorPanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("only")
	gen.Generate()

	defer func() {
		if recover() == nil {
			t.Fatal("expected Generate to panic once tokens are exhausted")
		}
	}()
	gen.Generate()
}

func TestTokenOfIdentifiesDistinctTypesConsistently(t *testing.T) {
	a1 := TokenOf[numberActivity]()
	a2 := TokenOf[numberActivity]()
	b := TokenOf[noopFaultHandler]()

	if a1 != a2 {
		t.Error("expected TokenOf to return the same token for the same type across calls")
	}
	if a1 == b {
		t.Error("expected TokenOf to distinguish between different activity types")
	}
	if a1.Kind() != reflect.Struct {
		t.Errorf("expected a struct-kind reflect.Type, got %v", a1.Kind())
	}
}
