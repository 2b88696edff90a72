package gateway

import "testing"

func TestValidateAgainstSchemaRejectsWrongType(t *testing.T) {
	err := validateAgainstSchema("boardsize", []byte(`{"x":"abc"}`))
	if err == nil {
		t.Fatal("expected schema validation error for string x")
	}
}

func TestValidateAgainstSchemaAcceptsValid(t *testing.T) {
	if err := validateAgainstSchema("boardsize", []byte(`{"x":19}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateAgainstSchema("play", []byte(`{"color":"B","vertex":"D4"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// x=0 (and any other out-of-range integer) is type-valid; range
// checking is the engine's job, per the boardsize handler's contract
// (a `?` engine reply still surfaces as 502, never a schema-level 422).
func TestValidateAgainstSchemaAcceptsOutOfRangeInteger(t *testing.T) {
	if err := validateAgainstSchema("boardsize", []byte(`{"x":0}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAgainstSchemaUnknownNameIsNoop(t *testing.T) {
	if err := validateAgainstSchema("does-not-exist", []byte(`{"whatever":1}`)); err != nil {
		t.Fatalf("unexpected error for unregistered schema name: %v", err)
	}
}
