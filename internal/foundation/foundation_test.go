package foundation

import (
	"encoding/json"
	"testing"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

func TestOption(t *testing.T) {
	t.Run("Some option", func(t *testing.T) {
		option := Some("value")

		if !option.IsSome() || option.IsNone() {
			t.Error("Expected option to be Some")
		}
		if option.Unwrap() != "value" {
			t.Error("Expected unwrap to return 'value'")
		}
	})

	t.Run("None option", func(t *testing.T) {
		option := None[string]()

		if option.IsSome() || !option.IsNone() {
			t.Error("Expected option to be None")
		}
		if option.UnwrapOr("default") != "default" {
			t.Error("Expected unwrap or to return 'default'")
		}
	})

	t.Run("FromPointer", func(t *testing.T) {
		value := "test"
		if !FromPointer(&value).IsSome() {
			t.Error("Expected option from non-nil pointer to be Some")
		}
		var nilPtr *string
		if !FromPointer(nilPtr).IsNone() {
			t.Error("Expected option from nil pointer to be None")
		}
	})

	t.Run("JSON", func(t *testing.T) {
		type slot struct {
			Build Option[int64] `json:"build"`
		}
		data, err := json.Marshal(slot{})
		if err != nil {
			t.Fatalf("marshal none: %v", err)
		}
		if string(data) != `{"build":null}` {
			t.Errorf("unexpected encoding of None: %s", data)
		}

		var decoded slot
		if err := json.Unmarshal([]byte(`{"build":42}`), &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got, ok := decoded.Build.Get(); !ok || got != 42 {
			t.Errorf("expected Some(42), got %v", decoded.Build)
		}
		if err := json.Unmarshal([]byte(`{"build":null}`), &decoded); err != nil {
			t.Fatalf("unmarshal null: %v", err)
		}
		if decoded.Build.IsSome() {
			t.Error("expected null to decode as None")
		}
	})
}

func TestValidation(t *testing.T) {
	t.Run("Check", func(t *testing.T) {
		if !Check(true, "store.path", "required", "missing").Valid {
			t.Error("Expected passing check to be valid")
		}
		result := Check(false, "store.path", "required", "missing")
		if result.Valid || len(result.Errors) != 1 || result.Errors[0].Code != "required" {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("Combine keeps every error", func(t *testing.T) {
		result := Valid().
			Combine(Check(false, "a", "required", "a missing")).
			Combine(Valid()).
			Combine(Check(false, "b", "range", "b too small"))
		if result.Valid || len(result.Errors) != 2 {
			t.Fatalf("expected two errors, got %+v", result)
		}
	})

	t.Run("ToError", func(t *testing.T) {
		if err := Valid().ToError(); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}

		err := Invalid(
			NewValidationError("leader.lease_ttl", "duration", "invalid duration"),
			NewValidationError("", "custom", "bad"),
		).ToError()
		classified, ok := ferrors.AsClassified(err)
		if !ok {
			t.Fatalf("expected classified error, got %T", err)
		}
		if classified.Category() != ferrors.CategoryValidation {
			t.Errorf("expected validation category, got %s", classified.Category())
		}
		if classified.Message() != "field 'leader.lease_ttl': invalid duration; bad" {
			t.Errorf("unexpected message %q", classified.Message())
		}
		fields, _ := classified.Context()["fields"].([]string)
		if len(fields) != 2 || fields[0] != "leader.lease_ttl" {
			t.Errorf("unexpected fields context: %v", classified.Context()["fields"])
		}
	})
}
