package utils

import (
	"reflect"
	"testing"
)

// CompareStructAndReport fails the test when a persisted struct changes shape.
// Job configurations and progress records are stored as JSON in the registry, so
// renamed, retyped or re-tagged fields break resuming jobs written by older builds.
func CompareStructAndReport(t *testing.T, actual, expected reflect.Type, structName string) {
	t.Helper()
	if actual.Kind() != reflect.Struct || expected.Kind() != reflect.Struct {
		t.Fatalf("%s: both types must be structs, got %s and %s", structName, actual.Kind(), expected.Kind())
	}
	if actual.NumField() != expected.NumField() {
		t.Errorf("%s: field count changed from %d to %d", structName, expected.NumField(), actual.NumField())
	}
	for i := 0; i < expected.NumField(); i++ {
		want := expected.Field(i)
		got, ok := actual.FieldByName(want.Name)
		if !ok {
			t.Errorf("%s: persisted field %s was removed", structName, want.Name)
			continue
		}
		if got.Type != want.Type {
			t.Errorf("%s.%s: type changed from %s to %s", structName, want.Name, want.Type, got.Type)
		}
		if got.Tag != want.Tag {
			t.Errorf("%s.%s: tag changed from %q to %q", structName, want.Name, want.Tag, got.Tag)
		}
	}
}
