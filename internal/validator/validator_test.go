package validator

import "testing"

type paper struct {
	ID    string `json:"id" validate:"required"`
	Items []item `json:"items" validate:"required,min=1,dive"`
}

type item struct {
	Name string `json:"name" validate:"required"`
}

func TestStructTranslatesWithJSONNames(t *testing.T) {
	fields := Struct(&paper{Items: []item{{Name: "a"}, {}}})
	if fields == nil {
		t.Fatal("expected validation errors")
	}
	if _, ok := fields["id"]; !ok {
		t.Fatalf("expected error for id, got %v", fields)
	}
	if msg, ok := fields["items[1].name"]; !ok || msg == "" {
		t.Fatalf("expected translated error for items[1].name, got %v", fields)
	}
}

func TestStructValid(t *testing.T) {
	if fields := Struct(&paper{ID: "e1", Items: []item{{Name: "a"}}}); fields != nil {
		t.Fatalf("expected no errors, got %v", fields)
	}
}
