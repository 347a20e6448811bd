package products

import "testing"

func TestGet(t *testing.T) {
	p, ok := Get("github")
	if !ok {
		t.Fatal("Expected github product to exist")
	}
	if p.Name != "GitHub MCP Server" {
		t.Errorf("Unexpected product name: %s", p.Name)
	}
	if p.Status != StatusProduction {
		t.Errorf("Expected production status, got %s", p.Status)
	}

	if _, ok := Get("gitlab"); ok {
		t.Error("Expected unknown product to be absent")
	}
}

func TestExists(t *testing.T) {
	if !Exists(DefaultProductID) {
		t.Error("Default product must exist in the catalog")
	}
	if Exists("") {
		t.Error("Empty product id must not exist")
	}
}
