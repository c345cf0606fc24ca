package provider

import (
	"errors"
	"testing"

	"checkin_engine/internal/model"
)

func TestRegistryGet(t *testing.T) {
	r := NewRegistry(map[string]model.ProviderConfig{
		"anyrouter": {Domain: "https://anyrouter.top"},
	})

	p, err := r.Get("anyrouter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "anyrouter" || p.UserInfoPath != "/api/user/self" {
		t.Fatalf("defaults not applied on registration: %+v", p)
	}

	_, err = r.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
