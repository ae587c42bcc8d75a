package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/droneregistry/extension-oauth/storage"
)

func testClient(id string) storage.Client {
	return storage.Client{
		ClientID:         id,
		ClientSecretHash: []byte("$2a$04$hash"),
		ClientName:       "Sample Extension App",
		RedirectURIs:     []string{"https://partner.example/callback"},
	}
}

func TestClientRegistry_GetClient(t *testing.T) {
	reg, err := NewClientRegistry(testClient("a"), testClient("b"))
	if err != nil {
		t.Fatalf("NewClientRegistry() error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}

	got, err := reg.GetClient(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientID != "a" || got.ClientName != "Sample Extension App" {
		t.Errorf("GetClient() = %+v", got)
	}

	// Callers get copies.
	got.RedirectURIs[0] = "https://evil.example"
	again, _ := reg.GetClient(context.Background(), "a")
	if again.RedirectURIs[0] != "https://partner.example/callback" {
		t.Error("registry entry was mutated through a returned client")
	}

	_, err = reg.GetClient(context.Background(), "unknown")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient(unknown) error = %v, want ErrClientNotFound", err)
	}
}

func TestNewClientRegistry_Rejects(t *testing.T) {
	noSecret := testClient("c")
	noSecret.ClientSecretHash = nil

	tests := []struct {
		name    string
		clients []storage.Client
	}{
		{name: "empty id", clients: []storage.Client{testClient("")}},
		{name: "duplicate id", clients: []storage.Client{testClient("a"), testClient("a")}},
		{name: "missing secret hash", clients: []storage.Client{noSecret}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClientRegistry(tt.clients...); err == nil {
				t.Error("NewClientRegistry() error = nil, want error")
			}
		})
	}
}
