package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/droneregistry/extension-oauth/storage"
)

// ClientRegistry is a read-only storage.ClientRegistry built from
// configuration at startup.
type ClientRegistry struct {
	clients map[string]*storage.Client
}

var _ storage.ClientRegistry = (*ClientRegistry)(nil)

// NewClientRegistry registers clients. Empty or duplicate client ids and
// clients without a secret hash are rejected.
func NewClientRegistry(clients ...storage.Client) (*ClientRegistry, error) {
	r := &ClientRegistry{clients: make(map[string]*storage.Client, len(clients))}

	for _, c := range clients {
		if c.ClientID == "" {
			return nil, errors.New("client id must not be empty")
		}
		if len(c.ClientSecretHash) == 0 {
			return nil, fmt.Errorf("client %q has no secret hash", c.ClientID)
		}
		if _, dup := r.clients[c.ClientID]; dup {
			return nil, fmt.Errorf("client %q registered twice", c.ClientID)
		}

		c.ClientSecretHash = slices.Clone(c.ClientSecretHash)
		c.RedirectURIs = slices.Clone(c.RedirectURIs)
		r.clients[c.ClientID] = &c
	}

	return r, nil
}

// GetClient returns a copy of the registration for clientID.
func (r *ClientRegistry) GetClient(_ context.Context, clientID string) (*storage.Client, error) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}

	cp := *c
	cp.RedirectURIs = slices.Clone(c.RedirectURIs)
	return &cp, nil
}

// Len returns the number of registered clients.
func (r *ClientRegistry) Len() int {
	return len(r.clients)
}
