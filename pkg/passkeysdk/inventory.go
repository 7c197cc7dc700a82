package passkeysdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/medhcloud/passkey/pkg/slogx"
)

// Inventory manages the authenticated user's registered passkeys. It keeps an
// in-memory snapshot of the last successful list so callers can render
// instantly, and mutates that snapshot only after the server confirms a
// change.
//
// All methods are safe for concurrent use.
type Inventory struct {
	client *Client

	mu    sync.Mutex
	creds []Credential
}

// NewInventory creates a passkey inventory over the given API client. The
// client must be configured with an auth token source; every inventory call
// requires an authenticated session.
func NewInventory(client *Client) *Inventory {
	return &Inventory{client: client}
}

// List fetches the user's passkeys and refreshes the local snapshot. On
// failure the previous snapshot is left untouched and an error is returned;
// a failed fetch is never reported as an empty inventory.
func (i *Inventory) List(ctx context.Context) ([]Credential, error) {
	var data listData
	if _, err := i.client.doJSON(ctx, http.MethodGet, "/passkey/list", nil, &data); err != nil {
		slogx.FromContext(ctx).Debug("passkey_list_failed", "error", err)
		return nil, err
	}

	i.mu.Lock()
	i.creds = data.Passkeys
	creds := snapshot(i.creds)
	i.mu.Unlock()

	return creds, nil
}

// Credentials returns the snapshot from the last successful List. It makes no
// network call; an empty slice before the first List means "not loaded yet",
// not "no passkeys".
func (i *Inventory) Credentials() []Credential {
	i.mu.Lock()
	defer i.mu.Unlock()
	return snapshot(i.creds)
}

// Rename relabels a passkey. The label is validated locally before any
// request is made; the snapshot is updated only once the server confirms.
func (i *Inventory) Rename(ctx context.Context, id, label string) (*Credential, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return nil, errInvalidLabel(label)
	}
	label = trimmed

	var data renameData
	if _, err := i.client.doJSON(ctx, http.MethodPatch, "/passkey/"+url.PathEscape(id), renameRequest{Name: label}, &data); err != nil {
		return nil, err
	}

	i.mu.Lock()
	for n := range i.creds {
		if i.creds[n].ID == id {
			i.creds[n] = data.Passkey
			break
		}
	}
	i.mu.Unlock()

	slogx.FromContext(ctx).Info("passkey_renamed", "passkey_id", id)
	return &data.Passkey, nil
}

// Revoke deletes a passkey from the server, then drops it from the snapshot.
// A failed revoke leaves the snapshot unchanged so the entry stays visible
// for retry.
func (i *Inventory) Revoke(ctx context.Context, id string) error {
	if _, err := i.client.doJSON(ctx, http.MethodDelete, "/passkey/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}

	i.mu.Lock()
	kept := i.creds[:0]
	for _, c := range i.creds {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	i.creds = kept
	i.mu.Unlock()

	slogx.FromContext(ctx).Info("passkey_revoked", "passkey_id", id)
	return nil
}

func snapshot(creds []Credential) []Credential {
	out := make([]Credential, len(creds))
	copy(out, creds)
	return out
}
