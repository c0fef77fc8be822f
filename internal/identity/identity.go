// Package identity keeps the device's anonymous account in local storage and
// signs in against the archive server when none is cached yet.
package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"backend-stoperica/internal/kvstore"
	"backend-stoperica/internal/upload"

	"github.com/rs/zerolog/log"
)

const (
	PrefsNamespace = "AppPreferences"
	UsernameKey    = "username"
	UserIDKey      = "userId"
	TokenKey       = "token"

	AnonymousPath   = "/auth/anonymous"
	DefaultUsername = "Unknown User"
)

type Identity struct {
	UserID   string
	Username string
	Token    string
}

func (i Identity) SignedIn() bool {
	return i.UserID != "" && i.Token != ""
}

type Cache struct {
	kv *kvstore.Store
}

func NewCache(kv *kvstore.Store) *Cache {
	return &Cache{kv: kv}
}

// Load returns whatever is cached. Missing keys come back empty, except the
// username which falls back to DefaultUsername.
func (c *Cache) Load(ctx context.Context) (Identity, error) {
	var id Identity
	for key, dst := range map[string]*string{
		UsernameKey: &id.Username,
		UserIDKey:   &id.UserID,
		TokenKey:    &id.Token,
	} {
		v, _, err := c.kv.Get(ctx, PrefsNamespace, key)
		if err != nil {
			return Identity{}, err
		}
		*dst = v
	}
	if id.Username == "" {
		id.Username = DefaultUsername
	}
	return id, nil
}

func (c *Cache) Save(ctx context.Context, id Identity) error {
	for key, v := range map[string]string{
		UsernameKey: id.Username,
		UserIDKey:   id.UserID,
		TokenKey:    id.Token,
	} {
		if v == "" {
			continue
		}
		if err := c.kv.Put(ctx, PrefsNamespace, key, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) SetUsername(ctx context.Context, username string) error {
	return c.kv.Put(ctx, PrefsNamespace, UsernameKey, username)
}

// Clear forgets the account so the next Ensure signs in again.
func (c *Cache) Clear(ctx context.Context) error {
	for _, key := range []string{UserIDKey, TokenKey} {
		if err := c.kv.Delete(ctx, PrefsNamespace, key); err != nil {
			return err
		}
	}
	return nil
}

type tokenResponse struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
}

// Ensure returns the cached identity, signing in anonymously first when no
// account is stored. The token is installed on client either way.
func Ensure(ctx context.Context, cache *Cache, client *upload.Client) (Identity, error) {
	id, err := cache.Load(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.SignedIn() {
		raw, err := client.Post(AnonymousPath, map[string]string{"username": id.Username})
		if err != nil {
			return Identity{}, fmt.Errorf("anonymous sign in: %w", err)
		}
		var resp tokenResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Identity{}, fmt.Errorf("decode sign in response: %w", err)
		}
		id.UserID = resp.UserID
		id.Token = resp.AccessToken
		if err := cache.Save(ctx, id); err != nil {
			return Identity{}, err
		}
		log.Info().Str("user_id", id.UserID).Msg("signed in anonymously")
	}
	client.SetHeader("Authorization", "Bearer "+id.Token)
	return id, nil
}
