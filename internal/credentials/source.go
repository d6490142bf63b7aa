package credentials

import (
	"context"
	"strings"
	"time"
)

// Source implements videoapi.CredentialSource: the key configured through
// the environment wins, otherwise the stored token for the video API
// provider is used. No credential anywhere means the transport fails fast
// with its auth error instead of hitting the network.
type Source struct {
	env   string
	store *Store
}

// NewSource builds a source from the configured key and an optional store.
func NewSource(envKey string, store *Store) *Source {
	return &Source{env: strings.TrimSpace(envKey), store: store}
}

// APIKey resolves the bearer token. The boolean reports whether one exists.
func (s *Source) APIKey() (string, bool) {
	if s == nil {
		return "", false
	}
	if s.env != "" {
		return s.env, true
	}
	if s.store == nil {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	token, err := s.store.Token(ctx, ProviderVideoAPI)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}
