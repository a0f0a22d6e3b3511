package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cutoutly/internal/infra"
	"cutoutly/internal/sqlinline"
)

const ProviderOpenAI = "openai"

// Store keeps provider API keys in provider_credentials so a key can be
// rotated without redeploying the api.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) OpenAIAPIKey(ctx context.Context) (string, error) {
	return s.APIKey(ctx, ProviderOpenAI)
}

// APIKey returns the stored key for provider, or "" when none is stored.
func (s *Store) APIKey(ctx context.Context, provider string) (string, error) {
	var key string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("load %s api key: %w", provider, err)
	}
	return strings.TrimSpace(key), nil
}

// SetOpenAIAPIKey stores key. props are merged into the properties already
// recorded for the provider.
func (s *Store) SetOpenAIAPIKey(ctx context.Context, key string, props map[string]any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("openai api key is required")
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertProviderKey, ProviderOpenAI, key, raw)
	return err
}
