package file

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/expenfyre/internal/kv"
)

// KVTTL はKVに保存したファイルの保持期間。
const KVTTL = 365 * 24 * time.Hour

// KVStore はファイルをbase64のdata URLとしてKVに保存する。
type KVStore struct {
	store kv.Store
}

func NewKVStore(store kv.Store) *KVStore {
	return &KVStore{store: store}
}

func (s *KVStore) Put(ctx context.Context, name, contentType string, data []byte) error {
	url := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	if err := s.store.Put(ctx, kv.PrefixFile+name, url, KVTTL); err != nil {
		return fmt.Errorf("put file: %w", err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, name string) ([]byte, string, error) {
	url, err := s.store.Get(ctx, kv.PrefixFile+name)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	return decodeDataURL(url)
}

// decodeDataURL は "data:<type>;base64,<payload>" を復号する。
func decodeDataURL(url string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, "", fmt.Errorf("decode data url: missing scheme")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("decode data url: missing payload")
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", fmt.Errorf("decode data url: not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	return data, contentType, nil
}

var _ Storage = (*KVStore)(nil)
