package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"lms-migrate/internal/store"
)

// KV keeps values JSON-encoded so callers observe the same copy semantics
// as a persistent store.
type KV struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ store.KV = (*KV)(nil)

func NewKV() *KV {
	return &KV{data: map[string][]byte{}}
}

func (k *KV) Get(ctx context.Context, key string, dst any) (bool, error) {
	k.mu.Lock()
	b, ok := k.data[key]
	k.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (k *KV) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.data[key] = b
	k.mu.Unlock()
	return nil
}

// Keys lists the stored keys, for assertions.
func (k *KV) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, 0, len(k.data))
	for key := range k.data {
		out = append(out, key)
	}
	return out
}
