package llm

import (
	"fmt"
	"math/rand"
	"sync"
)

// KeyPool selects an API key uniformly at random from a configured pool so
// request volume spreads across keys and their per-key rate limits.
type KeyPool struct {
	mu   sync.Mutex
	keys []string
	rng  *rand.Rand
}

// NewKeyPool creates a pool from the given keys.
func NewKeyPool(keys []string) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key pool must contain at least one API key")
	}
	return &KeyPool{
		keys: append([]string(nil), keys...),
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

// Pick returns a uniformly random key from the pool.
func (p *KeyPool) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.rng.Intn(len(p.keys))]
}

// Len returns the number of keys in the pool.
func (p *KeyPool) Len() int {
	return len(p.keys)
}
