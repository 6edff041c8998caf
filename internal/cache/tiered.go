package cache

import (
	"errors"
	"time"
)

// Tiered chains caches from fastest to slowest. A hit in a slower tier is
// copied into every faster tier that missed it.
type Tiered struct {
	tiers []Cache
}

// NewTiered chains the given caches in lookup order
func NewTiered(tiers ...Cache) *Tiered {
	return &Tiered{tiers: tiers}
}

func (t *Tiered) Get(key string) ([]byte, bool) {
	for i, tier := range t.tiers {
		val, ok := tier.Get(key)
		if !ok {
			continue
		}
		for _, faster := range t.tiers[:i] {
			_ = faster.Set(key, val, 0)
		}
		return val, true
	}
	return nil, false
}

// Set writes through to every tier and stops at the first failure
func (t *Tiered) Set(key string, value []byte, ttl time.Duration) error {
	for _, tier := range t.tiers {
		if err := tier.Set(key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tiered) Delete(key string) error {
	errs := make([]error, 0, len(t.tiers))
	for _, tier := range t.tiers {
		errs = append(errs, tier.Delete(key))
	}
	return errors.Join(errs...)
}

func (t *Tiered) Clear() error {
	errs := make([]error, 0, len(t.tiers))
	for _, tier := range t.tiers {
		errs = append(errs, tier.Clear())
	}
	return errors.Join(errs...)
}
