package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// LocalStore is the in-process tier: a size-bounded LRU whose entries carry
// their own expiry on top of the LRU-wide TTL.
type LocalStore struct {
	lru *expirable.LRU[string, localEntry]
}

func NewLocalStore(size int) *LocalStore {
	if size <= 0 {
		size = 1024
	}
	return &LocalStore{lru: expirable.NewLRU[string, localEntry](size, nil, maxStaleTime)}
}

func (s *LocalStore) Get(key string) ([]byte, bool) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		s.lru.Remove(key)
		return nil, false
	}
	return e.data, true
}

func (s *LocalStore) Set(key string, data []byte, ttl time.Duration) {
	s.lru.Add(key, localEntry{data: data, expiresAt: time.Now().Add(ttl)})
}

func (s *LocalStore) Delete(keys ...string) {
	for _, k := range keys {
		s.lru.Remove(k)
	}
}

// DeleteFunc removes every key for which match returns true.
func (s *LocalStore) DeleteFunc(match func(key string) bool) int {
	n := 0
	for _, k := range s.lru.Keys() {
		if match(k) && s.lru.Remove(k) {
			n++
		}
	}
	return n
}

func (s *LocalStore) Purge() {
	s.lru.Purge()
}

func (s *LocalStore) Len() int {
	return s.lru.Len()
}
