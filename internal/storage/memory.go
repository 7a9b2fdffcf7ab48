package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type expiring struct {
	value     string
	expiresAt time.Time // zero means no ttl
}

// Memory is an in-process Store used for tests and local runs.
// Intersections are returned sorted so enumeration order is stable.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	strings map[string]expiring
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		now:     now,
		hashes:  map[string]map[string]string{},
		sets:    map[string]map[string]struct{}{},
		strings: map[string]expiring{},
	}
}

func (m *Memory) HGet(_ context.Context, hash, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.hashes[hash][field]
	return v, ok, nil
}

func (m *Memory) HMGet(_ context.Context, hash string, fields ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(fields))
	h := m.hashes[hash]
	for i, f := range fields {
		out[i] = h[f]
	}
	return out, nil
}

func (m *Memory) HSet(_ context.Context, hash, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash(hash)[field] = value
	return nil
}

func (m *Memory) HSetNX(_ context.Context, hash, field, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(hash)
	if _, ok := h[field]; ok {
		return false, nil
	}
	h[field] = value
	return true, nil
}

func (m *Memory) HGetAll(_ context.Context, hash string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.hashes[hash]))
	for k, v := range m.hashes[hash] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[key]
	if !ok {
		s = map[string]struct{}{}
		m.sets[key] = s
	}
	for _, mem := range members {
		s[mem] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[key]
	for _, mem := range members {
		delete(s, mem)
	}
	if len(s) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SInter(_ context.Context, keys ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(keys) == 0 {
		return nil, nil
	}
	// walk the smallest set, check the rest
	smallest := m.sets[keys[0]]
	for _, k := range keys[1:] {
		if s := m.sets[k]; len(s) < len(smallest) {
			smallest = s
		}
	}
	out := []string{}
	for mem := range smallest {
		inAll := true
		for _, k := range keys {
			if _, ok := m.sets[k][mem]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, mem)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	return e.value, ok, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, _ := m.live(key)
	var n int64
	if e.value != "" {
		var err error
		n, err = strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, errors.Errorf("value at %q is not an integer", key)
		}
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.strings[key] = e
	return n, nil
}

func (m *Memory) ExpireNX(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key)
	if !ok || !e.expiresAt.IsZero() {
		return nil
	}
	e.expiresAt = m.now().Add(ttl)
	m.strings[key] = e
	return nil
}

func (m *Memory) PurgeExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for k, e := range m.strings {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.strings, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) hash(name string) map[string]string {
	h, ok := m.hashes[name]
	if !ok {
		h = map[string]string{}
		m.hashes[name] = h
	}
	return h
}

// live drops the key if its ttl has passed. Caller holds mu.
func (m *Memory) live(key string) (expiring, bool) {
	e, ok := m.strings[key]
	if !ok {
		return expiring{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.strings, key)
		return expiring{}, false
	}
	return e, true
}
