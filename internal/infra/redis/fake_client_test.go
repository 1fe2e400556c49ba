package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeClient is an in-memory RedisClient; Eval understands only the
// compare-and-delete shape used by the session store.
type fakeClient struct {
	mu      sync.Mutex
	kv      map[string]string
	ttl     map[string]time.Duration
	sets    map[string]map[string]struct{}
	failSet error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		kv:   map[string]string{},
		ttl:  map[string]time.Duration{},
		sets: map[string]map[string]struct{}{},
	}
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return f.failSet
	}
	switch v := value.(type) {
	case []byte:
		f.kv[key] = string(v)
	default:
		f.kv[key] = fmt.Sprint(v)
	}
	f.ttl[key] = exp
	return nil
}

func (f *fakeClient) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (f *fakeClient) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.kv, k)
	}
	return nil
}

func (f *fakeClient) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	for _, m := range members {
		f.sets[key][m] = struct{}{}
	}
	return nil
}

func (f *fakeClient) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeClient) Eval(_ context.Context, _ string, keys []string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(keys) == 0 || len(args) == 0 {
		return nil, errors.New("fake eval: missing keys or args")
	}
	if f.kv[keys[0]] != args[0] {
		return int64(0), nil
	}
	for _, k := range keys {
		delete(f.kv, k)
	}
	return int64(1), nil
}

func (f *fakeClient) Close() error { return nil }
