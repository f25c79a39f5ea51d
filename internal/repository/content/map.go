package content

import (
	"context"
	"sync"
)

type MapStore struct {
	m *TypedSyncMap
}

type TypedSyncMap struct {
	m sync.Map
}

func (c *TypedSyncMap) Load(k Key) (Value, bool) {
	v, exists := c.m.Load(k)
	if !exists {
		return nil, false
	}
	return v.(Value), exists
}

func (c *TypedSyncMap) Store(k Key, v Value) {
	c.m.Store(k, v)
}

func (c *TypedSyncMap) Clear() {
	c.m.Clear()
}

func NewMapStore() *MapStore {
	return &MapStore{
		m: &TypedSyncMap{},
	}
}

var _ Store = (*MapStore)(nil)

func (c *MapStore) Get(_ context.Context, k Key) (Value, bool, error) {
	v, exists := c.m.Load(k)
	return v, exists, nil
}

func (c *MapStore) Set(_ context.Context, k Key, v Value) error {
	c.m.Store(k, v)
	return nil
}

func (c *MapStore) Close() error {
	c.m.Clear()
	return nil
}
