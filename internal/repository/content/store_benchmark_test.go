package content

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

const (
	smallContentSize  = 1024       // 1KB
	mediumContentSize = 64 * 1024  // 64KB
	largeContentSize  = 512 * 1024 // 512KB
)

func generateContent(size int) Value {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func keyFor(i int) Key {
	return Key(fmt.Sprintf("https://tiles.test/%d/%d/%d.glb", i%20, i%1000, i%1000))
}

func setupSQLiteStore(b *testing.B) (Store, func()) {
	b.Helper()
	s, err := NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"), logger.NewNoOpLogger())
	if err != nil {
		b.Fatalf("Failed to create SQLite store: %v", err)
	}
	return s, func() { s.Close() }
}

func setupMapStore(b *testing.B) (Store, func()) {
	b.Helper()
	s := NewMapStore()
	return s, func() { s.Close() }
}

func setupFilesystemStore(b *testing.B) (Store, func()) {
	b.Helper()
	s, err := NewFilesystemStore(b.TempDir())
	if err != nil {
		b.Fatalf("Failed to create filesystem store: %v", err)
	}
	return s, func() {}
}

func setupBadgerStore(b *testing.B) (Store, func()) {
	b.Helper()
	s, err := NewBadgerStore(b.TempDir(), 0, logger.NewNoOpLogger())
	if err != nil {
		b.Fatalf("Failed to create badger store: %v", err)
	}
	return s, func() { s.Close() }
}

var benchStores = []struct {
	name  string
	setup func(b *testing.B) (Store, func())
}{
	{"SQLite", setupSQLiteStore},
	{"Map", setupMapStore},
	{"Filesystem", setupFilesystemStore},
	{"Badger", setupBadgerStore},
}

var benchSizes = []struct {
	name string
	size int
}{
	{"Small", smallContentSize},
	{"Large", largeContentSize},
}

func BenchmarkSet(b *testing.B) {
	ctx := context.Background()
	for _, st := range benchStores {
		for _, sz := range benchSizes {
			b.Run(st.name+"_"+sz.name, func(b *testing.B) {
				s, cleanup := st.setup(b)
				defer cleanup()
				data := generateContent(sz.size)

				b.SetBytes(int64(sz.size))
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := s.Set(ctx, keyFor(i), data); err != nil {
						b.Fatalf("Set failed: %v", err)
					}
				}
			})
		}
	}
}

func BenchmarkGet(b *testing.B) {
	ctx := context.Background()
	for _, st := range benchStores {
		for _, sz := range benchSizes {
			b.Run(st.name+"_"+sz.name, func(b *testing.B) {
				s, cleanup := st.setup(b)
				defer cleanup()
				data := generateContent(sz.size)

				// Populate store
				for i := 0; i < 100; i++ {
					s.Set(ctx, keyFor(i), data)
				}

				b.SetBytes(int64(sz.size))
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, _, err := s.Get(ctx, keyFor(i%100)); err != nil {
						b.Fatalf("Get failed: %v", err)
					}
				}
			})
		}
	}
}

// Benchmark concurrent operations (80% reads, 20% writes, like a frame loop
// revisiting mostly resident tiles)
func BenchmarkConcurrent(b *testing.B) {
	ctx := context.Background()
	for _, st := range benchStores {
		b.Run(st.name, func(b *testing.B) {
			s, cleanup := st.setup(b)
			defer cleanup()
			data := generateContent(mediumContentSize)

			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := keyFor(i % 100)
					if i%5 == 0 {
						s.Set(ctx, key, data)
					} else {
						s.Get(ctx, key)
					}
					i++
				}
			})
		})
	}
}
