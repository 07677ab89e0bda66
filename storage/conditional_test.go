package storage

import (
	"context"
	"path/filepath"
	"testing"
)

type conditionalStore interface {
	Storage
	ConditionalRemover
}

var conditionalBackends = map[string]func(t *testing.T) conditionalStore{
	"memory": func(*testing.T) conditionalStore {
		return NewMemoryBackend().Open()
	},
	"file": func(t *testing.T) conditionalStore {
		return NewFile(filepath.Join(t.TempDir(), "session.json"))
	},
	"redis": func(t *testing.T) conditionalStore {
		_, rdb, done := newRedisTest(t)
		t.Cleanup(done)
		return NewRedis(rdb, "cond")
	},
}

func TestRemoveIf(t *testing.T) {
	tests := []struct {
		name        string
		canonical   string
		legacy      string
		expected    string
		wantRemoved bool
	}{
		{name: "matching token", canonical: "old", legacy: "older", expected: "old", wantRemoved: true},
		{name: "canonical absent", legacy: "older", expected: "older", wantRemoved: true},
		{name: "replaced token", canonical: "new", legacy: "older", expected: "old", wantRemoved: false},
	}

	for backend, open := range conditionalBackends {
		for _, tt := range tests {
			t.Run(backend+"/"+tt.name, func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				if tt.canonical != "" {
					if err := s.Set(ctx, CanonicalTokenKey, tt.canonical); err != nil {
						t.Fatalf("set canonical: %v", err)
					}
				}
				if err := s.Set(ctx, LegacyTokenKey, tt.legacy); err != nil {
					t.Fatalf("set legacy: %v", err)
				}

				removed, err := s.RemoveIf(ctx, CanonicalTokenKey, tt.expected, LegacyTokenKey)
				if err != nil {
					t.Fatalf("RemoveIf: %v", err)
				}
				if removed != tt.wantRemoved {
					t.Fatalf("expected removed=%v, got %v", tt.wantRemoved, removed)
				}

				_, canonOK, _ := s.Get(ctx, CanonicalTokenKey)
				_, legacyOK, _ := s.Get(ctx, LegacyTokenKey)
				if tt.wantRemoved && (canonOK || legacyOK) {
					t.Fatalf("expected both keys gone, canonical=%v legacy=%v", canonOK, legacyOK)
				}
				if !tt.wantRemoved {
					if v, _, _ := s.Get(ctx, CanonicalTokenKey); v != tt.canonical || !legacyOK {
						t.Fatalf("expected keys kept, canonical=%q legacy=%v", v, legacyOK)
					}
				}
			})
		}
	}
}

func TestRemoveIfRejectsEmptyKey(t *testing.T) {
	s := NewMemoryBackend().Open()
	if _, err := s.RemoveIf(context.Background(), "", "x"); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
