package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/logger"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "post-store.sqlite")
	store, err := Open(context.Background(), path, logger.NewFromZap(zap.NewNop()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  ", logger.NewFromZap(zap.NewNop())); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "post-store.sqlite")
	log := logger.NewFromZap(zap.NewNop())
	for i := 0; i < 2; i++ {
		store, err := Open(context.Background(), path, log)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
}

func TestStoreUserLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	first := time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)

	if u, err := store.RetrieveUser(ctx, 1); err != nil || u != nil {
		t.Fatalf("RetrieveUser on empty store = (%+v, %v)", u, err)
	}

	if err := store.InsertUser(ctx, domain.CachedUser{ID: 1, Name: "A", AvatarURL: "https://example.com/a.png"}, first); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if err := store.InsertUser(ctx, domain.CachedUser{ID: 1, Name: "B"}, second); err != nil {
		t.Fatalf("InsertUser overwrite: %v", err)
	}
	if err := store.InsertUser(ctx, domain.CachedUser{ID: 2, Name: "C"}, first); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}

	got, err := store.RetrieveUser(ctx, 1)
	if err != nil {
		t.Fatalf("RetrieveUser: %v", err)
	}
	if got.Name != "B" || got.AvatarURL != "" {
		t.Fatalf("RetrieveUser = %+v, want the second insert with no merged fields", got)
	}
	if got.InsertedAt == nil || !got.InsertedAt.Equal(second) {
		t.Fatalf("InsertedAt = %v, want %v", got.InsertedAt, second)
	}

	all, err := store.RetrieveAllUsers(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("RetrieveAllUsers = (%+v, %v), want 2 records", all, err)
	}

	if err := store.DeleteUsers(ctx, []domain.CachedUser{{ID: 1}, {ID: 99}}); err != nil {
		t.Fatalf("DeleteUsers: %v", err)
	}
	if u, _ := store.RetrieveUser(ctx, 1); u != nil {
		t.Fatalf("user 1 should be deleted, got %+v", u)
	}

	if err := store.ClearUsers(ctx); err != nil {
		t.Fatalf("ClearUsers: %v", err)
	}
	if all, err := store.RetrieveAllUsers(ctx); err != nil || len(all) != 0 {
		t.Fatalf("RetrieveAllUsers after clear = (%+v, %v)", all, err)
	}
}

func TestStoreImageOverwrite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if data, err := store.RetrieveImageData(ctx, 7); err != nil || data != nil {
		t.Fatalf("RetrieveImageData on empty store = (%q, %v)", data, err)
	}
	if err := store.InsertImageData(ctx, []byte("one"), 7, "https://example.com/1.png"); err != nil {
		t.Fatalf("InsertImageData: %v", err)
	}
	if err := store.InsertImageData(ctx, []byte("two"), 7, "https://example.com/2.png"); err != nil {
		t.Fatalf("InsertImageData overwrite: %v", err)
	}

	data, err := store.RetrieveImageData(ctx, 7)
	if err != nil || !bytes.Equal(data, []byte("two")) {
		t.Fatalf("RetrieveImageData = (%q, %v), want two", data, err)
	}
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.RetrieveUser(ctx, 1); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;\n"
	if got := extractUpMigration(content); got != "\nCREATE TABLE a(x);\n" {
		t.Fatalf("extractUpMigration = %q", got)
	}
	if got := extractUpMigration("SELECT 1;"); got != "SELECT 1;" {
		t.Fatalf("extractUpMigration without markers = %q", got)
	}
}
