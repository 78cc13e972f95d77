package application

import (
	"context"
	"net/http"
	"testing"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

func BenchmarkComposedUserLoaderLocalHit(b *testing.B) {
	store := newUserStoreStub()
	inserted := fixedNow()
	store.put(domain.CachedUser{ID: 1, Name: "Leanne", InsertedAt: &inserted})
	loader := composeUserLoader(store, newHTTPClientStub(http.StatusOK, usersBody))
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		user, err := Await(ctx, func(ctx context.Context, c func(domain.Result[*domain.User])) domain.Task {
			return loader.LoadUser(ctx, 1, c)
		})
		if err != nil || user == nil {
			b.Fatalf("load = (%+v, %v)", user, err)
		}
	}
}

func BenchmarkCachePolicyValidate(b *testing.B) {
	policy := NewCachePolicy(time.UTC)
	inserted := fixedNow()
	now := inserted.Add(72 * time.Hour)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if !policy.Validate(inserted, now) {
			b.Fatal("expected valid")
		}
	}
}
