package application

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

func TestUserCacheDecoratorSavesOnSuccess(t *testing.T) {
	inner := &userLoaderStub{}
	cache := newUserCacheSpy(nil)
	sut := NewUserLoaderCacheDecorator(inner, cache, testLogger())
	ch, completion := resultChan[*domain.User]()

	user := &domain.User{ID: 1, Name: "Leanne"}
	sut.LoadUser(context.Background(), 1, completion)
	inner.complete(0, domain.Result[*domain.User]{Value: user})

	if r := waitResult(t, ch); r.Err != nil || r.Value != user {
		t.Fatalf("result = (%+v, %v), want the inner value unchanged", r.Value, r.Err)
	}
	select {
	case saved := <-cache.saved:
		if saved != *user {
			t.Fatalf("saved = %+v, want %+v", saved, *user)
		}
	case <-time.After(testTimeout):
		t.Fatal("user was not saved")
	}
}

func TestUserCacheDecoratorSwallowsSaveError(t *testing.T) {
	inner := &userLoaderStub{}
	cache := newUserCacheSpy(domain.ErrCacheWriteFailed)
	sut := NewUserLoaderCacheDecorator(inner, cache, testLogger())
	ch, completion := resultChan[*domain.User]()

	sut.LoadUser(context.Background(), 1, completion)
	inner.complete(0, domain.Result[*domain.User]{Value: &domain.User{ID: 1}})

	if r := waitResult(t, ch); r.Err != nil {
		t.Fatalf("save failure leaked to caller: %v", r.Err)
	}
	<-cache.saved
	expectNoResult(t, ch)
}

func TestUserCacheDecoratorSkipsSaveOnFailureOrMiss(t *testing.T) {
	loadErr := errors.New("offline")
	for _, r := range []domain.Result[*domain.User]{{Err: loadErr}, {}} {
		inner := &userLoaderStub{}
		cache := newUserCacheSpy(nil)
		sut := NewUserLoaderCacheDecorator(inner, cache, testLogger())
		ch, completion := resultChan[*domain.User]()

		sut.LoadUser(context.Background(), 1, completion)
		inner.complete(0, r)

		got := waitResult(t, ch)
		if !errors.Is(got.Err, r.Err) || got.Value != nil {
			t.Fatalf("result = (%+v, %v), want (%+v, %v)", got.Value, got.Err, r.Value, r.Err)
		}
		select {
		case saved := <-cache.saved:
			t.Fatalf("unexpected save of %+v", saved)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestUserCacheDecoratorSaveOutlivesRequest(t *testing.T) {
	inner := &userLoaderStub{}
	cache := newUserCacheSpy(nil)
	sut := NewUserLoaderCacheDecorator(inner, cache, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	sut.LoadUser(ctx, 1, func(domain.Result[*domain.User]) { cancel() })
	inner.complete(0, domain.Result[*domain.User]{Value: &domain.User{ID: 1}})

	select {
	case <-cache.saved:
	case <-time.After(testTimeout):
		t.Fatal("save should run after the request context is cancelled")
	}
}

func TestImageCacheDecoratorSavesWithRequestKeys(t *testing.T) {
	inner := &imageLoaderStub{}
	cache := newImageCacheSpy(nil)
	sut := NewImageDataLoaderCacheDecorator(inner, cache, testLogger())
	ch, completion := resultChan[[]byte]()

	sut.LoadImageData(context.Background(), "https://cdn.example.com/3.png", 3, completion)
	inner.complete(0, domain.Result[[]byte]{Value: []byte("img")})

	if r := waitResult(t, ch); r.Err != nil || !bytes.Equal(r.Value, []byte("img")) {
		t.Fatalf("result = (%q, %v)", r.Value, r.Err)
	}
	select {
	case saved := <-cache.saved:
		if saved.userID != 3 || saved.url != "https://cdn.example.com/3.png" || !bytes.Equal(saved.data, []byte("img")) {
			t.Fatalf("saved = %+v", saved)
		}
	case <-time.After(testTimeout):
		t.Fatal("image was not saved")
	}
}

func TestCacheDecoratorCancelReachesInnerTask(t *testing.T) {
	inner := &userLoaderStub{}
	sut := NewUserLoaderCacheDecorator(inner, newUserCacheSpy(nil), testLogger())

	sut.LoadUser(context.Background(), 1, func(domain.Result[*domain.User]) {}).Cancel()

	if !inner.task(0).Cancelled() {
		t.Fatal("cancel should be forwarded to the decorated loader")
	}
}
