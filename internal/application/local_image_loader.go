package application

import (
	"context"
	"fmt"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
	"gitlab.com/timkado/api/post-loader-service/pkg/safego"
)

// LocalImageDataLoader reads and writes avatar bytes through an ImageDataStore.
// Blobs are addressed by user id only; the source URL is kept for bookkeeping.
type LocalImageDataLoader struct {
	store  domain.ImageDataStore
	logger domain.Logger
}

func NewLocalImageDataLoader(store domain.ImageDataStore, logger domain.Logger) *LocalImageDataLoader {
	if store == nil {
		panic("application: LocalImageDataLoader requires an ImageDataStore")
	}
	if logger == nil {
		panic("application: LocalImageDataLoader requires a Logger")
	}
	return &LocalImageDataLoader{store: store, logger: logger}
}

// SaveImageData overwrites the blob stored for userID.
func (l *LocalImageDataLoader) SaveImageData(ctx context.Context, data []byte, userID int, imageURL string, completion func(error)) {
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)
	safego.Execute(ctx, l.logger, "LocalImageDataLoaderSave", func() {
		if err := l.store.InsertImageData(ctx, data, userID, imageURL); err != nil {
			l.logger.Error(ctx, "Failed to store image data", "source_url", imageURL, "error", err.Error())
			completion(fmt.Errorf("%w: image for user %d: %v", domain.ErrCacheWriteFailed, userID, err))
			return
		}
		l.logger.Debug(ctx, "Image data cached", "bytes", len(data))
		completion(nil)
	})
}

// LoadImageData delivers the cached bytes, or an empty value when nothing is stored.
func (l *LocalImageDataLoader) LoadImageData(ctx context.Context, imageURL string, userID int, completion func(domain.Result[[]byte])) domain.Task {
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)
	ctx = context.WithValue(ctx, contextkeys.ResourceKey, metrics.ResourceImage)
	return runTask(ctx, l.logger, "LocalImageDataLoaderLoad", completion, func(ctx context.Context) domain.Result[[]byte] {
		data, err := l.store.RetrieveImageData(ctx, userID)
		if err != nil {
			l.logger.Error(ctx, "Failed to read cached image data", "error", err.Error())
			metrics.IncrementCacheLookup(metrics.ResourceImage, metrics.OutcomeError)
			return domain.Result[[]byte]{Err: fmt.Errorf("%w: image for user %d: %v", domain.ErrCacheReadFailed, userID, err)}
		}
		if len(data) == 0 {
			metrics.IncrementCacheLookup(metrics.ResourceImage, metrics.OutcomeMiss)
			return domain.Result[[]byte]{}
		}
		metrics.IncrementCacheLookup(metrics.ResourceImage, metrics.OutcomeHit)
		return domain.Result[[]byte]{Value: data}
	})
}
