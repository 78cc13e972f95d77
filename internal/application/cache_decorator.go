package application

import (
	"context"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/safego"
)

// cacheOnSuccess forwards every result of load unchanged and, for a non-empty
// success, fires save in the background. Save failures are logged and dropped.
type cacheOnSuccess[Req, T any] struct {
	load     loadFunc[Req, T]
	save     func(ctx context.Context, req Req, value T, completion func(error))
	isEmpty  func(T) bool
	resource string
	logger   domain.Logger
}

func (d *cacheOnSuccess[Req, T]) run(ctx context.Context, req Req, completion func(domain.Result[T])) domain.Task {
	return d.load(ctx, req, func(r domain.Result[T]) {
		if r.Err == nil && !d.isEmpty(r.Value) {
			// The save outlives the request that produced the value.
			saveCtx := context.WithoutCancel(ctx)
			safego.Execute(saveCtx, d.logger, "CacheOnSuccessSave", func() {
				d.save(saveCtx, req, r.Value, func(err error) {
					if err != nil {
						d.logger.Warn(saveCtx, "Write-through cache save failed", "error", err.Error())
						metrics.IncrementWriteThrough(d.resource, metrics.OutcomeError)
						return
					}
					metrics.IncrementWriteThrough(d.resource, metrics.OutcomeSuccess)
				})
			})
		}
		completion(r)
	})
}

// UserLoaderCacheDecorator persists every user the wrapped loader finds.
type UserLoaderCacheDecorator struct {
	core cacheOnSuccess[int, *domain.User]
}

func NewUserLoaderCacheDecorator(decoratee domain.UserLoader, cache domain.UserCache, logger domain.Logger) *UserLoaderCacheDecorator {
	if decoratee == nil || cache == nil || logger == nil {
		panic("application: UserLoaderCacheDecorator requires a loader, a cache and a logger")
	}
	return &UserLoaderCacheDecorator{core: cacheOnSuccess[int, *domain.User]{
		load: decoratee.LoadUser,
		save: func(ctx context.Context, _ int, user *domain.User, completion func(error)) {
			cache.SaveUser(ctx, *user, completion)
		},
		isEmpty:  func(u *domain.User) bool { return u == nil },
		resource: metrics.ResourceUser,
		logger:   logger,
	}}
}

func (d *UserLoaderCacheDecorator) LoadUser(ctx context.Context, userID int, completion func(domain.Result[*domain.User])) domain.Task {
	return d.core.run(ctx, userID, completion)
}

// ImageDataLoaderCacheDecorator persists every avatar the wrapped loader downloads.
type ImageDataLoaderCacheDecorator struct {
	core cacheOnSuccess[imageRequest, []byte]
}

func NewImageDataLoaderCacheDecorator(decoratee domain.ImageDataLoader, cache domain.ImageDataCache, logger domain.Logger) *ImageDataLoaderCacheDecorator {
	if decoratee == nil || cache == nil || logger == nil {
		panic("application: ImageDataLoaderCacheDecorator requires a loader, a cache and a logger")
	}
	return &ImageDataLoaderCacheDecorator{core: cacheOnSuccess[imageRequest, []byte]{
		load: imageLoadFunc(decoratee),
		save: func(ctx context.Context, req imageRequest, data []byte, completion func(error)) {
			cache.SaveImageData(ctx, data, req.userID, req.url, completion)
		},
		isEmpty:  func(b []byte) bool { return len(b) == 0 },
		resource: metrics.ResourceImage,
		logger:   logger,
	}}
}

func (d *ImageDataLoaderCacheDecorator) LoadImageData(ctx context.Context, imageURL string, userID int, completion func(domain.Result[[]byte])) domain.Task {
	return d.core.run(ctx, imageRequest{url: imageURL, userID: userID}, completion)
}
