package application

import (
	"context"
	"sync"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

type loadFunc[Req, T any] func(ctx context.Context, req Req, completion func(domain.Result[T])) domain.Task

// fallbackComposite tries primary and, when it fails or finds nothing, fallback.
// Only the final outcome reaches the caller.
type fallbackComposite[Req, T any] struct {
	primary  loadFunc[Req, T]
	fallback loadFunc[Req, T]
	isEmpty  func(T) bool
	resource string
	logger   domain.Logger
}

const (
	stagePrimary = iota + 1
	stageFallback
)

// fallbackState is allocated per load call and tracks the stage in flight.
type fallbackState struct {
	mu        sync.Mutex
	current   domain.Task
	stage     int
	cancelled bool
}

// track makes t the active task unless a later stage already registered.
// A task tracked after cancellation is cancelled right away.
func (s *fallbackState) track(stage int, t domain.Task) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		if t != nil {
			t.Cancel()
		}
		return
	}
	if stage < s.stage {
		s.mu.Unlock()
		return
	}
	s.stage = stage
	s.current = t
	s.mu.Unlock()
}

func (s *fallbackState) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *fallbackState) cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current != nil {
		current.Cancel()
	}
}

func (c *fallbackComposite[Req, T]) load(ctx context.Context, req Req, completion func(domain.Result[T])) domain.Task {
	outer := NewCancellableTask(completion)
	state := &fallbackState{}
	outer.SetWrapped(state.cancel)

	primaryTask := c.primary(ctx, req, func(r domain.Result[T]) {
		if r.Err == nil && !c.isEmpty(r.Value) {
			outer.Complete(r)
			return
		}
		if state.isCancelled() {
			return
		}
		if r.Err != nil {
			c.logger.Debug(ctx, "Primary loader failed, using fallback", "error", r.Err.Error())
		} else {
			c.logger.Debug(ctx, "Primary loader found nothing, using fallback")
		}
		metrics.IncrementFallbackActivation(c.resource)
		state.track(stageFallback, c.fallback(ctx, req, outer.Complete))
	})
	state.track(stagePrimary, primaryTask)
	return outer
}

// UserLoaderWithFallback composes two user loaders, typically local then remote.
type UserLoaderWithFallback struct {
	core fallbackComposite[int, *domain.User]
}

func NewUserLoaderWithFallback(primary, fallback domain.UserLoader, logger domain.Logger) *UserLoaderWithFallback {
	if primary == nil || fallback == nil || logger == nil {
		panic("application: UserLoaderWithFallback requires a primary, a fallback and a logger")
	}
	return &UserLoaderWithFallback{core: fallbackComposite[int, *domain.User]{
		primary:  primary.LoadUser,
		fallback: fallback.LoadUser,
		isEmpty:  func(u *domain.User) bool { return u == nil },
		resource: metrics.ResourceUser,
		logger:   logger,
	}}
}

func (l *UserLoaderWithFallback) LoadUser(ctx context.Context, userID int, completion func(domain.Result[*domain.User])) domain.Task {
	return l.core.load(ctx, userID, completion)
}

type imageRequest struct {
	url    string
	userID int
}

// ImageDataLoaderWithFallback composes two image loaders, typically local then remote.
type ImageDataLoaderWithFallback struct {
	core fallbackComposite[imageRequest, []byte]
}

func NewImageDataLoaderWithFallback(primary, fallback domain.ImageDataLoader, logger domain.Logger) *ImageDataLoaderWithFallback {
	if primary == nil || fallback == nil || logger == nil {
		panic("application: ImageDataLoaderWithFallback requires a primary, a fallback and a logger")
	}
	return &ImageDataLoaderWithFallback{core: fallbackComposite[imageRequest, []byte]{
		primary:  imageLoadFunc(primary),
		fallback: imageLoadFunc(fallback),
		isEmpty:  func(b []byte) bool { return len(b) == 0 },
		resource: metrics.ResourceImage,
		logger:   logger,
	}}
}

func (l *ImageDataLoaderWithFallback) LoadImageData(ctx context.Context, imageURL string, userID int, completion func(domain.Result[[]byte])) domain.Task {
	return l.core.load(ctx, imageRequest{url: imageURL, userID: userID}, completion)
}

func imageLoadFunc(l domain.ImageDataLoader) loadFunc[imageRequest, []byte] {
	return func(ctx context.Context, req imageRequest, completion func(domain.Result[[]byte])) domain.Task {
		return l.LoadImageData(ctx, req.url, req.userID, completion)
	}
}
