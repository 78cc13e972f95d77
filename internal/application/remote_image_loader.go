package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
)

// RemoteImageDataLoader downloads avatar bytes from the URL given per call.
// tokenProvider may be nil for avatar hosts that need no credentials.
type RemoteImageDataLoader struct {
	fetcher remoteFetcher
	logger  domain.Logger
}

func NewRemoteImageDataLoader(client domain.HTTPClient, tokenProvider domain.TokenProvider, logger domain.Logger) *RemoteImageDataLoader {
	if client == nil || logger == nil {
		panic("application: RemoteImageDataLoader requires a client and a logger")
	}
	return &RemoteImageDataLoader{
		fetcher: remoteFetcher{client: client, tokenProvider: tokenProvider, resource: metrics.ResourceImage},
		logger:  logger,
	}
}

// LoadImageData succeeds only on a 200 response with a non-empty body.
func (l *RemoteImageDataLoader) LoadImageData(ctx context.Context, imageURL string, userID int, completion func(domain.Result[[]byte])) domain.Task {
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)
	ctx = context.WithValue(ctx, contextkeys.ResourceKey, metrics.ResourceImage)
	return runTask(ctx, l.logger, "RemoteImageDataLoaderLoad", completion, func(ctx context.Context) domain.Result[[]byte] {
		started := time.Now()
		data, err := l.load(ctx, imageURL)
		observeRemote(metrics.ResourceImage, err, started)
		if err != nil {
			l.logger.Warn(ctx, "Remote image load failed", "image_url", imageURL, "error", err.Error())
			return domain.Result[[]byte]{Err: err}
		}
		return domain.Result[[]byte]{Value: data}
	})
}

func (l *RemoteImageDataLoader) load(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := l.fetcher.fetch(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK || len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: image response status %d with %d bytes", domain.ErrInvalidData, resp.StatusCode, len(resp.Body))
	}
	return resp.Body, nil
}
