package application

import (
	"context"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
)

// RemotePostLoader fetches the post feed.
type RemotePostLoader struct {
	url     string
	fetcher remoteFetcher
	logger  domain.Logger
}

func NewRemotePostLoader(url string, client domain.HTTPClient, tokenProvider domain.TokenProvider, logger domain.Logger) *RemotePostLoader {
	if client == nil || tokenProvider == nil || logger == nil {
		panic("application: RemotePostLoader requires a client, a token provider and a logger")
	}
	return &RemotePostLoader{
		url:     url,
		fetcher: remoteFetcher{client: client, tokenProvider: tokenProvider, resource: metrics.ResourcePosts},
		logger:  logger,
	}
}

// OnAuthRejected registers fn to run whenever the backend rejects the session
// token, typically SessionTokenProvider.Invalidate. Call it before the first load.
func (l *RemotePostLoader) OnAuthRejected(fn func()) *RemotePostLoader {
	l.fetcher.onAuthRejected = fn
	return l
}

func (l *RemotePostLoader) LoadPosts(ctx context.Context, completion func(domain.Result[[]domain.Post])) domain.Task {
	ctx = context.WithValue(ctx, contextkeys.ResourceKey, metrics.ResourcePosts)
	return runTask(ctx, l.logger, "RemotePostLoaderLoad", completion, func(ctx context.Context) domain.Result[[]domain.Post] {
		started := time.Now()
		posts, err := l.load(ctx)
		observeRemote(metrics.ResourcePosts, err, started)
		if err != nil {
			l.logger.Warn(ctx, "Remote post load failed", "error", err.Error())
			return domain.Result[[]domain.Post]{Err: err}
		}
		return domain.Result[[]domain.Post]{Value: posts}
	})
}

func (l *RemotePostLoader) load(ctx context.Context) ([]domain.Post, error) {
	resp, err := l.fetcher.fetch(ctx, l.url)
	if err != nil {
		return nil, err
	}
	remote, err := decodeRemote[[]remotePost](resp)
	if err != nil {
		l.fetcher.noteRejection(err)
		return nil, err
	}
	posts := make([]domain.Post, 0, len(remote))
	for _, rp := range remote {
		posts = append(posts, rp.toDomain())
	}
	return posts, nil
}
