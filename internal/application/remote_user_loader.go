package application

import (
	"context"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
)

// RemoteUserLoader fetches the users list from the backend and picks the
// requested id out of it.
type RemoteUserLoader struct {
	url     string
	fetcher remoteFetcher
	logger  domain.Logger
}

func NewRemoteUserLoader(url string, client domain.HTTPClient, tokenProvider domain.TokenProvider, logger domain.Logger) *RemoteUserLoader {
	if client == nil || tokenProvider == nil || logger == nil {
		panic("application: RemoteUserLoader requires a client, a token provider and a logger")
	}
	return &RemoteUserLoader{
		url:     url,
		fetcher: remoteFetcher{client: client, tokenProvider: tokenProvider, resource: metrics.ResourceUser},
		logger:  logger,
	}
}

// OnAuthRejected registers fn to run whenever the backend rejects the session
// token, typically SessionTokenProvider.Invalidate. Call it before the first load.
func (l *RemoteUserLoader) OnAuthRejected(fn func()) *RemoteUserLoader {
	l.fetcher.onAuthRejected = fn
	return l
}

// LoadUser delivers a nil user when the backend list has no entry for userID.
func (l *RemoteUserLoader) LoadUser(ctx context.Context, userID int, completion func(domain.Result[*domain.User])) domain.Task {
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)
	ctx = context.WithValue(ctx, contextkeys.ResourceKey, metrics.ResourceUser)
	return runTask(ctx, l.logger, "RemoteUserLoaderLoad", completion, func(ctx context.Context) domain.Result[*domain.User] {
		started := time.Now()
		user, err := l.load(ctx, userID)
		observeRemote(metrics.ResourceUser, err, started)
		if err != nil {
			l.logger.Warn(ctx, "Remote user load failed", "error", err.Error())
			return domain.Result[*domain.User]{Err: err}
		}
		return domain.Result[*domain.User]{Value: user}
	})
}

func (l *RemoteUserLoader) load(ctx context.Context, userID int) (*domain.User, error) {
	resp, err := l.fetcher.fetch(ctx, l.url)
	if err != nil {
		return nil, err
	}
	users, err := decodeRemote[[]remoteUser](resp)
	if err != nil {
		l.fetcher.noteRejection(err)
		return nil, err
	}
	for _, ru := range users {
		if ru.ID == userID {
			u := ru.toDomain()
			return &u, nil
		}
	}
	l.logger.Debug(ctx, "User not present in remote list", "listed", len(users))
	return nil, nil
}
