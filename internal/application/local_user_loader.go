package application

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
	"gitlab.com/timkado/api/post-loader-service/pkg/safego"
)

// LocalUserLoader reads and writes users through a UserStore, applying the
// cache policy on every read.
type LocalUserLoader struct {
	store       domain.UserStore
	policy      CachePolicy
	currentDate func() time.Time
	logger      domain.Logger
}

// NewLocalUserLoader panics on a nil store or logger. A nil currentDate means time.Now.
func NewLocalUserLoader(store domain.UserStore, policy CachePolicy, currentDate func() time.Time, logger domain.Logger) *LocalUserLoader {
	if store == nil {
		panic("application: LocalUserLoader requires a UserStore")
	}
	if logger == nil {
		panic("application: LocalUserLoader requires a Logger")
	}
	if currentDate == nil {
		currentDate = time.Now
	}
	return &LocalUserLoader{
		store:       store,
		policy:      policy,
		currentDate: currentDate,
		logger:      logger,
	}
}

// SaveUser replaces the cached record for user.ID. The insert is skipped when the delete fails.
func (l *LocalUserLoader) SaveUser(ctx context.Context, user domain.User, completion func(error)) {
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, user.ID)
	safego.Execute(ctx, l.logger, "LocalUserLoaderSave", func() {
		completion(l.save(ctx, user))
	})
}

func (l *LocalUserLoader) save(ctx context.Context, user domain.User) error {
	cached := user.ToCached()
	if err := l.store.DeleteUsers(ctx, []domain.CachedUser{cached}); err != nil {
		l.logger.Error(ctx, "Failed to delete previous cached user", "error", err.Error())
		return fmt.Errorf("%w: delete user %d: %v", domain.ErrCacheWriteFailed, user.ID, err)
	}
	if err := l.store.InsertUser(ctx, cached, l.currentDate()); err != nil {
		l.logger.Error(ctx, "Failed to insert cached user", "error", err.Error())
		return fmt.Errorf("%w: insert user %d: %v", domain.ErrCacheWriteFailed, user.ID, err)
	}
	l.logger.Debug(ctx, "User cached")
	return nil
}

// LoadUser delivers the cached user, or a nil value when it is absent or expired.
func (l *LocalUserLoader) LoadUser(ctx context.Context, userID int, completion func(domain.Result[*domain.User])) domain.Task {
	ctx = context.WithValue(ctx, contextkeys.UserIDKey, userID)
	ctx = context.WithValue(ctx, contextkeys.ResourceKey, metrics.ResourceUser)
	return runTask(ctx, l.logger, "LocalUserLoaderLoad", completion, func(ctx context.Context) domain.Result[*domain.User] {
		return l.load(ctx, userID)
	})
}

func (l *LocalUserLoader) load(ctx context.Context, userID int) domain.Result[*domain.User] {
	cached, err := l.store.RetrieveUser(ctx, userID)
	if err != nil {
		l.logger.Error(ctx, "Failed to read cached user", "error", err.Error())
		metrics.IncrementCacheLookup(metrics.ResourceUser, metrics.OutcomeError)
		return domain.Result[*domain.User]{Err: fmt.Errorf("%w: user %d: %v", domain.ErrCacheReadFailed, userID, err)}
	}
	if cached == nil {
		l.logger.Debug(ctx, "User cache miss")
		metrics.IncrementCacheLookup(metrics.ResourceUser, metrics.OutcomeMiss)
		return domain.Result[*domain.User]{}
	}
	if cached.InsertedAt == nil || !l.policy.Validate(*cached.InsertedAt, l.currentDate()) {
		l.logger.Debug(ctx, "Cached user expired")
		metrics.IncrementCacheLookup(metrics.ResourceUser, metrics.OutcomeExpired)
		return domain.Result[*domain.User]{}
	}

	l.logger.Debug(ctx, "User cache hit")
	metrics.IncrementCacheLookup(metrics.ResourceUser, metrics.OutcomeHit)
	user := cached.ToUser()
	return domain.Result[*domain.User]{Value: &user}
}

// ValidateCache removes every record whose timestamp is missing or expired in a
// single batch. When the store cannot list its records the whole cache is cleared.
func (l *LocalUserLoader) ValidateCache(ctx context.Context, completion func(error)) {
	safego.Execute(ctx, l.logger, "LocalUserLoaderValidate", func() {
		completion(l.validate(ctx))
	})
}

func (l *LocalUserLoader) validate(ctx context.Context) error {
	users, err := l.store.RetrieveAllUsers(ctx)
	if err != nil {
		l.logger.Warn(ctx, "Cached users unreadable, clearing user cache", "error", err.Error())
		if clearErr := l.store.ClearUsers(ctx); clearErr != nil {
			l.logger.Error(ctx, "Failed to clear user cache", "error", clearErr.Error())
			return fmt.Errorf("%w: clear users: %v", domain.ErrCacheWriteFailed, clearErr)
		}
		return nil
	}

	now := l.currentDate()
	var expired []domain.CachedUser
	for _, u := range users {
		if u.InsertedAt == nil || !l.policy.Validate(*u.InsertedAt, now) {
			expired = append(expired, u)
		}
	}
	if len(expired) == 0 {
		l.logger.Debug(ctx, "User cache validated, nothing expired", "records", len(users))
		return nil
	}

	if err := l.store.DeleteUsers(ctx, expired); err != nil {
		l.logger.Error(ctx, "Failed to delete expired users", "expired", len(expired), "error", err.Error())
		return fmt.Errorf("%w: delete expired users: %v", domain.ErrCacheWriteFailed, err)
	}
	metrics.AddValidationEvictions(len(expired))
	l.logger.Info(ctx, "Expired users removed from cache", "expired", len(expired), "records", len(users))
	return nil
}
