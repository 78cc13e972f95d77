package application

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
)

// FeedService loads the post list and fills each post with its author's name
// and avatar URL. Authors are resolved in parallel, at most concurrency at a time.
type FeedService struct {
	posts       domain.PostLoader
	users       domain.UserLoader
	concurrency int
	logger      domain.Logger
}

func NewFeedService(posts domain.PostLoader, users domain.UserLoader, concurrency int, logger domain.Logger) *FeedService {
	if posts == nil || users == nil || logger == nil {
		panic("application: FeedService requires a post loader, a user loader and a logger")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &FeedService{posts: posts, users: users, concurrency: concurrency, logger: logger}
}

// LoadPosts makes the enriched feed available through the PostLoader shape.
func (s *FeedService) LoadPosts(ctx context.Context, completion func(domain.Result[[]domain.Post])) domain.Task {
	return runTask(ctx, s.logger, "FeedServiceLoad", completion, func(ctx context.Context) domain.Result[[]domain.Post] {
		posts, err := s.Feed(ctx)
		return domain.Result[[]domain.Post]{Value: posts, Err: err}
	})
}

// Feed blocks until the enriched feed is ready. A failing author lookup leaves
// that author's posts without name and avatar.
func (s *FeedService) Feed(ctx context.Context) ([]domain.Post, error) {
	posts, err := Await(ctx, s.posts.LoadPosts)
	if err != nil {
		return nil, err
	}

	authors := s.resolveAuthors(ctx, distinctUserIDs(posts))
	for i := range posts {
		if posts[i].UserID == nil {
			continue
		}
		if u, ok := authors[*posts[i].UserID]; ok {
			posts[i].UserName = u.Name
			posts[i].UserAvatarURL = u.AvatarURL
		}
	}
	return posts, nil
}

func (s *FeedService) resolveAuthors(ctx context.Context, ids []int) map[int]domain.User {
	var (
		mu      sync.Mutex
		authors = make(map[int]domain.User, len(ids))
		g       errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		g.Go(func() error {
			userCtx := context.WithValue(ctx, contextkeys.UserIDKey, id)
			user, err := Await(userCtx, func(ctx context.Context, completion func(domain.Result[*domain.User])) domain.Task {
				return s.users.LoadUser(ctx, id, completion)
			})
			if err != nil {
				s.logger.Warn(userCtx, "Post author could not be resolved", "error", err.Error())
				return nil
			}
			if user == nil {
				return nil
			}
			mu.Lock()
			authors[id] = *user
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return authors
}

func distinctUserIDs(posts []domain.Post) []int {
	seen := make(map[int]struct{})
	var ids []int
	for _, p := range posts {
		if p.UserID == nil {
			continue
		}
		if _, ok := seen[*p.UserID]; ok {
			continue
		}
		seen[*p.UserID] = struct{}{}
		ids = append(ids, *p.UserID)
	}
	return ids
}
