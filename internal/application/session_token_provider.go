package application

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// SessionTokenProvider turns a SessionTokenLoader into a TokenProvider.
// Concurrent callers share one login request. A token is reused until ttl
// elapses; a zero ttl logs in on every call.
type SessionTokenProvider struct {
	loader domain.SessionTokenLoader
	ttl    time.Duration
	now    func() time.Time
	logger domain.Logger

	group     singleflight.Group
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewSessionTokenProvider(loader domain.SessionTokenLoader, ttl time.Duration, logger domain.Logger) *SessionTokenProvider {
	if loader == nil || logger == nil {
		panic("application: SessionTokenProvider requires a loader and a logger")
	}
	return &SessionTokenProvider{loader: loader, ttl: ttl, now: time.Now, logger: logger}
}

// Token satisfies domain.TokenProvider.
func (p *SessionTokenProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	ch := p.group.DoChan("session_token", func() (any, error) {
		// Shared login must not be cancelled by whichever caller started it.
		token, err := p.loader.Load(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		p.store(token)
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			p.logger.Debug(ctx, "Session token login shared with concurrent callers")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Provider returns Token as a domain.TokenProvider.
func (p *SessionTokenProvider) Provider() domain.TokenProvider {
	return p.Token
}

// Invalidate drops the memoised token.
func (p *SessionTokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()
}

func (p *SessionTokenProvider) cached() (string, bool) {
	if p.ttl <= 0 {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" || !p.now().Before(p.expiresAt) {
		return "", false
	}
	return p.token, true
}

func (p *SessionTokenProvider) store(token string) {
	if p.ttl <= 0 {
		return
	}
	p.mu.Lock()
	p.token = token
	p.expiresAt = p.now().Add(p.ttl)
	p.mu.Unlock()
}
