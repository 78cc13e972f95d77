package application

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

// tokenLoaderStub counts blocking Load calls. When gate is set Load waits for it.
type tokenLoaderStub struct {
	calls atomic.Int32
	gate  chan struct{}
	token string
	err   error
}

func (l *tokenLoaderStub) LoadToken(ctx context.Context, completion func(domain.Result[string])) domain.Task {
	token, err := l.Load(ctx)
	completion(domain.Result[string]{Value: token, Err: err})
	return &taskSpy{}
}

func (l *tokenLoaderStub) Load(ctx context.Context) (string, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.token, l.err
}

func TestSessionTokenProviderMemoisesUntilTTL(t *testing.T) {
	loader := &tokenLoaderStub{token: "tok"}
	provider := NewSessionTokenProvider(loader, time.Minute, testLogger())
	now := fixedNow()
	provider.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		token, err := provider.Token(context.Background())
		if err != nil || token != "tok" {
			t.Fatalf("Token = (%q, %v)", token, err)
		}
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("login calls = %d, want 1", got)
	}

	now = now.Add(time.Minute)
	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("Token after expiry: %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("login calls after expiry = %d, want 2", got)
	}

	provider.Invalidate()
	_, _ = provider.Token(context.Background())
	if got := loader.calls.Load(); got != 3 {
		t.Fatalf("login calls after invalidate = %d, want 3", got)
	}
}

func TestSessionTokenProviderZeroTTLLogsInEveryTime(t *testing.T) {
	loader := &tokenLoaderStub{token: "tok"}
	provider := NewSessionTokenProvider(loader, 0, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := provider.Provider()(context.Background()); err != nil {
			t.Fatalf("Token: %v", err)
		}
	}
	if got := loader.calls.Load(); got != 3 {
		t.Fatalf("login calls = %d, want 3", got)
	}
}

func TestSessionTokenProviderSharesConcurrentLogin(t *testing.T) {
	loader := &tokenLoaderStub{token: "tok", gate: make(chan struct{})}
	provider := NewSessionTokenProvider(loader, time.Minute, testLogger())

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], _ = provider.Token(context.Background())
		}()
	}

	deadline := time.Now().Add(testTimeout)
	for loader.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(loader.gate)
	wg.Wait()

	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("login calls = %d, want 1", got)
	}
	for i, tok := range tokens {
		if tok != "tok" {
			t.Fatalf("caller %d got %q", i, tok)
		}
	}
}

func TestSessionTokenProviderDoesNotCacheFailures(t *testing.T) {
	loader := &tokenLoaderStub{err: domain.ErrConnectivity}
	provider := NewSessionTokenProvider(loader, time.Minute, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := provider.Token(context.Background()); !errors.Is(err, domain.ErrConnectivity) {
			t.Fatalf("err = %v, want ErrConnectivity", err)
		}
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("login calls = %d, want 2", got)
	}
}

func TestSessionTokenProviderFailureBecomesNotAuthorized(t *testing.T) {
	provider := NewSessionTokenProvider(&tokenLoaderStub{err: domain.ErrInvalidData}, 0, testLogger())
	client := newHTTPClientStub(200, usersBody)
	loader := NewRemoteUserLoader(testUsersURL, client, provider.Provider(), testLogger())

	if r := loadRemoteUser(t, loader, 1); !errors.Is(r.Err, domain.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", r.Err)
	}
	if n := len(client.Requests()); n != 0 {
		t.Fatalf("requests = %d, want 0", n)
	}
}

const rejectedKeyBody = `{"message":"Authorization Failed: API Key invalid"}`

func TestRejectedSessionTokenForcesFreshLogin(t *testing.T) {
	t.Run("users", func(t *testing.T) {
		loader := &tokenLoaderStub{token: "tok"}
		provider := NewSessionTokenProvider(loader, time.Hour, testLogger())
		users := NewRemoteUserLoader(testUsersURL, newHTTPClientStub(http.StatusOK, rejectedKeyBody), provider.Provider(), testLogger()).
			OnAuthRejected(provider.Invalidate)

		for i := 0; i < 3; i++ {
			if r := loadRemoteUser(t, users, 1); !errors.Is(r.Err, domain.ErrNotAuthorized) {
				t.Fatalf("load %d: err = %v, want ErrNotAuthorized", i, r.Err)
			}
		}
		if got := loader.calls.Load(); got != 3 {
			t.Fatalf("login calls = %d, want 3", got)
		}
	})

	t.Run("posts", func(t *testing.T) {
		loader := &tokenLoaderStub{token: "tok"}
		provider := NewSessionTokenProvider(loader, time.Hour, testLogger())
		posts := NewRemotePostLoader(testPostsURL, newHTTPClientStub(http.StatusOK, rejectedKeyBody), provider.Provider(), testLogger()).
			OnAuthRejected(provider.Invalidate)

		for i := 0; i < 2; i++ {
			ch, completion := resultChan[[]domain.Post]()
			posts.LoadPosts(context.Background(), completion)
			if r := waitResult(t, ch); !errors.Is(r.Err, domain.ErrNotAuthorized) {
				t.Fatalf("load %d: err = %v, want ErrNotAuthorized", i, r.Err)
			}
		}
		if got := loader.calls.Load(); got != 2 {
			t.Fatalf("login calls = %d, want 2", got)
		}
	})
}

func TestSessionTokenKeptOnOtherRemoteOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"success", http.StatusOK, usersBody},
		{"other message", http.StatusOK, `{"message":"rate limited"}`},
		{"rejection text on 401", http.StatusUnauthorized, rejectedKeyBody},
		{"server error", http.StatusInternalServerError, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &tokenLoaderStub{token: "tok"}
			provider := NewSessionTokenProvider(loader, time.Hour, testLogger())
			rejected := 0
			users := NewRemoteUserLoader(testUsersURL, newHTTPClientStub(tt.status, tt.body), provider.Provider(), testLogger()).
				OnAuthRejected(func() {
					rejected++
					provider.Invalidate()
				})

			for i := 0; i < 3; i++ {
				loadRemoteUser(t, users, 1)
			}
			if rejected != 0 {
				t.Fatalf("rejection callback ran %d times", rejected)
			}
			if got := loader.calls.Load(); got != 1 {
				t.Fatalf("login calls = %d, want 1", got)
			}
		})
	}
}

func TestLoginFailureDoesNotReportRejection(t *testing.T) {
	loader := &tokenLoaderStub{err: errors.New("login down")}
	provider := NewSessionTokenProvider(loader, time.Hour, testLogger())
	client := newHTTPClientStub(http.StatusOK, usersBody)
	rejected := false
	users := NewRemoteUserLoader(testUsersURL, client, provider.Provider(), testLogger()).
		OnAuthRejected(func() { rejected = true })

	if r := loadRemoteUser(t, users, 1); !errors.Is(r.Err, domain.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", r.Err)
	}
	if rejected {
		t.Fatal("rejection callback ran for a login failure")
	}
	if n := len(client.Requests()); n != 0 {
		t.Fatalf("backend requests = %d, want 0", n)
	}
}
