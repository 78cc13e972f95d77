package application

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/logger"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

const testTimeout = 2 * time.Second

func testLogger() domain.Logger {
	return logger.NewFromZap(zap.NewNop())
}

func fixedNow() time.Time {
	return time.Date(2024, time.June, 10, 9, 30, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

// waitResult fails the test if nothing arrives on ch in time.
func waitResult[T any](t *testing.T, ch <-chan domain.Result[T]) domain.Result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for completion")
		return domain.Result[T]{}
	}
}

// expectNoResult fails the test if anything arrives on ch within a short window.
func expectNoResult[T any](t *testing.T, ch <-chan domain.Result[T]) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected completion: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for completion")
		return nil
	}
}

func resultChan[T any]() (chan domain.Result[T], func(domain.Result[T])) {
	ch := make(chan domain.Result[T], 4)
	return ch, func(r domain.Result[T]) { ch <- r }
}

// userStoreStub is an in-memory UserStore with injectable failures.
// When retrieveGate is set RetrieveUser waits for it or for ctx to end.
type userStoreStub struct {
	mu      sync.Mutex
	records map[int]domain.CachedUser

	retrieveErr    error
	retrieveAllErr error
	insertErr      error
	deleteErr      error
	clearErr       error
	retrieveGate   chan struct{}

	calls   []string
	deleted [][]domain.CachedUser
}

func newUserStoreStub() *userStoreStub {
	return &userStoreStub{records: make(map[int]domain.CachedUser)}
}

func (s *userStoreStub) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *userStoreStub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *userStoreStub) RetrieveUser(ctx context.Context, userID int) (*domain.CachedUser, error) {
	s.record("retrieve")
	if s.retrieveGate != nil {
		select {
		case <-s.retrieveGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	u, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *userStoreStub) RetrieveAllUsers(ctx context.Context) ([]domain.CachedUser, error) {
	s.record("retrieve_all")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retrieveAllErr != nil {
		return nil, s.retrieveAllErr
	}
	users := make([]domain.CachedUser, 0, len(s.records))
	for _, u := range s.records {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *userStoreStub) InsertUser(ctx context.Context, user domain.CachedUser, timestamp time.Time) error {
	s.record("insert")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	ts := timestamp
	user.InsertedAt = &ts
	s.records[user.ID] = user
	return nil
}

func (s *userStoreStub) DeleteUsers(ctx context.Context, users []domain.CachedUser) error {
	s.record("delete")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, users)
	for _, u := range users {
		delete(s.records, u.ID)
	}
	return nil
}

func (s *userStoreStub) ClearUsers(ctx context.Context) error {
	s.record("clear")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.records = make(map[int]domain.CachedUser)
	return nil
}

// put seeds a record directly, bypassing InsertUser bookkeeping.
func (s *userStoreStub) put(u domain.CachedUser) {
	s.mu.Lock()
	s.records[u.ID] = u
	s.mu.Unlock()
}

func (s *userStoreStub) get(id int) (domain.CachedUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[id]
	return u, ok
}

// imageStoreStub is an in-memory ImageDataStore.
type imageStoreStub struct {
	mu          sync.Mutex
	blobs       map[int][]byte
	sources     map[int]string
	retrieveErr error
	insertErr   error
}

func newImageStoreStub() *imageStoreStub {
	return &imageStoreStub{blobs: make(map[int][]byte), sources: make(map[int]string)}
}

func (s *imageStoreStub) RetrieveImageData(ctx context.Context, userID int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retrieveErr != nil {
		return nil, s.retrieveErr
	}
	return s.blobs[userID], nil
}

func (s *imageStoreStub) InsertImageData(ctx context.Context, data []byte, userID int, sourceURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.blobs[userID] = append([]byte(nil), data...)
	s.sources[userID] = sourceURL
	return nil
}

// httpClientStub answers every request with the same response or error.
// When gate is set Do waits for it or for the request context to end.
type httpClientStub struct {
	mu       sync.Mutex
	requests []*http.Request
	resp     *domain.HTTPResponse
	err      error
	gate     chan struct{}
	started  chan struct{}
}

func newHTTPClientStub(status int, body string) *httpClientStub {
	return &httpClientStub{resp: &domain.HTTPResponse{StatusCode: status, Header: http.Header{}, Body: []byte(body)}}
}

func (c *httpClientStub) Do(req *http.Request) (*domain.HTTPResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	started := c.started
	c.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

func (c *httpClientStub) Requests() []*http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Request(nil), c.requests...)
}

func staticToken(token string) domain.TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

func failingToken(err error) domain.TokenProvider {
	return func(context.Context) (string, error) { return "", err }
}

// taskSpy counts Cancel calls.
type taskSpy struct {
	cancels atomic.Int32
}

func (t *taskSpy) Cancel() { t.cancels.Add(1) }

func (t *taskSpy) Cancelled() bool { return t.cancels.Load() > 0 }

// userLoaderStub captures requests and lets the test complete them by index.
type userLoaderStub struct {
	mu          sync.Mutex
	requests    []int
	completions []func(domain.Result[*domain.User])
	tasks       []*taskSpy
}

func (l *userLoaderStub) LoadUser(ctx context.Context, userID int, completion func(domain.Result[*domain.User])) domain.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := &taskSpy{}
	l.requests = append(l.requests, userID)
	l.completions = append(l.completions, completion)
	l.tasks = append(l.tasks, t)
	return t
}

func (l *userLoaderStub) complete(i int, r domain.Result[*domain.User]) {
	l.mu.Lock()
	c := l.completions[i]
	l.mu.Unlock()
	c(r)
}

func (l *userLoaderStub) task(i int) *taskSpy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks[i]
}

func (l *userLoaderStub) Requests() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.requests...)
}

type imageLoadRequest struct {
	url    string
	userID int
}

// imageLoaderStub is the ImageDataLoader counterpart of userLoaderStub.
type imageLoaderStub struct {
	mu          sync.Mutex
	requests    []imageLoadRequest
	completions []func(domain.Result[[]byte])
	tasks       []*taskSpy
}

func (l *imageLoaderStub) LoadImageData(ctx context.Context, imageURL string, userID int, completion func(domain.Result[[]byte])) domain.Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := &taskSpy{}
	l.requests = append(l.requests, imageLoadRequest{url: imageURL, userID: userID})
	l.completions = append(l.completions, completion)
	l.tasks = append(l.tasks, t)
	return t
}

func (l *imageLoaderStub) complete(i int, r domain.Result[[]byte]) {
	l.mu.Lock()
	c := l.completions[i]
	l.mu.Unlock()
	c(r)
}

func (l *imageLoaderStub) task(i int) *taskSpy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks[i]
}

func (l *imageLoaderStub) Requests() []imageLoadRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]imageLoadRequest(nil), l.requests...)
}

// userLoaderFunc completes synchronously with whatever the function returns.
type userLoaderFunc func(ctx context.Context, userID int) domain.Result[*domain.User]

func (f userLoaderFunc) LoadUser(ctx context.Context, userID int, completion func(domain.Result[*domain.User])) domain.Task {
	completion(f(ctx, userID))
	return &taskSpy{}
}

type postLoaderFunc func(ctx context.Context) domain.Result[[]domain.Post]

func (f postLoaderFunc) LoadPosts(ctx context.Context, completion func(domain.Result[[]domain.Post])) domain.Task {
	completion(f(ctx))
	return &taskSpy{}
}

// userCacheSpy signals every save on saved.
type userCacheSpy struct {
	err   error
	saved chan domain.User
}

func newUserCacheSpy(err error) *userCacheSpy {
	return &userCacheSpy{err: err, saved: make(chan domain.User, 4)}
}

func (c *userCacheSpy) SaveUser(ctx context.Context, user domain.User, completion func(error)) {
	c.saved <- user
	completion(c.err)
}

type savedImage struct {
	data   []byte
	userID int
	url    string
}

type imageCacheSpy struct {
	err   error
	saved chan savedImage
}

func newImageCacheSpy(err error) *imageCacheSpy {
	return &imageCacheSpy{err: err, saved: make(chan savedImage, 4)}
}

func (c *imageCacheSpy) SaveImageData(ctx context.Context, data []byte, userID int, imageURL string, completion func(error)) {
	c.saved <- savedImage{data: data, userID: userID, url: imageURL}
	completion(c.err)
}

// validatorStub reports every sweep on runs.
type validatorStub struct {
	err  error
	runs chan struct{}
}

func newValidatorStub(err error) *validatorStub {
	return &validatorStub{err: err, runs: make(chan struct{}, 16)}
}

func (v *validatorStub) ValidateCache(ctx context.Context, completion func(error)) {
	select {
	case v.runs <- struct{}{}:
	default:
	}
	completion(v.err)
}
