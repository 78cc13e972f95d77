package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/metrics"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

const (
	// AuthTokenHeader carries the session token on every authenticated backend call.
	AuthTokenHeader = "x-access-token"

	authorizationFailedMessage = "authorization failed: api key invalid"
)

// errAPIKeyRejected marks an ErrNotAuthorized that came from the backend rather
// than from the token provider.
var errAPIKeyRejected = errors.New("backend rejected api key")

type remoteErrorMessage struct {
	Message *string `json:"message"`
}

type remoteUser struct {
	ID     int     `json:"id"`
	Avatar *string `json:"avatar"`
	Name   *string `json:"name"`
}

func (r remoteUser) toDomain() domain.User {
	u := domain.User{ID: r.ID}
	if r.Name != nil {
		u.Name = *r.Name
	}
	if r.Avatar != nil {
		if parsed, err := url.Parse(*r.Avatar); err == nil && parsed.IsAbs() {
			u.AvatarURL = parsed.String()
		}
	}
	return u
}

type remotePost struct {
	ID     int     `json:"id"`
	UserID *int    `json:"userId"`
	Title  *string `json:"title"`
	Body   *string `json:"body"`
}

func (r remotePost) toDomain() domain.Post {
	p := domain.Post{ID: r.ID, UserID: r.UserID}
	if r.Title != nil {
		p.Title = *r.Title
	}
	if r.Body != nil {
		p.Body = *r.Body
	}
	return p
}

type remoteSessionToken struct {
	APIKey *string `json:"api_key"`
}

// remoteFetcher performs one authenticated GET against the backend and maps
// the failures that happen before a response exists.
type remoteFetcher struct {
	client        domain.HTTPClient
	tokenProvider domain.TokenProvider
	resource      string

	// onAuthRejected runs when the backend refuses the attached token.
	onAuthRejected func()
}

func (f remoteFetcher) fetch(ctx context.Context, rawURL string) (*domain.HTTPResponse, error) {
	header := http.Header{}
	if f.tokenProvider != nil {
		token, err := f.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: token provider: %v", domain.ErrNotAuthorized, err)
		}
		header.Set(AuthTokenHeader, token)
	}

	req, err := newGetRequest(ctx, rawURL, header)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", domain.ErrConnectivity, req.URL.Redacted(), err)
	}
	return resp, nil
}

// noteRejection fires onAuthRejected for a backend authorization failure.
func (f remoteFetcher) noteRejection(err error) {
	if f.onAuthRejected != nil && errors.Is(err, errAPIKeyRejected) {
		f.onAuthRejected()
	}
}

// newGetRequest accepts absolute http(s) URLs only.
func newGetRequest(ctx context.Context, rawURL string, header http.Header) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q is not an absolute http url", domain.ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// decodeRemote decodes a 200 response into T. Anything else is mapped through
// the backend error message rule.
func decodeRemote[T any](resp *domain.HTTPResponse) (T, error) {
	var v T
	if resp.StatusCode == http.StatusOK {
		err := json.Unmarshal(resp.Body, &v)
		if err == nil {
			return v, nil
		}
		return v, mapBackendError(resp, err)
	}
	return v, mapBackendError(resp, fmt.Errorf("unexpected status %d", resp.StatusCode))
}

// mapBackendError returns ErrNotAuthorized when a 200 body carries the backend's
// authorization failure message and ErrInvalidData otherwise.
func mapBackendError(resp *domain.HTTPResponse, cause error) error {
	if resp.StatusCode == http.StatusOK {
		var msg remoteErrorMessage
		if err := json.Unmarshal(resp.Body, &msg); err == nil && msg.Message != nil {
			if strings.ToLower(*msg.Message) == authorizationFailedMessage {
				return fmt.Errorf("%w: %w", domain.ErrNotAuthorized, errAPIKeyRejected)
			}
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidData, cause)
}

// remoteOutcome is the metrics label for a load result.
func remoteOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, domain.ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, domain.ErrConnectivity):
		return "connectivity"
	case errors.Is(err, domain.ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return metrics.OutcomeError
	}
}

func observeRemote(resource string, err error, started time.Time) {
	metrics.ObserveRemoteRequest(resource, remoteOutcome(err), started)
}
