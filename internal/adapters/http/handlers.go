package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"gitlab.com/timkado/api/post-loader-service/internal/application"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
	"gitlab.com/timkado/api/post-loader-service/pkg/contextkeys"
)

// FeedProvider returns the enriched post feed.
type FeedProvider interface {
	Feed(ctx context.Context) ([]domain.Post, error)
}

// CacheValidationTrigger runs one cache sweep on demand.
type CacheValidationTrigger interface {
	Validate(ctx context.Context, trigger string) error
}

type validateResponse struct {
	Status  string `json:"status"`
	Trigger string `json:"trigger"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeLoadError(w http.ResponseWriter, r *http.Request, logger domain.Logger, msg string, err error) {
	errResp, status := domain.ErrorResponseFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(r.Context(), msg, "error", err.Error())
	} else {
		logger.Warn(r.Context(), msg, "error", err.Error())
	}
	errResp.WriteJSON(w, status)
}

// userIDFromPath parses the {id} wildcard and tags the request context with it.
func userIDFromPath(w http.ResponseWriter, r *http.Request, logger domain.Logger) (int, context.Context, bool) {
	raw := r.PathValue("id")
	userID, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn(r.Context(), "Invalid user id in path", "raw_id", raw)
		domain.NewErrorResponse(domain.ErrCodeBadRequest, "Invalid user id", "User id must be an integer.").WriteJSON(w, http.StatusBadRequest)
		return 0, nil, false
	}
	return userID, context.WithValue(r.Context(), contextkeys.UserIDKey, userID), true
}

func loadUser(ctx context.Context, loader domain.UserLoader, userID int) (*domain.User, error) {
	return application.Await(ctx, func(ctx context.Context, completion func(domain.Result[*domain.User])) domain.Task {
		return loader.LoadUser(ctx, userID, completion)
	})
}

// PostsHandler serves GET /posts.
func PostsHandler(feed FeedProvider, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := feed.Feed(r.Context())
		if err != nil {
			writeLoadError(w, r, logger, "Failed to load feed", err)
			return
		}
		if posts == nil {
			posts = []domain.Post{}
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

// UserHandler serves GET /users/{id}.
func UserHandler(users domain.UserLoader, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ctx, ok := userIDFromPath(w, r, logger)
		if !ok {
			return
		}
		r = r.WithContext(ctx)

		user, err := loadUser(ctx, users, userID)
		if err != nil {
			writeLoadError(w, r, logger, "Failed to load user", err)
			return
		}
		if user == nil {
			domain.NewErrorResponse(domain.ErrCodeNotFound, "User not found", "").WriteJSON(w, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// AvatarHandler serves GET /users/{id}/avatar as raw image bytes.
func AvatarHandler(users domain.UserLoader, images domain.ImageDataLoader, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ctx, ok := userIDFromPath(w, r, logger)
		if !ok {
			return
		}
		r = r.WithContext(ctx)

		user, err := loadUser(ctx, users, userID)
		if err != nil {
			writeLoadError(w, r, logger, "Failed to load avatar owner", err)
			return
		}
		if user == nil || user.AvatarURL == "" {
			domain.NewErrorResponse(domain.ErrCodeNotFound, "Avatar not found", "").WriteJSON(w, http.StatusNotFound)
			return
		}

		data, err := application.Await(ctx, func(ctx context.Context, completion func(domain.Result[[]byte])) domain.Task {
			return images.LoadImageData(ctx, user.AvatarURL, userID, completion)
		})
		if err != nil {
			writeLoadError(w, r, logger, "Failed to load avatar", err)
			return
		}
		if len(data) == 0 {
			domain.NewErrorResponse(domain.ErrCodeNotFound, "Avatar not found", "").WriteJSON(w, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// ValidateCacheHandler serves POST /admin/cache/validate.
func ValidateCacheHandler(maintenance CacheValidationTrigger, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := maintenance.Validate(r.Context(), application.TriggerAdmin); err != nil {
			logger.Error(r.Context(), "Admin cache validation failed", "error", err.Error())
			domain.NewErrorResponse(domain.ErrCodeInternal, "Cache validation failed", err.Error()).WriteJSON(w, http.StatusInternalServerError)
			return
		}
		logger.Info(r.Context(), "Admin cache validation completed")
		writeJSON(w, http.StatusOK, validateResponse{Status: "ok", Trigger: application.TriggerAdmin})
	}
}

// Routes holds the handlers mounted by RegisterRoutes.
type Routes struct {
	Feed        FeedProvider
	Users       domain.UserLoader
	Images      domain.ImageDataLoader
	Maintenance CacheValidationTrigger
	// AdminAuth wraps the admin routes; nil leaves them open.
	AdminAuth func(http.Handler) http.Handler
}

// RegisterRoutes mounts the public and admin routes on mux.
func RegisterRoutes(mux *http.ServeMux, routes Routes, logger domain.Logger) {
	mux.Handle("GET /posts", PostsHandler(routes.Feed, logger))
	mux.Handle("GET /users/{id}", UserHandler(routes.Users, logger))
	mux.Handle("GET /users/{id}/avatar", AvatarHandler(routes.Users, routes.Images, logger))

	var validate http.Handler = ValidateCacheHandler(routes.Maintenance, logger)
	if routes.AdminAuth != nil {
		validate = routes.AdminAuth(validate)
	}
	mux.Handle("POST /admin/cache/validate", validate)
}
