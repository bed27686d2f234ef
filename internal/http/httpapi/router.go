package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gengateway/internal/http/handlers"
	"gengateway/internal/infra"
	"gengateway/internal/middleware"
)

// Options configures the router beyond the handler set.
type Options struct {
	Auth          *middleware.Authenticator
	Logger        infra.Logger
	CountryLookup middleware.CountryLookup
	CORSOrigins   []string
	// RateLimitPerMin applies per token on authenticated routes. Zero disables it.
	RateLimitPerMin int
	DefaultLocale   string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	// Public
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if app.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	}

	auth := opts.Auth
	if auth.OnError == nil {
		auth.OnError = app.AuthError
	}
	limiter := middleware.NewRateLimiter(opts.RateLimitPerMin, time.Minute)

	r.Group(func(r chi.Router) {
		r.Use(auth.Require, limiter.Middleware)

		r.Post("/v1/videos", app.CreateVideo)
		r.Get("/v1/videos/{job_id}", app.JobStatus)
		r.Post("/v1/images/generations", app.CreateImage)
		r.Post("/v1/characters", app.CreateCharacter)
		r.Patch("/v1/characters/{username}", app.RenameCharacter)
		r.Get("/v1/jobs/{job_id}", app.JobStatus)

		r.Get("/api/feed", app.GlobalFeed)
		r.Get("/api/user/{user_id}/feed", app.UserFeed)
		r.Get("/api/tokens/{token_id}/profile-feed", app.TokenFeed)
		r.Get("/api/profile/{username}", app.Profile)
		r.Get("/api/characters/search", app.SearchCharacters)
	})

	return otelhttp.NewHandler(r, "gengateway",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
