package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cutoutly/internal/http/handlers"
	"cutoutly/internal/middleware"
)

// Options carries what the router needs beyond the handlers.
type Options struct {
	// CountryLookup feeds the locale detection. Nil skips GeoIP.
	CountryLookup middleware.CountryLookup
	// StaticDir is served under /static when the filesystem store is used.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)
	if app.Config != nil {
		r.Use(middleware.CORS(app.Config.CORSOrigins))
	}
	r.Use(middleware.I18N("en", opts.CountryLookup))

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	secret := ""
	rateLimit := 0
	if app.Config != nil {
		secret = app.Config.JWTSecret
		rateLimit = app.Config.RateLimitPerMin
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(secret))
			r.Use(middleware.RateLimit(rateLimit, time.Minute))

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", app.SubmitJob)
				r.Get("/", app.ListJobs)
				r.Get("/{jobID}", app.JobStatus)
				r.Post("/{jobID}/advance", app.AdvanceJob)
				r.Get("/{jobID}/archive", app.JobArchive)
				r.Delete("/{jobID}", app.DeleteJob)
			})
			r.Route("/faces", func(r chi.Router) {
				r.Post("/", app.SaveFace)
				r.Get("/", app.ListFaces)
				r.Delete("/{faceID}", app.DeleteFace)
			})
		})
	})

	return r
}
