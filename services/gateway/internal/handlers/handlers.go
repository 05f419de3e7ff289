package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/autoescola/services/gateway/internal/proxy"
	"github.com/diagnosis/autoescola/services/gateway/internal/ratelimit"
)

// Handlers exposes the auth backend and the bookings service under one origin.
type Handlers struct {
	authProxy     *proxy.ServiceProxy
	bookingsProxy *proxy.ServiceProxy
	limiter       *ratelimit.Limiter
}

func New(authProxy, bookingsProxy *proxy.ServiceProxy, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		authProxy:     authProxy,
		bookingsProxy: bookingsProxy,
		limiter:       limiter,
	}
}

// Routes mounts /auth/api/* and /v1/*. Login and registration are rate limited.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/auth/api", func(r chi.Router) {
		r.With(h.limiter.Middleware("login")).Post("/login/", h.toAuth)
		r.With(h.limiter.Middleware("register")).Post("/register/{role}/", h.toAuth)
		r.Post("/logout/", h.toAuth)
		r.Get("/me/", h.toAuth)
	})

	r.Handle("/v1/*", http.HandlerFunc(h.toBookings))
	return r
}

func (h *Handlers) toAuth(w http.ResponseWriter, r *http.Request) {
	h.authProxy.Forward(w, r, r.URL.Path)
}

func (h *Handlers) toBookings(w http.ResponseWriter, r *http.Request) {
	h.bookingsProxy.Forward(w, r, r.URL.Path)
}
