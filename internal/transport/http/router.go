package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/roomchat/internal/presence"
	httpmw "github.com/cwrk-planet/roomchat/internal/transport/http/middleware"
	"github.com/cwrk-planet/roomchat/internal/transport/http/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Deps struct {
	Handler *Handler
	Auth    httpmw.Authenticator
	// WS serves GET /ws; nil disables the endpoint
	WS http.HandlerFunc
	// Presence adds live connection counts to /healthz
	Presence func() presence.Stats
}

func NewRouter(d Deps, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if d.Presence != nil {
			st := d.Presence()
			resp["connections"] = st.Connections
			resp["users"] = st.Users
		}
		httputil.OK(w, resp)
	})

	// WS authenticates before the upgrade
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(d.Auth))
		pr.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", d.Handler.CreateRoom)
			rm.Get("/", d.Handler.ListRooms)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", d.Handler.GetRoom)
				rr.Patch("/status", d.Handler.SetRoomStatus)
				rr.Get("/messages", d.Handler.GetMessages)
			})
		})
	})

	return r
}
