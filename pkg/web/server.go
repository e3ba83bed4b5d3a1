package web

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/model"
	"github.com/apexlog/trackmap-service-go/pkg/relay"
	"github.com/apexlog/trackmap-service-go/pkg/utils"
	"github.com/apexlog/trackmap-service-go/pkg/utils/cache"
	"github.com/apexlog/trackmap-service-go/pkg/utils/cache/loadercache"
)

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithProviderToken guards the mutating endpoints. Empty means no guard.
func WithProviderToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

func WithRelay(r relay.Relay) Option {
	return func(s *Server) {
		s.relay = r
	}
}

// WithSessionTTL configures the expiration of the session info cache.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.sessionTTL = ttl
	}
}

// WithTLSConfig enables HTTPS. A nil config keeps plain HTTP.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = cfg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// Server is the HTTP surface of the service: the REST API, the frame
// ingest endpoint, the live websocket and a couple of debug pages.
type Server struct {
	addr          string
	token         string
	sessionTTL    time.Duration
	tlsConfig     *tls.Config
	lookup        *utils.SessionLookup
	relay         relay.Relay
	infoCache     cache.Cache[string, model.SessionInfo]
	upgrader      websocket.Upgrader
	ingestCounter metric.Int64Counter
	tracer        trace.Tracer
	l             *log.Logger
}

func NewServer(lookup *utils.SessionLookup, opts ...Option) *Server {
	ret := &Server{
		addr:       "localhost:8080",
		sessionTTL: 5 * time.Minute,
		lookup:     lookup,
		relay:      relay.NewNoopRelay(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		l: log.Default().Named("web"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.tracer == nil {
		ret.tracer = otel.Tracer("tms.web")
	}
	ret.infoCache = loadercache.New(
		loadercache.WithExpiration[string, model.SessionInfo](ret.sessionTTL),
		loadercache.WithLoader[string, model.SessionInfo](
			func(key string) (*model.SessionInfo, error) {
				spd, err := lookup.GetSession(key)
				if err != nil {
					return nil, err
				}
				info := spd.Info
				return &info, nil
			}),
		loadercache.WithLogger[string, model.SessionInfo](ret.l.Named("cache")),
	)
	ret.setupMetrics()
	return ret
}

func (s *Server) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("tms.web")
	counter, err := meter.Int64Counter(
		"tms.ingest.frames",
		metric.WithDescription("Number of ingested frames"),
		metric.WithUnit("{count}"))
	if err != nil {
		s.l.Error("failed to register metric",
			log.String("metric", "tms.ingest.frames"),
			log.ErrorField(err))
		return
	}
	s.ingestCounter = counter
}

// Handler returns the routed handler without the outer CORS/h2c wrapping.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.requireToken(s.handleCreateSession)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{key}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}", s.requireToken(s.handleDeleteSession)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{key}/trackmap", s.handleTrackMap).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}/bounds", s.handleBounds).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{key}/clear", s.requireToken(s.handleClearSession)).Methods(http.MethodPost)
	api.HandleFunc("/ingest/{key}", s.requireToken(s.handleIngest)).Methods(http.MethodPost)

	router.HandleFunc("/ws/live/{key}", s.handleLive)
	router.HandleFunc("/debug/chart/{key}", s.handleChart).Methods(http.MethodGet)
	router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	return router
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           h2c.NewHandler(newCORS().Handler(s.Handler()), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serve := server.ListenAndServe
	if s.tlsConfig != nil {
		// http2 negotiation happens via ALPN here, no h2c wrapper needed
		server.TLSConfig = s.tlsConfig
		server.Handler = newCORS().Handler(s.Handler())
		serve = func() error { return server.ListenAndServeTLS("", "") }
	}
	errCh := make(chan error, 1)
	go func() {
		s.l.Info("server started",
			log.String("addr", s.addr), log.Bool("tls", s.tlsConfig != nil))
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.l.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.l.Warn("graceful shutdown failed", log.ErrorField(err))
		return server.Close()
	}
	return nil
}

func newCORS() *cors.Cors {
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowOriginFunc: func(origin string) bool {
			// Allow all origins, which effectively disables CORS.
			return true
		},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{
			// Content-Type is in the default safelist.
			"Accept",
			"Accept-Encoding",
			"Content-Encoding",
		},
		// Let browsers cache CORS information for longer, which reduces the number
		// of preflight requests. Any changes to ExposedHeaders won't take effect
		// until the cached data expires. FF caps this value at 24h, and modern
		// Chrome caps it at 2h.
		MaxAge: int(2 * time.Hour / time.Second),
	})
}
