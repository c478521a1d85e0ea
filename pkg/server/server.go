// Package server exposes Cedar's HTTP surface: the authentication-tree
// callback loop, the push answer endpoint, the IDP-proxy SAML endpoints,
// and health and metrics routes.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cedarauth/cedar/pkg/authtree"
	"github.com/cedarauth/cedar/pkg/config"
	"github.com/cedarauth/cedar/pkg/httputil"
	"github.com/cedarauth/cedar/pkg/observability"
	"github.com/cedarauth/cedar/pkg/push"
	"github.com/cedarauth/cedar/pkg/saml2/binding"
	"github.com/cedarauth/cedar/pkg/saml2/proxy"
)

const maxRequestBytes = 1 << 20

// defaultSessionCapacity bounds concurrent suspended authentications.
const defaultSessionCapacity = 4096

// authSession is one suspended tree evaluation awaiting callback answers.
type authSession struct {
	tree    string
	nodeID  string
	context *authtree.TreeContext
}

// Options configures a Server. Trees is required; the SAML proxy, push
// answerer, and metrics gatherer are each optional and their routes are
// only mounted when present.
type Options struct {
	Config   *config.Config
	Trees    *authtree.TreeSet
	Proxy    *proxy.Proxy
	KeyPair  *binding.KeyPair
	Answerer push.Answerer
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
}

// Server is Cedar's HTTP front end.
type Server struct {
	cfg      config.ServerConfig
	saml     config.SAMLConfig
	router   *mux.Router
	trees    *authtree.TreeSet
	proxy    *proxy.Proxy
	keyPair  *binding.KeyPair
	answerer push.Answerer
	sessions *lru.LRU[string, *authSession]
	logger   *observability.Logger
	gatherer prometheus.Gatherer
}

// New creates a Server with its routes mounted.
func New(opts Options) (*Server, error) {
	if opts.Trees == nil {
		return nil, fmt.Errorf("server: tree set is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}

	s := &Server{
		cfg:      opts.Config.Server,
		saml:     opts.Config.SAML,
		router:   mux.NewRouter(),
		trees:    opts.Trees,
		proxy:    opts.Proxy,
		keyPair:  opts.KeyPair,
		answerer: opts.Answerer,
		sessions: lru.NewLRU[string, *authSession](defaultSessionCapacity, nil, opts.Config.Server.SessionTTL),
		logger:   opts.Logger,
		gatherer: opts.Gatherer,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all the HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/json/authenticate", s.authenticate).Methods("POST")
	s.router.HandleFunc("/json/trees", s.listTrees).Methods("GET")

	if s.answerer != nil {
		s.router.HandleFunc("/json/push/answer", s.answerPush).Methods("POST")
	}

	if s.proxy != nil {
		s.router.HandleFunc("/saml2/proxy/sso", s.proxySSO).Methods("GET")
		s.router.HandleFunc("/saml2/proxy/acs", s.proxyACS).Methods("POST")
	}

	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	s.router.HandleFunc("/readyz", s.readyz).Methods("GET")

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the server's handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxRequestBytes),
	)(s.router)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Host + ":" + s.cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if len(s.trees.Names()) == 0 {
		httputil.WriteServiceUnavailable(w, "no authentication trees loaded")
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ready"})
}

func (s *Server) listTrees(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{"trees": s.trees.Names()})
}

func (s *Server) sessionCount() int { return s.sessions.Len() }
