package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"
	"go.uber.org/zap"
)

const (
	statusAPI  = "/status"
	metricsAPI = "/metrics"
	statsAPI   = "/stats"

	shutdownTimeout = 3 * time.Second
)

// Server serves the status, the Prometheus metrics and the engine counters of one STM over HTTP.
type Server struct {
	addr    string
	handler http.Handler

	srv *http.Server
	ln  net.Listener
}

// NewServer creates a status server for s listening on addr once started.
func NewServer(addr string, s *stm.STM) *Server {
	return &Server{
		addr:    addr,
		handler: createHandler(s),
	}
}

func createHandler(s *stm.STM) http.Handler {
	rd := render.New(render.Options{
		IndentJSON: true,
	})

	router := mux.NewRouter()
	router.Handle(statusAPI, newStatusHandler(s, rd)).Methods("GET")
	router.Handle(statsAPI, newStatsHandler(s, rd)).Methods("GET")
	router.Handle(metricsAPI, promhttp.Handler()).Methods("GET")

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(router)
	return n
}

// Handler returns the handler serving every route of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Annotatef(err, "listen on %s", s.addr)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.handler}
	log.Info("status server started", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("status server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the address the server listens on, or the configured address before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Close shuts the server down, waiting a short while for in-flight requests.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	log.Info("status server closed", zap.String("addr", s.Addr()))
	return errors.Trace(err)
}
