// Package api serves a read-only json view of the consensus state for the
// block production scheduler and for operators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
)

// Engine is the part of *dpos.Engine the api reads
type Engine interface {
	CurrentRound(ctx context.Context) (*dpos.Round, error)
	CurrentTerm(ctx context.Context) (*dpos.Term, error)
	RoundByNumber(ctx context.Context, term, round uint64) (*dpos.Round, error)
	GetConsensusCommand(ctx context.Context, pub []byte, now uint64) (dpos.ConsensusCommand, bool, error)
}

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener
	Engine   Engine

	// Now defaults to the wall clock. It is the time used for command
	// queries that do not supply one.
	Now func() uint64
}

// NewHTTPServer serves on cfg.Listener until ctx is cancelled
func NewHTTPServer(ctx context.Context, log dpos.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: NewHandler(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log dpos.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("DPoS api shutting down")
		} else {
			log.Info("DPoS api shutting down due to error", "err", err)
		}
	}
}

// NewHandler returns the api routes
func NewHandler(log dpos.Logger, cfg HTTPServerConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = func() uint64 { return dpos.UnixMilli(time.Now()) }
	}
	r := mux.NewRouter()

	r.HandleFunc("/v1/round", handleRound(log, cfg)).Methods("GET")
	r.HandleFunc("/v1/term", handleTerm(log, cfg)).Methods("GET")
	r.HandleFunc("/v1/rounds/{term:[0-9]+}/{round:[0-9]+}", handleRoundByNumber(log, cfg)).Methods("GET")
	r.HandleFunc("/v1/command/{pub}", handleCommand(log, cfg)).Methods("GET")
	r.HandleFunc("/v1/hint/decode", handleDecodeHint(log, cfg)).Methods("POST")

	return r
}

func handleRound(log dpos.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		r, err := cfg.Engine.CurrentRound(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, newRoundView(r))
	}
}

func handleTerm(log dpos.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		t, err := cfg.Engine.CurrentTerm(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, newTermView(t))
	}
}

func handleRoundByNumber(log dpos.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		term, err := strconv.ParseUint(vars["term"], 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad term: %v", err), http.StatusBadRequest)
			return
		}
		round, err := strconv.ParseUint(vars["round"], 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("bad round: %v", err), http.StatusBadRequest)
			return
		}
		r, err := cfg.Engine.RoundByNumber(req.Context(), term, round)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, newRoundView(r))
	}
}

func handleCommand(log dpos.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		pub, err := hexutil.Decode(mux.Vars(req)["pub"])
		if err == nil && len(pub) != dpos.PubLen {
			err = fmt.Errorf("want %d bytes, got %d", dpos.PubLen, len(pub))
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("bad public key: %v", err), http.StatusBadRequest)
			return
		}
		now := cfg.Now()
		if at := req.URL.Query().Get("at"); at != "" {
			if now, err = strconv.ParseUint(at, 10, 64); err != nil {
				http.Error(w, fmt.Sprintf("bad time: %v", err), http.StatusBadRequest)
				return
			}
		}
		cmd, ok, err := cfg.Engine.GetConsensusCommand(req.Context(), pub, now)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(log, w, newCommandView(cmd, ok))
	}
}

func handleDecodeHint(log dpos.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		var body hintRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
			return
		}
		hint, err := dpos.DecodeHint(body.Hint)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		r, err := cfg.Engine.CurrentRound(req.Context())
		if errors.Is(err, dpos.ErrRoundNotFound) {
			r, err = nil, nil
		}
		if err != nil {
			writeError(w, err)
			return
		}

		resp := &hintResponse{hintView: newHintView(hint), Current: true}
		if err := hint.Check(r); err != nil {
			resp.Current, resp.Reason = false, err.Error()
		}
		writeJSON(log, w, resp)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dpos.ErrRoundNotFound), errors.Is(err, dpos.ErrTermNotFound):
		status = http.StatusNotFound
	case dpos.KindOf(err) != dpos.KindUnknown:
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(log dpos.Logger, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("DPoS api failed to marshal response", "err", err)
	}
}
