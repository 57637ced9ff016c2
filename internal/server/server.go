// Package server exposes the commit pipeline over HTTP.
//
// Routes:
//
//	POST /v1/tanks/{address}/notes         run a note through the pipeline
//	GET  /v1/tanks/{address}               public tank state (no decryption)
//	GET  /v1/tanks/{address}/submissions   recent submissions from the blackboard
//	POST /v1/transactions/verify           re-check a signed transaction
//	GET  /healthz                          Redis connectivity
//	GET  /metrics                          Prometheus metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/pipeline"
	"github.com/dyluth/thinktank/internal/txbuilder"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

const (
	maxBodyBytes        = 1 << 20
	defaultListLimit    = 20
	maxListLimit        = 200
	requestIDHeader     = "X-Request-Id"
	shutdownGracePeriod = 10 * time.Second
)

// Runner runs one submission. *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, sub pipeline.Submission) (*pipeline.Outcome, error)
}

// TankReader reads raw tank state. *chain.Reader implements it.
type TankReader interface {
	Read(ctx context.Context, tank common.Address) (*chain.TankState, error)
}

// History lists recorded submissions. *blackboard.Client implements it.
type History interface {
	ListTankSubmissions(ctx context.Context, tank string, limit int) ([]*blackboard.Submission, error)
	Ping(ctx context.Context) error
}

// Config configures a Server.
type Config struct {
	Addr    string
	ChainID *big.Int
}

// Server is the thinktank HTTP API.
type Server struct {
	runner  Runner
	reader  TankReader
	history History // nil when no blackboard is configured
	cfg     Config
	logger  *zap.Logger
	server  *http.Server
}

// New creates a server. history may be nil.
func New(runner Runner, reader TankReader, history History, cfg Config, logger *zap.Logger) (*Server, error) {
	if runner == nil || reader == nil {
		return nil, fmt.Errorf("runner and reader are required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain ID must be positive")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{runner: runner, reader: reader, history: history, cfg: cfg, logger: logger.Named("server")}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Route("/tanks/{address}", func(tank chi.Router) {
			tank.Get("/", s.handleGetTank)
			tank.Post("/notes", s.handleSubmitNote)
			tank.Get("/submissions", s.handleListSubmissions)
		})
		api.Post("/transactions/verify", s.handleVerify)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.cfg.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

type noteRequest struct {
	Contributor string `json:"contributor"`
	Note        string `json:"note"`
}

type noteResponse struct {
	RequestID string            `json:"request_id"`
	Outcome   *pipeline.Outcome `json:"outcome"`
}

func (s *Server) handleSubmitNote(w http.ResponseWriter, r *http.Request) {
	tank, ok := s.tankParam(w, r)
	if !ok {
		return
	}

	var req noteRequest
	if err := readJSON(w, r, &req); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", err.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	if !common.IsHexAddress(req.Contributor) {
		writeError(w, r, http.StatusBadRequest, "BAD_ADDRESS", "contributor must be a hex address")
		return
	}

	out, err := s.runner.Run(r.Context(), pipeline.Submission{
		Tank:        tank,
		Contributor: common.HexToAddress(req.Contributor),
		Note:        req.Note,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, noteResponse{RequestID: requestID(r), Outcome: out})
}

// TankView is the public part of a tank's state.
type TankView struct {
	Address    string   `json:"address"`
	Idea       string   `json:"idea"`
	IdeaHash   string   `json:"ideaHash"`
	LLMURL     string   `json:"llmUrl"`
	HasDigest  bool     `json:"hasDigest"`
	DigestHash string   `json:"digestHash,omitempty"`
	HasConfig  bool     `json:"hasConfig"`
	PolicyIDs  []string `json:"policyIds"`
}

func (s *Server) handleGetTank(w http.ResponseWriter, r *http.Request) {
	tank, ok := s.tankParam(w, r)
	if !ok {
		return
	}

	state, err := s.reader.Read(r.Context(), tank)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"request_id": requestID(r),
		"tank": TankView{
			Address:    state.Address.Hex(),
			Idea:       state.Idea,
			IdeaHash:   state.IdeaHash().Hex(),
			LLMURL:     state.LLMURL,
			HasDigest:  !state.Digest.IsEmpty(),
			DigestHash: state.Digest.Hash,
			HasConfig:  !state.Config.IsEmpty(),
			PolicyIDs:  state.PolicyIDs,
		},
	})
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	tank, ok := s.tankParam(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, r, http.StatusNotImplemented, "NO_BLACKBOARD", "submission history requires a blackboard")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "BAD_LIMIT", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	subs, err := s.history.ListTankSubmissions(r.Context(), tank.Hex(), limit)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "BLACKBOARD", err.Error())
		return
	}
	if subs == nil {
		subs = []*blackboard.Submission{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"request_id": requestID(r), "submissions": subs})
}

type verifyRequest struct {
	SignedTx string `json:"signedTx"`
}

// VerifyResponse reports a verified transaction.
type VerifyResponse struct {
	RequestID   string `json:"request_id"`
	TxHash      string `json:"txHash"`
	Signer      string `json:"signer"`
	To          string `json:"to"`
	ChainID     string `json:"chainId"`
	Nonce       uint64 `json:"nonce"`
	Contributor string `json:"contributor,omitempty"`
	NoteHash    string `json:"noteHash,omitempty"`
	Score       string `json:"score,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}

	raw, err := hexutil.Decode(strings.TrimSpace(req.SignedTx))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_HEX", "signedTx must be 0x-prefixed hex")
		return
	}

	verified, err := txbuilder.Verify(raw, s.cfg.ChainID)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VERIFICATION_FAILED", err.Error())
		return
	}

	resp := VerifyResponse{
		RequestID: requestID(r),
		TxHash:    verified.Hash.Hex(),
		Signer:    verified.Signer.Hex(),
		ChainID:   verified.Tx.ChainId().String(),
		Nonce:     verified.Tx.Nonce(),
	}
	if to := verified.Tx.To(); to != nil {
		resp.To = to.Hex()
	}
	if args, err := chain.UnpackAddNote(verified.Tx.Data()); err == nil {
		resp.Contributor = args.Contributor.Hex()
		resp.NoteHash = args.NoteHash
		resp.Score = args.Score.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "healthy", Redis: "disabled"}
	if s.history == nil {
		writeJSON(w, http.StatusOK, response)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.history.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Redis = "connected"
	writeJSON(w, http.StatusOK, response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) tankParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, r, http.StatusBadRequest, "BAD_ADDRESS", fmt.Sprintf("invalid tank address %q", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
