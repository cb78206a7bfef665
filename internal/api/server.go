// Package api serves the sampler over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/mcmc"
	"github.com/samcharles93/fixlen/internal/metrics"
	"github.com/samcharles93/fixlen/internal/vocab"
)

// Config wires a Server to loaded models.
type Config struct {
	Sampler    *mcmc.Sampler
	SrcVocab   *vocab.Vocabulary
	TrgVocab   *vocab.Vocabulary
	Models     []ModelInfo
	Metrics    *metrics.Metrics
	MaxSamples int
}

// Server handles sampling requests. Every request runs its own chain with
// its own encoded contexts, so handlers share nothing mutable.
type Server struct {
	cfg   Config
	clock func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Server{cfg: cfg, clock: time.Now}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/samples", s.handleCreateSample)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
	h := s.cfg.Metrics.Handler()
	e.GET("/metrics", func(c *echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   s.cfg.Models,
	})
}

func (s *Server) validate(req SampleRequest) ([]string, error) {
	words := strings.Fields(req.Source)
	switch {
	case len(words) == 0:
		return nil, newInvalidRequest("source", "source must contain at least one word")
	case req.TrgLen < 1:
		return nil, newInvalidRequest("trg_len", fmt.Sprintf("trg_len must be at least 1, got %d", req.TrgLen))
	case req.NumSamples < 0:
		return nil, newInvalidRequest("num_samples", fmt.Sprintf("num_samples must not be negative, got %d", req.NumSamples))
	case s.cfg.MaxSamples > 0 && req.NumSamples > s.cfg.MaxSamples:
		return nil, newInvalidRequest("num_samples", fmt.Sprintf("num_samples %d exceeds the limit of %d", req.NumSamples, s.cfg.MaxSamples))
	}
	return words, nil
}

func (s *Server) handleCreateSample(c *echo.Context) error {
	if s.cfg.Sampler == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "sampler not configured", "")
	}
	req, err := decodeJSON[SampleRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err)
	}
	words, err := s.validate(req)
	if err != nil {
		return writeBadRequest(c, err)
	}

	id := newSampleID()
	ctx := c.Request().Context()
	log := logger.FromContext(ctx).With("sample_id", id)
	ctx = logger.WithContext(ctx, log)

	src := s.cfg.SrcVocab.Sentence(words)
	var steps []Step
	obs := mcmc.Observers{s.cfg.Metrics}
	if req.Trace {
		obs = append(obs, mcmc.ObserverFunc(func(r mcmc.Record) error {
			st, err := s.step(r)
			if err != nil {
				return err
			}
			steps = append(steps, st)
			return nil
		}))
	}

	start := s.clock()
	res, err := s.cfg.Sampler.Sample(ctx, mcmc.Request{
		Src:        src,
		TrgLen:     req.TrgLen,
		NumSamples: req.NumSamples,
		Seed:       req.Seed,
	}, obs)
	s.cfg.Metrics.ChainDone(s.clock().Sub(start), err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return writeError(c, http.StatusServiceUnavailable, "cancelled", "request cancelled", "")
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}

	srcLine, err := s.cfg.SrcVocab.IDsToLine(src)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	target, err := s.cfg.TrgVocab.IDsToLine(res.Sequence.Interior())
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
	kernels := make(map[string]KernelCounts, len(res.Stats))
	for name, st := range res.Stats {
		kernels[name] = KernelCounts{Accepted: st.Accepted, Rejected: st.Rejected}
	}
	return c.JSON(http.StatusOK, SampleResponse{
		ID:         id,
		Object:     "sample",
		Created:    s.clock().Unix(),
		Source:     srcLine,
		Target:     target,
		Score:      res.Score,
		TrgLen:     req.TrgLen,
		NumSamples: req.NumSamples,
		Accepted:   res.Accepted,
		Rejected:   res.Rejected,
		Kernels:    kernels,
		Steps:      steps,
	})
}

func (s *Server) step(r mcmc.Record) (Step, error) {
	target, err := s.cfg.TrgVocab.IDsToLine(r.Sequence.Interior())
	if err != nil {
		return Step{}, err
	}
	return Step{
		Step:     r.Step,
		Kernel:   r.Kernel,
		LPX:      r.LPX,
		LPY:      r.LPY,
		LQX:      r.LQX,
		LQY:      r.LQY,
		Alpha:    r.Alpha,
		Accepted: r.Accepted,
		Target:   target,
		Score:    r.Score,
	}, nil
}
