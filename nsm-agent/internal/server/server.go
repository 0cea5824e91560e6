// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

// Package server implements the HTTP API through which the parent instance uses the enclave's NSM.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/edgelesssys/nitro-nsm/internal/constants"
	"github.com/edgelesssys/nitro-nsm/internal/logging"
	"github.com/edgelesssys/nitro-nsm/internal/process"
	"github.com/edgelesssys/nitro-nsm/nsm"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodySize limits request bodies. The NSM itself rejects requests above a few KiB.
const maxBodySize = 64 << 10

// Server serves the NSM operations over HTTP.
// Every request opens its own NSM session and closes it before the response is complete.
type Server struct {
	client   *nsm.Client
	gatherer prometheus.Gatherer
	metrics  *metrics
	validate *validator.Validate
	log      *slog.Logger
}

// New sets up a new Server. Metrics are registered with reg.
func New(client *nsm.Client, reg *prometheus.Registry, log *slog.Logger) *Server {
	return &Server{
		client:   client,
		gatherer: reg,
		metrics:  newMetrics(reg),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// Serve serves the API on lis until ctx is canceled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	server := &http.Server{
		Handler:           s.GetHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logging.NewLogWrapper(s.log),
	}
	return process.HTTPServeContext(ctx, server, lis, s.log)
}

// GetHandler returns an HTTP handler routing requests to the NSM operations.
func (s *Server) GetHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/description", s.instrument("describe_nsm", s.describeHandler))
	mux.Handle("GET /v1/pcrs/{index}", s.instrument("describe_pcr", s.describePCRHandler))
	mux.Handle("POST /v1/pcrs/{index}/extend", s.instrument("extend_pcr", s.extendPCRHandler))
	mux.Handle("POST /v1/pcrs/{index}/lock", s.instrument("lock_pcr", s.lockPCRHandler))
	mux.Handle("POST /v1/pcrs/lock", s.instrument("lock_pcrs", s.lockPCRsHandler))
	mux.Handle("POST /v1/attestation", s.instrument("attestation", s.attestationHandler))
	mux.Handle("GET /v1/random", s.instrument("get_random", s.randomHandler))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return withRequestID(mux, s.log)
}

type pcrResponse struct {
	Index uint16 `json:"index"`
	Lock  *bool  `json:"lock,omitempty"`
	Data  []byte `json:"data"`
}

type lockResponse struct {
	Index *uint16 `json:"index,omitempty"`
	Range *uint16 `json:"range,omitempty"`
	Lock  bool    `json:"lock"`
}

// extendRequest is the body of an extend request.
// A nil Data means the field was missing or null; an empty string decodes to an empty, non-nil slice.
type extendRequest struct {
	Data []byte `json:"data" validate:"required"`
}

type lockRangeRequest struct {
	Range *uint16 `json:"range" validate:"required"`
}

// attestationRequest is the body of an attestation request.
// Missing and null fields are left out of the document, empty strings are included as empty values.
type attestationRequest struct {
	UserData  []byte `json:"user_data"`
	Nonce     []byte `json:"nonce"`
	PublicKey []byte `json:"public_key"`
}

type attestationResponse struct {
	Document []byte `json:"document"`
}

type randomResponse struct {
	Random []byte `json:"random"`
}

func (s *Server) describeHandler(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *nsm.Session) (any, error) {
		desc, err := sess.GetDescription()
		if err != nil {
			return nil, err
		}
		if desc.LockedPCRs == nil {
			desc.LockedPCRs = []uint16{}
		}
		return desc, nil
	})
}

func (s *Server) describePCRHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	s.withSession(w, r, func(sess *nsm.Session) (any, error) {
		desc, err := sess.GetPCRDescription(index)
		if err != nil {
			return nil, err
		}
		return pcrResponse{Index: index, Lock: &desc.Lock, Data: desc.Data}, nil
	})
}

func (s *Server) extendPCRHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	var req extendRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *nsm.Session) (any, error) {
		value, err := sess.ExtendPCR(index, req.Data)
		if err != nil {
			return nil, err
		}
		return pcrResponse{Index: index, Data: value}, nil
	})
}

func (s *Server) lockPCRHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := s.pathIndex(w, r)
	if !ok {
		return
	}
	s.withSession(w, r, func(sess *nsm.Session) (any, error) {
		if err := sess.LockPCR(index); err != nil {
			return nil, err
		}
		s.log.Info("Locked PCR", "index", index, "request_id", requestID(r))
		return lockResponse{Index: &index, Lock: true}, nil
	})
}

func (s *Server) lockPCRsHandler(w http.ResponseWriter, r *http.Request) {
	var req lockRangeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	rng := *req.Range
	s.withSession(w, r, func(sess *nsm.Session) (any, error) {
		if err := sess.LockPCRs(rng); err != nil {
			return nil, err
		}
		s.log.Info("Locked PCRs", "range", rng, "request_id", requestID(r))
		return lockResponse{Range: &rng, Lock: true}, nil
	})
}

func (s *Server) attestationHandler(w http.ResponseWriter, r *http.Request) {
	var req attestationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.withSession(w, r, func(sess *nsm.Session) (any, error) {
		doc, err := sess.GetAttestationDoc(
			nsm.FromNillable(req.UserData),
			nsm.FromNillable(req.Nonce),
			nsm.FromNillable(req.PublicKey),
		)
		if err != nil {
			return nil, err
		}
		return attestationResponse{Document: doc}, nil
	})
}

// randomHandler returns a single GetRandom result, or exactly ?bytes=N bytes if requested.
func (s *Server) randomHandler(w http.ResponseWriter, r *http.Request) {
	size := -1
	if query := r.URL.Query().Get("bytes"); query != "" {
		n, err := strconv.Atoi(query)
		if err != nil || n < 0 || n > constants.MaxRandomBytes {
			s.writeError(w, r, http.StatusBadRequest, "InvalidArgument",
				fmt.Errorf("bytes must be a number between 0 and %d", constants.MaxRandomBytes))
			return
		}
		size = n
	}
	s.withSession(w, r, func(sess *nsm.Session) (any, error) {
		if size < 0 {
			random, err := sess.GetRandom()
			if err != nil {
				return nil, err
			}
			return randomResponse{Random: random}, nil
		}
		random := make([]byte, size)
		if _, err := io.ReadFull(sess, random); err != nil {
			return nil, err
		}
		return randomResponse{Random: random}, nil
	})
}

// withSession runs op on a fresh NSM session and writes its result or error.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, op func(*nsm.Session) (any, error)) {
	sess, err := s.client.OpenSession()
	if err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "DeviceUnavailable", err)
		return
	}
	result, err := op(sess)
	if closeErr := sess.Close(); closeErr != nil {
		s.log.Warn("Closing NSM session", "error", closeErr, "request_id", requestID(r))
	}
	if err != nil {
		s.writeNSMError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) pathIndex(w http.ResponseWriter, r *http.Request) (uint16, bool) {
	raw := r.PathValue("index")
	index, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "InvalidArgument", fmt.Errorf("invalid PCR index %q", raw))
		return 0, false
	}
	return uint16(index), true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "InvalidArgument", fmt.Errorf("decoding request body: %w", err))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "InvalidArgument", fmt.Errorf("validating request body: %w", err))
		return false
	}
	return true
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeNSMError maps errors of the nsm package to HTTP status codes.
func (s *Server) writeNSMError(w http.ResponseWriter, r *http.Request, err error) {
	var driverErr *nsm.DriverError
	var marshalErr *nsm.MarshalError
	switch {
	case errors.As(err, &driverErr):
		s.metrics.driverErrors.WithLabelValues(driverErr.Code.String()).Inc()
		s.writeError(w, r, http.StatusUnprocessableEntity, driverErr.Code.String(), err)
	case errors.Is(err, nsm.ErrInvalidResponse):
		s.writeError(w, r, http.StatusBadGateway, nsm.InvalidResponse.String(), err)
	case errors.As(err, &marshalErr):
		s.writeError(w, r, http.StatusInternalServerError, "MarshalError", err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, nsm.InternalError.String(), err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	log := s.log.With("request_id", requestID(r), "status", status)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
	} else {
		log.Debug("Request rejected", "error", err)
	}
	s.writeJSON(w, r, status, errorResponse{Error: code, Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Writing response", "error", err, "request_id", requestID(r))
	}
}
