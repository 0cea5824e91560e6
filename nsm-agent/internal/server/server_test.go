// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgelesssys/nitro-nsm/nsm"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/drivertest"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/request"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/response"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFD = 11

func TestDescribe(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	drv := drivertest.New(testFD, response.DescribeNSM{
		VersionMajor: 1,
		ModuleID:     "i-0abc-enc0def",
		MaxPCRs:      32,
		Digest:       response.SHA384,
	})

	rec := serve(t, drv, http.MethodGet, "/v1/description", "")
	require.Equal(http.StatusOK, rec.Code)
	assert.Equal("application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(`{
		"version_major": 1,
		"version_minor": 0,
		"version_patch": 0,
		"module_id": "i-0abc-enc0def",
		"max_pcrs": 32,
		"locked_pcrs": [],
		"digest": "sha384"
	}`, rec.Body.String())

	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(err)
	assert.Equal(1, drv.Inits())
	assert.Equal([]int32{testFD}, drv.Exited())
}

func TestDescribePCR(t *testing.T) {
	testCases := map[string]struct {
		path       string
		wantStatus int
		wantReq    request.Request
	}{
		"valid index": {
			path:       "/v1/pcrs/16",
			wantStatus: http.StatusOK,
			wantReq:    &request.DescribePCR{Index: 16},
		},
		"index not a number": {
			path:       "/v1/pcrs/sixteen",
			wantStatus: http.StatusBadRequest,
		},
		"index too large": {
			path:       "/v1/pcrs/65536",
			wantStatus: http.StatusBadRequest,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			drv := drivertest.New(testFD, response.DescribePCR{Lock: true, Data: []byte{0xab}})

			rec := serve(t, drv, http.MethodGet, tc.path, "")
			require.Equal(tc.wantStatus, rec.Code)
			if tc.wantReq == nil {
				assert.Empty(drv.Calls())
				assert.Zero(drv.Inits())
				return
			}
			call, ok := drv.LastCall()
			require.True(ok)
			assert.Equal(tc.wantReq, call.Request)
			assert.JSONEq(`{"index": 16, "lock": true, "data": "qw=="}`, rec.Body.String())
		})
	}
}

func TestExtendPCR(t *testing.T) {
	testCases := map[string]struct {
		body       string
		response   response.Response
		wantStatus int
		wantReq    request.Request
		wantCode   string
	}{
		"data": {
			body:       `{"data": "YWJj"}`,
			response:   response.ExtendPCR{Data: []byte{1, 2}},
			wantStatus: http.StatusOK,
			wantReq:    &request.ExtendPCR{Index: 16, Data: []byte("abc")},
		},
		"empty data": {
			body:       `{"data": ""}`,
			response:   response.ExtendPCR{Data: []byte{1, 2}},
			wantStatus: http.StatusOK,
			wantReq:    &request.ExtendPCR{Index: 16, Data: []byte{}},
		},
		"missing data": {
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		"null data": {
			body:       `{"data": null}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		"unknown field": {
			body:       `{"data": "YWJj", "index": 3}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		"invalid base64": {
			body:       `{"data": "not base64!"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		"empty body": {
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidArgument",
		},
		"locked pcr": {
			body:       `{"data": "YWJj"}`,
			response:   response.Error{Code: response.ReadOnlyIndex},
			wantStatus: http.StatusUnprocessableEntity,
			wantReq:    &request.ExtendPCR{Index: 16, Data: []byte("abc")},
			wantCode:   "ReadOnlyIndex",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			drv := drivertest.New(testFD, tc.response)

			rec := serve(t, drv, http.MethodPost, "/v1/pcrs/16/extend", tc.body)
			require.Equal(tc.wantStatus, rec.Code)

			if tc.wantReq == nil {
				assert.Empty(drv.Calls())
			} else {
				call, ok := drv.LastCall()
				require.True(ok)
				assert.Equal(tc.wantReq, call.Request)
			}
			if tc.wantCode != "" {
				assert.Equal(tc.wantCode, decodeError(t, rec).Error)
				return
			}
			assert.JSONEq(`{"index": 16, "data": "AQI="}`, rec.Body.String())
		})
	}
}

func TestLockPCR(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	drv := drivertest.New(testFD, response.LockPCR{})

	rec := serve(t, drv, http.MethodPost, "/v1/pcrs/4/lock", "")
	require.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`{"index": 4, "lock": true}`, rec.Body.String())
	call, ok := drv.LastCall()
	require.True(ok)
	assert.Equal(&request.LockPCR{Index: 4}, call.Request)
}

func TestLockPCRs(t *testing.T) {
	testCases := map[string]struct {
		body       string
		wantStatus int
		wantReq    request.Request
	}{
		"range": {
			body:       `{"range": 16}`,
			wantStatus: http.StatusOK,
			wantReq:    &request.LockPCRs{Range: 16},
		},
		"zero range": {
			body:       `{"range": 0}`,
			wantStatus: http.StatusOK,
			wantReq:    &request.LockPCRs{Range: 0},
		},
		"missing range": {
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		"negative range": {
			body:       `{"range": -1}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			drv := drivertest.New(testFD, response.LockPCRs{})

			rec := serve(t, drv, http.MethodPost, "/v1/pcrs/lock", tc.body)
			require.Equal(tc.wantStatus, rec.Code)
			if tc.wantReq == nil {
				assert.Empty(drv.Calls())
				return
			}
			call, ok := drv.LastCall()
			require.True(ok)
			assert.Equal(tc.wantReq, call.Request)
		})
	}
}

func TestAttestation(t *testing.T) {
	testCases := map[string]struct {
		body    string
		wantReq *request.Attestation
	}{
		"no values": {
			body:    `{}`,
			wantReq: &request.Attestation{},
		},
		"null values": {
			body:    `{"user_data": null, "nonce": null, "public_key": null}`,
			wantReq: &request.Attestation{},
		},
		"empty nonce": {
			body:    `{"nonce": ""}`,
			wantReq: &request.Attestation{Nonce: request.Some(nil)},
		},
		"all values": {
			body: `{"user_data": "dQ==", "nonce": "bg==", "public_key": "aw=="}`,
			wantReq: &request.Attestation{
				UserData:  request.Some([]byte("u")),
				Nonce:     request.Some([]byte("n")),
				PublicKey: request.Some([]byte("k")),
			},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			drv := drivertest.New(testFD, response.Attestation{Document: []byte("doc")})

			rec := serve(t, drv, http.MethodPost, "/v1/attestation", tc.body)
			require.Equal(http.StatusOK, rec.Code)
			assert.JSONEq(`{"document": "ZG9j"}`, rec.Body.String())

			call, ok := drv.LastCall()
			require.True(ok)
			assert.Equal(tc.wantReq, call.Request)
		})
	}
}

func TestRandom(t *testing.T) {
	testCases := map[string]struct {
		query      string
		wantStatus int
		wantRandom []byte
	}{
		"single request": {
			wantStatus: http.StatusOK,
			wantRandom: []byte{1, 2, 3},
		},
		"fixed size": {
			query:      "?bytes=4",
			wantStatus: http.StatusOK,
			wantRandom: []byte{1, 2, 3, 1},
		},
		"negative size": {
			query:      "?bytes=-1",
			wantStatus: http.StatusBadRequest,
		},
		"size not a number": {
			query:      "?bytes=many",
			wantStatus: http.StatusBadRequest,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			drv := drivertest.New(testFD, response.GetRandom{Random: []byte{1, 2, 3}})

			rec := serve(t, drv, http.MethodGet, "/v1/random"+tc.query, "")
			require.Equal(tc.wantStatus, rec.Code)
			if tc.wantRandom == nil {
				assert.Empty(drv.Calls())
				return
			}
			var res randomResponse
			require.NoError(json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(tc.wantRandom, res.Random)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	testCases := map[string]struct {
		drv        *drivertest.Driver
		wantStatus int
		wantCode   string
	}{
		"driver error": {
			drv:        drivertest.New(testFD, response.Error{Code: response.InvalidIndex}),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "InvalidIndex",
		},
		"driver reports invalid response": {
			drv:        drivertest.New(testFD, response.Error{Code: response.InvalidResponse}),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "InvalidResponse",
		},
		"mismatched response": {
			drv:        drivertest.New(testFD, response.GetRandom{}),
			wantStatus: http.StatusBadGateway,
			wantCode:   "InvalidResponse",
		},
		"marshal error": {
			drv:        &drivertest.Driver{InitFD: testFD, Err: errors.New("broken pipe")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "MarshalError",
		},
		"device unavailable": {
			drv:        drivertest.New(-1, nil),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "DeviceUnavailable",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			rec := serve(t, tc.drv, http.MethodGet, "/v1/pcrs/0", "")
			require.Equal(tc.wantStatus, rec.Code)
			res := decodeError(t, rec)
			assert.Equal(tc.wantCode, res.Error)
			assert.NotEmpty(res.Message)
		})
	}
}

func TestRequestID(t *testing.T) {
	assert := assert.New(t)

	srv := newTestServer(drivertest.New(testFD, response.LockPCR{}), prometheus.NewRegistry())
	id := uuid.New().String()

	req := httptest.NewRequest(http.MethodPost, "/v1/pcrs/1/lock", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rec, req)
	assert.Equal(id, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodPost, "/v1/pcrs/1/lock", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(rec, req)
	assert.NotEqual("not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestUnknownRoute(t *testing.T) {
	drv := drivertest.New(testFD, nil)

	assert.Equal(t, http.StatusNotFound, serve(t, drv, http.MethodGet, "/v1/unknown", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, drv, http.MethodDelete, "/v1/description", "").Code)
	assert.Zero(t, drv.Inits())
}

func TestMetrics(t *testing.T) {
	testCases := map[string]struct {
		code     response.ErrorCode
		wantCode string
	}{
		"read only index": {
			code:     response.ReadOnlyIndex,
			wantCode: "ReadOnlyIndex",
		},
		"invalid response reported by device": {
			code:     response.InvalidResponse,
			wantCode: "InvalidResponse",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			srv := newTestServer(drivertest.New(testFD, response.Error{Code: tc.code}), prometheus.NewRegistry())
			handler := srv.GetHandler()

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pcrs/0/lock", nil))
			require.Equal(http.StatusUnprocessableEntity, rec.Code)

			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			require.Equal(http.StatusOK, rec.Code)
			body := rec.Body.String()
			assert.Contains(body, `nsm_agent_requests_total{code="422",operation="lock_pcr"} 1`)
			assert.Contains(body, `nsm_agent_driver_errors_total{code="`+tc.wantCode+`"} 1`)
			assert.Contains(body, `nsm_agent_request_duration_seconds_count{operation="lock_pcr"} 1`)
		})
	}
}

func serve(t *testing.T, drv *drivertest.Driver, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	newTestServer(drv, prometheus.NewRegistry()).GetHandler().ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func newTestServer(drv *drivertest.Driver, reg *prometheus.Registry) *Server {
	return New(nsm.New(drv), reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var res errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}
