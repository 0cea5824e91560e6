// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package nsm

import (
	"errors"
	"fmt"

	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/request"
	"github.com/edgelesssys/nitro-nsm/nsm/driver/response"
)

// ErrorCode is a failure code reported by the NSM driver.
type ErrorCode = response.ErrorCode

// Error codes reported by the NSM driver.
const (
	InvalidArgument  = response.InvalidArgument
	InvalidIndex     = response.InvalidIndex
	InvalidResponse  = response.InvalidResponse
	ReadOnlyIndex    = response.ReadOnlyIndex
	InvalidOperation = response.InvalidOperation
	BufferTooSmall   = response.BufferTooSmall
	InputTooLarge    = response.InputTooLarge
	InternalError    = response.InternalError
)

var (
	// ErrInvalidResponse matches failures caused by a response that does not fit the request.
	ErrInvalidResponse = errors.New(string(response.InvalidResponse))
	// ErrInvalidRawData matches marshalling failures caused by malformed device output.
	ErrInvalidRawData = driver.ErrInvalidRawData
	// ErrSessionClosed is returned when a closed [Session] is used.
	ErrSessionClosed = errors.New("nsm: session closed")
)

// DriverError is a failure reported by the driver. Its message is the symbolic name of the code.
type DriverError struct {
	Code ErrorCode
}

func (e *DriverError) Error() string {
	return e.Code.String()
}

// Is lets errors.Is match a DriverError with the same code,
// and [ErrInvalidResponse] if the driver itself reported InvalidResponse.
func (e *DriverError) Is(target error) bool {
	if target == ErrInvalidResponse {
		return e.Code == response.InvalidResponse
	}
	t, ok := target.(*DriverError)
	return ok && t.Code == e.Code
}

// ResponseError is returned when the driver answered with a response that does not match the request,
// or with content outside the protocol.
type ResponseError struct {
	Request  request.Kind
	Response response.Kind
	Detail   string
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("%s: %s request answered with %q", response.InvalidResponse, e.Request, e.Response)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is lets errors.Is match [ErrInvalidResponse].
func (e *ResponseError) Is(target error) bool {
	return target == ErrInvalidResponse
}

// MarshalError is returned when values could not be converted between their Go form and the device form.
type MarshalError = driver.MarshalError

// OpenError is returned by [Client.OpenSession] when the driver could not open the device.
type OpenError struct {
	FD int32
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("nsm: opening device failed with descriptor %d", e.FD)
}

// Code returns the driver error code carried by err, if any.
func Code(err error) (ErrorCode, bool) {
	var driverErr *DriverError
	if errors.As(err, &driverErr) {
		return driverErr.Code, true
	}
	if errors.Is(err, ErrInvalidResponse) {
		return response.InvalidResponse, true
	}
	return "", false
}
