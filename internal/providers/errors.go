package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/smithy-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a failure so callers can tell terminal errors from
// retryable ones.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUpstreamAuth      Kind = "upstream_auth"
	KindUpstreamRateLimit Kind = "upstream_rate_limit"
	KindUpstreamOther     Kind = "upstream_other"
	KindInternal          Kind = "internal"
)

// Retryable reports whether a request failing with this kind may succeed
// if repeated unchanged.
func (k Kind) Retryable() bool {
	return k == KindUpstreamRateLimit || k == KindUpstreamOther
}

// Error is returned by every provider client call.
type Error struct {
	Provider string
	Op       string // e.g. "retrieve AWS costs"
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return "failed to " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invalid returns a validation error for provider.
func Invalid(provider, msg string) error {
	return &Error{Provider: provider, Kind: KindValidation, Err: errors.New(msg)}
}

// Wrap classifies an SDK error and wraps it with the failed operation.
// A nil err yields nil; an err that is already an *Error is returned as is.
func Wrap(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: provider, Op: op, Kind: Classify(err), Err: err}
}

// KindOf returns the kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Classify inspects the error types of the AWS, Azure and Google SDKs.
func Classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUpstreamOther
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return classifyAWSCode(apiErr.ErrorCode())
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return KindUpstreamAuth
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return classifyStatus(respErr.StatusCode)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyStatus(gErr.Code)
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return KindUpstreamAuth
		case codes.ResourceExhausted:
			return KindUpstreamRateLimit
		case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
			return KindValidation
		case codes.OK, codes.Unknown:
		default:
			return KindUpstreamOther
		}
	}

	return KindUpstreamOther
}

func classifyAWSCode(code string) Kind {
	switch code {
	case "AccessDeniedException", "AccessDenied", "UnauthorizedOperation",
		"UnrecognizedClientException", "InvalidClientTokenId", "ExpiredToken",
		"ExpiredTokenException", "InvalidSignatureException", "SignatureDoesNotMatch":
		return KindUpstreamAuth
	case "ThrottlingException", "Throttling", "LimitExceededException",
		"RequestLimitExceeded", "TooManyRequestsException":
		return KindUpstreamRateLimit
	case "ValidationException", "DataUnavailableException", "InvalidNextTokenException",
		"BillExpirationException":
		return KindValidation
	}
	return KindUpstreamOther
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUpstreamAuth
	case code == http.StatusTooManyRequests:
		return KindUpstreamRateLimit
	case code == http.StatusBadRequest || code == http.StatusNotFound:
		return KindValidation
	}
	return KindUpstreamOther
}
