package metrics

import (
	"strings"

	"github.com/cockroachdb/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Error type constants for metrics labels.
const (
	ErrorTypeAuth        = "auth"
	ErrorTypeConflict    = "conflict"
	ErrorTypeNotFound    = "not_found"
	ErrorTypeInvalid     = "invalid"
	ErrorTypeRateLimit   = "rate_limit"
	ErrorTypeServerError = "server_error"
	ErrorTypeClientError = "client_error"
	ErrorTypeTimeout     = "timeout"
	ErrorTypeNetwork     = "network"
	ErrorTypeUnknown     = "unknown"
)

// ClassifyAPIError classifies an error from the Kubernetes API for metrics labeling.
// Returns an empty string for nil errors.
func ClassifyAPIError(err error) string {
	if err == nil {
		return ""
	}

	var statusErr apierrors.APIStatus
	if errors.As(err, &statusErr) {
		return classifyStatus(err, int(statusErr.Status().Code))
	}

	// Fallback for non-API errors based on error message
	return classifyByErrorMessage(err.Error())
}

func classifyStatus(err error, code int) string {
	switch {
	case apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err):
		return ErrorTypeAuth
	case apierrors.IsConflict(err):
		return ErrorTypeConflict
	case apierrors.IsNotFound(err):
		return ErrorTypeNotFound
	case apierrors.IsInvalid(err) || apierrors.IsBadRequest(err):
		return ErrorTypeInvalid
	case apierrors.IsTooManyRequests(err):
		return ErrorTypeRateLimit
	case apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err):
		return ErrorTypeTimeout
	case apierrors.IsInternalError(err) || apierrors.IsServiceUnavailable(err):
		return ErrorTypeServerError
	}

	switch {
	case code >= 500 && code < 600:
		return ErrorTypeServerError
	case code >= 400 && code < 500:
		return ErrorTypeClientError
	default:
		return ErrorTypeUnknown
	}
}

func classifyByErrorMessage(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(errLower, "connection refused") || strings.Contains(errLower, "no such host"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}
