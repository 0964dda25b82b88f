// Package generation holds what every Generator adapter shares: HTTP status
// classification and client-side rate limiting.
package generation

import (
	"context"
	"errors"
	"fmt"

	"groundrag/internal/domain"
)

// StatusError builds the error for a non-2xx provider response. The response
// body is not included because providers may echo request content.
func StatusError(provider string, status int) *domain.Error {
	return domain.GenerationError(domain.SubKindForStatus(status),
		fmt.Sprintf("%s returned status %d", provider, status), nil)
}

// TransportError classifies a failure that happened before any response arrived.
func TransportError(provider string, err error) *domain.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.GenerationError(domain.SubKindTimeout, provider+" request timed out", err)
	case errors.Is(err, context.Canceled):
		return domain.GenerationError(domain.SubKindCanceled, provider+" request canceled", err)
	default:
		return domain.GenerationError(domain.SubKindUnavailable, provider+" is unreachable", err)
	}
}

// Malformed reports a response that could not be turned into an answer.
func Malformed(provider, message string, err error) *domain.Error {
	return domain.GenerationError(domain.SubKindMalformedResponse, provider+": "+message, err)
}
