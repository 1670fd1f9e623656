// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/jeranaias/obsidian-assistant/internal/failure"
)

// =============================================================================
// UPSTREAM ERROR MAPPING
// =============================================================================

var (
	authWords  = []string{"authentication", "api key", "api_key", "unauthorized", "invalid token", "invalid_api_key", "credentials", "authorization header"}
	quotaWords = []string{"quota", "billing", "rate limit", "rate_limit", "too many requests", "insufficient"}
)

func mentionsAny(s string, words []string) bool {
	lower := strings.ToLower(s)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// classifyStatus maps a non-200 upstream answer to a failure kind. Explicit
// status codes win; other 4xx answers are classified by their wording and
// otherwise treated as a rejected request.
func classifyStatus(op string, status int, detail string) error {
	detail = strings.TrimSpace(detail)
	msg := fmt.Sprintf("HTTP %d", status)
	if detail != "" {
		msg += ": " + detail
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return failure.New(failure.KindAuthFailure, op, msg)
	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests:
		return failure.New(failure.KindQuotaExceeded, op, msg)
	case status >= 500:
		return failure.New(failure.KindNetworkFailure, op, "upstream unavailable ("+msg+")")
	case mentionsAny(detail, authWords):
		return failure.New(failure.KindAuthFailure, op, msg)
	case mentionsAny(detail, quotaWords):
		return failure.New(failure.KindQuotaExceeded, op, msg)
	default:
		return failure.New(failure.KindConfigError, op, "request rejected ("+msg+")")
	}
}

// classifyTransport maps an http.Client error to NetworkFailure, naming
// timeouts and abandonment explicitly.
func classifyTransport(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return failure.Wrap(failure.KindNetworkFailure, op, "request abandoned", err)
	case errors.Is(err, context.DeadlineExceeded):
		return failure.Wrap(failure.KindNetworkFailure, op, "request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return failure.Wrap(failure.KindNetworkFailure, op, "request timed out", err)
	default:
		return failure.Wrap(failure.KindNetworkFailure, op, "request failed", err)
	}
}

// readResponse reads the response body with a size limit.
func readResponse(op string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, failure.Newf(failure.KindUpstreamMalformed, op,
			"response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// snippet shortens an upstream body for inclusion in an error message.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
