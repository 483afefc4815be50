package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorSignatureInvalid = "FULFILLMENT_SIGNATURE_INVALID"
	ErrorBadInput         = "FULFILLMENT_BAD_INPUT"
	ErrorMissingPrice     = "FULFILLMENT_MISSING_PRICE"
	ErrorMissingEmail     = "FULFILLMENT_MISSING_EMAIL"
	ErrorUnmappedPrice    = "FULFILLMENT_UNMAPPED_PRICE"
	ErrorIssueFailed      = "FULFILLMENT_ISSUE_FAILED"
	ErrorNotifyFailed     = "FULFILLMENT_NOTIFY_FAILED"
	ErrorForbidden        = "FULFILLMENT_FORBIDDEN"
	ErrorInternal         = "FULFILLMENT_INTERNAL_ERROR"
)

// MapError normalizes any error into the fulfillment error envelope so HTTP
// surfaces can derive a status code and text code without guessing.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newFulfillmentError(err.Error(), goerrors.CategoryAuth, ErrorSignatureInvalid)
	case strings.Contains(msg, "price") && strings.Contains(msg, "not mapped"):
		return newFulfillmentError(err.Error(), goerrors.CategoryBadInput, ErrorUnmappedPrice)
	case strings.Contains(msg, "license"), strings.Contains(msg, "licensing"):
		return newFulfillmentError(err.Error(), goerrors.CategoryExternal, ErrorIssueFailed)
	case strings.Contains(msg, "forbidden"):
		return newFulfillmentError(err.Error(), goerrors.CategoryAuthz, ErrorForbidden)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "missing"):
		return newFulfillmentError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

// HTTPStatus resolves the response status for an error after envelope
// normalization.
func HTTPStatus(err error) int {
	mapped := MapError(err)
	if mapped == nil {
		return http.StatusOK
	}
	return mapped.Code
}

func newFulfillmentError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = fulfillmentHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth:
		return ErrorSignatureInvalid
	case goerrors.CategoryAuthz:
		return ErrorForbidden
	case goerrors.CategoryExternal:
		return ErrorIssueFailed
	default:
		return ErrorInternal
	}
}

func fulfillmentHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusBadRequest
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
