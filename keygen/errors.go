package keygen

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fulfillment/core"
)

func keygenError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(keygenTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func keygenWrap(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return keygenError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(keygenTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func keygenInternal(message string, metadata map[string]any) error {
	return keygenError(message, goerrors.CategoryInternal, http.StatusInternalServerError, metadata)
}

func keygenBadInput(message string, metadata map[string]any) error {
	return keygenError(message, goerrors.CategoryBadInput, http.StatusBadRequest, metadata)
}

func keygenTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorIssueFailed
	default:
		return core.ErrorInternal
	}
}
