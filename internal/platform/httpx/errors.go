// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/ledger/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrJournalNotFound),
		errors.Is(err, shared.ErrInvoiceNotFound),
		errors.Is(err, shared.ErrVoucherNotFound),
		errors.Is(err, shared.ErrAllocationNotFound),
		errors.Is(err, shared.ErrMappingNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrCodeExists),
		errors.Is(err, shared.ErrSourceConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		Problem(w, http.StatusConflict, "Concurrency Conflict", "the ledger is busy, retry the request")
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrInvalidAccount),
		errors.Is(err, shared.ErrNatureMismatch),
		errors.Is(err, shared.ErrOverAllocation),
		errors.Is(err, shared.ErrInvalidStatus):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
