package httpx

import (
	"net/http"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindConcurrency:
		return http.StatusConflict
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInvariant:
		return http.StatusUnprocessableEntity
	case shared.KindInfrastructure:
		return http.StatusServiceUnavailable
	case "":
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

var titles = map[shared.Kind]string{
	shared.KindValidation:     "Validation Failed",
	shared.KindConcurrency:    "Concurrency Conflict",
	shared.KindNotFound:       "Not Found",
	shared.KindInvariant:      "Domain Rule Violated",
	shared.KindInfrastructure: "Service Unavailable",
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Infrastructure details are not echoed to the client.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	detail := err.Error()
	if kind == shared.KindInfrastructure {
		detail = ""
	}
	Problem(w, StatusFor(kind), titles[kind], string(kind), detail)
}

// RespondResult writes a successful result with the given status, or the
// problem document of a failed one.
func RespondResult[T any](w http.ResponseWriter, status int, result shared.Result[T]) {
	if !result.OK() {
		detail := result.Message
		if result.Kind == shared.KindInfrastructure {
			detail = ""
		}
		Problem(w, StatusFor(result.Kind), titles[result.Kind], string(result.Kind), detail)
		return
	}
	JSON(w, status, result)
}

// BadRequest writes a 400 problem for malformed input.
func BadRequest(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusBadRequest, titles[shared.KindValidation], string(shared.KindValidation), detail)
}
