package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// statusFor maps a daqerr.Code to an HTTP status code (spec.md §7
// "User-visible failure"): NotFound->404, InvalidArgument/ValidationFailed
// ->400, Timeout->504, Cancelled->499 (nginx's client-closed-request
// convention, there being no true standard code for cooperative
// cancellation), Communication/Hardware/Internal->503/502/500.
func statusFor(code daqerr.Code) int {
	switch code {
	case daqerr.NotFound:
		return http.StatusNotFound
	case daqerr.AlreadyExists:
		return http.StatusConflict
	case daqerr.InvalidArgument, daqerr.ValidationFailed:
		return http.StatusBadRequest
	case daqerr.Timeout:
		return http.StatusGatewayTimeout
	case daqerr.Cancelled:
		return 499
	case daqerr.NotArmed, daqerr.StateInvalid:
		return http.StatusConflict
	case daqerr.Hardware:
		return http.StatusBadGateway
	case daqerr.Communication:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError renders err as a JSON body with the status spec.md §7 assigns
// its daqerr.Code.
func writeError(w http.ResponseWriter, err error) {
	code := daqerr.Of(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(errorBody{Code: string(code), Message: err.Error()})
}

// errNoActiveRun is returned by run-control endpoints when no plan has
// been started yet.
var errNoActiveRun = daqerr.New(daqerr.StateInvalid, "rpc", "no active run")

func errNotFrameProducer(id string) error {
	return daqerr.New(daqerr.InvalidArgument, "rpc.handleFrameStream", id+" is not a frame producer")
}

func errNotReadable(id string) error {
	return daqerr.New(daqerr.InvalidArgument, "rpc.handleObservableStream", id+" is not readable")
}
