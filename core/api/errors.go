package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/relabs-tech/profilegate/core"
	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/logger"
)

func writeSuccess(w http.ResponseWriter, data interface{}) {
	core.WriteResponse(w, core.Success(data))
}

func writeFailure(w http.ResponseWriter, code int, msg string) {
	core.WriteResponse(w, core.Failure(code, msg))
}

// statusOf maps an error to the status code of its response. Conflicts reported by
// the backend keep their status, all other access errors are server errors.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindAuth:
		return http.StatusUnauthorized
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindDataAccess, errs.KindStorageAccess:
		var backendErr *errs.BackendError
		if errors.As(err, &backendErr) && backendErr.Status == http.StatusConflict {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the envelope for err. Only messages of our own error kinds are
// shown to the caller, configuration errors and unknown errors are not.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := "internal server error"
	switch errs.KindOf(err) {
	case errs.KindAuth, errs.KindValidation, errs.KindDataAccess, errs.KindStorageAccess:
		msg = err.Error()
	}
	rlog := logger.FromContext(ctx).WithError(err)
	if status >= http.StatusInternalServerError {
		rlog.Errorf("request failed with %d", status)
	} else {
		rlog.Infof("request failed with %d", status)
	}
	writeFailure(w, status, msg)
}
