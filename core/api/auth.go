package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/profilegate/core/access"
	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/logger"
	"github.com/relabs-tech/profilegate/core/schema"
	"github.com/relabs-tech/profilegate/core/supabase"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// readBody reads the request body and validates it against schemaID
func (a *API) readBody(r *http.Request, schemaID string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errs.Validation("cannot read request body", err)
	}
	if len(body) > maxBodySize {
		return nil, errs.Validation(fmt.Sprintf("request body exceeds %d bytes", maxBodySize), nil)
	}
	if err := a.validator.ValidateBytes(body, schemaID); err != nil {
		return nil, err
	}
	return body, nil
}

// authFailure translates an error of the auth service. Rejections become auth errors,
// everything else stays an internal error.
func authFailure(err error, message string) error {
	var backendErr *errs.BackendError
	if errors.As(err, &backendErr) && backendErr.Status < http.StatusInternalServerError {
		return errs.Auth(message, err)
	}
	return err
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := a.readBody(r, schema.LoginID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req loginRequest
	if err = json.Unmarshal(body, &req); err != nil {
		writeError(ctx, w, errs.Validation("invalid JSON document", err))
		return
	}
	client, err := a.cache.DataClient()
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	session, err := client.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		writeError(ctx, w, authFailure(err, "invalid login credentials"))
		return
	}
	logger.FromContext(ctx).Infof("user %s logged in", sessionSubject(session))
	writeSuccess(w, session)
}

// sessionSubject returns the user ID of a session, or the empty string
func sessionSubject(session *supabase.Session) string {
	id, _ := session.User["id"].(string)
	return id
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := a.readBody(r, schema.RefreshID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req refreshRequest
	if err = json.Unmarshal(body, &req); err != nil {
		writeError(ctx, w, errs.Validation("invalid JSON document", err))
		return
	}
	client, err := a.cache.DataClient()
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var session *supabase.Session
	if session, err = client.RefreshSession(ctx, req.RefreshToken); err != nil {
		writeError(ctx, w, authFailure(err, "invalid refresh token"))
		return
	}
	writeSuccess(w, session)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client, err := a.cache.DataClient()
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	token := access.BearerToken(r.Header.Get("Authorization"))
	if err = client.SignOut(ctx, token); err != nil {
		writeError(ctx, w, authFailure(err, "logout failed"))
		return
	}
	writeSuccess(w, nil)
}
