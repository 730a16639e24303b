package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/profilegate/core/access"
	"github.com/relabs-tech/profilegate/core/data"
	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/logger"
	"github.com/relabs-tech/profilegate/core/schema"
)

// avatarField is the multipart form field of the avatar image
const avatarField = "file"

var errProfileNotFound = errs.DataAccess(ProfileCollection, "user profile not found", nil)

// subject returns the user ID the gate established for the request
func subject(r *http.Request) (string, error) {
	identity := access.IdentityFromContext(r.Context())
	if identity == nil || identity.Subject == "" {
		return "", errs.Auth("not authenticated", nil)
	}
	return identity.Subject, nil
}

// profileRecord decodes a validated profile body into a record
func profileRecord(body []byte) (data.Record, error) {
	record := data.Record{}
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, errs.Validation("invalid JSON document", err)
	}
	return record, nil
}

// getInfo returns the profile of the caller. A caller without profile gets a
// successful response with null data.
func (a *API) getInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := subject(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	rows, err := a.data.Select(ctx, ProfileCollection, data.Eq("id", userID), data.Limit(1))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if len(rows) == 0 {
		writeSuccess(w, nil)
		return
	}
	writeSuccess(w, rows[0])
}

// addInfo creates the profile of the caller. The profile ID is always the subject
// of the token, it cannot be chosen by the caller.
func (a *API) addInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := subject(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	body, err := a.readBody(r, schema.UserProfileID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	record, err := profileRecord(body)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	record["id"] = userID
	rows, err := a.data.Insert(ctx, ProfileCollection, record)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if len(rows) == 0 {
		writeError(ctx, w, errs.DataAccess(ProfileCollection, "unexpected error", nil))
		return
	}
	logger.FromContext(ctx).Infof("created profile for %s", userID)
	writeSuccess(w, rows[0])
}

func (a *API) updateInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := subject(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	body, err := a.readBody(r, schema.UserProfileUpdateID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	record, err := profileRecord(body)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	a.update(w, r, userID, record)
}

// update writes record to the profile of userID and responds with the updated profile
func (a *API) update(w http.ResponseWriter, r *http.Request, userID string, record data.Record) {
	ctx := r.Context()
	rows, err := a.data.Update(ctx, ProfileCollection, record, data.Eq("id", userID))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if len(rows) == 0 {
		writeFailure(w, http.StatusNotFound, errProfileNotFound.Error())
		return
	}
	writeSuccess(w, rows[0])
}

func (a *API) deleteInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := subject(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	deleted, err := a.data.Delete(ctx, ProfileCollection, data.Eq("id", userID))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeSuccess(w, map[string]bool{"deleted": deleted})
}

// uploadAvatar stores the uploaded image below the caller's folder in the avatar
// bucket and sets its public URL as avatar of the profile
func (a *API) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := subject(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize+(64<<10))
	file, header, err := r.FormFile(avatarField)
	if err != nil {
		writeError(ctx, w, errs.Validation(fmt.Sprintf("multipart form with field '%s' required", avatarField), err))
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(file, maxAvatarSize+1))
	if err != nil {
		writeError(ctx, w, errs.Validation("cannot read uploaded file", err))
		return
	}
	if n > maxAvatarSize {
		writeError(ctx, w, errs.Validation(fmt.Sprintf("avatar exceeds %d bytes", maxAvatarSize), nil))
		return
	}
	if n == 0 {
		writeError(ctx, w, errs.Validation("avatar is empty", nil))
		return
	}
	contentType := http.DetectContentType(buf.Bytes())
	if !strings.HasPrefix(contentType, "image/") {
		writeError(ctx, w, errs.Validation(fmt.Sprintf("avatar must be an image, got %s", contentType), nil))
		return
	}

	profiles, err := a.data.Select(ctx, ProfileCollection, data.Columns("id"), data.Eq("id", userID), data.Limit(1))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if len(profiles) == 0 {
		writeFailure(w, http.StatusNotFound, errProfileNotFound.Error())
		return
	}

	key := path.Join(userID, a.storage.GenerateFilename(header.Filename))
	if _, err = a.storage.Upload(ctx, a.avatarBucket, key, buf.Bytes(), contentType); err != nil {
		writeError(ctx, w, err)
		return
	}
	rows, err := a.setAvatar(r, userID, key)
	if err != nil || len(rows) == 0 {
		// the avatar must not outlive a failed or vanished profile
		if _, deleteErr := a.storage.Delete(ctx, a.avatarBucket, key); deleteErr != nil {
			logger.FromContext(ctx).WithError(deleteErr).Errorf("cannot remove orphaned avatar %s/%s", a.avatarBucket, key)
		}
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if len(rows) == 0 {
		writeFailure(w, http.StatusNotFound, errProfileNotFound.Error())
		return
	}
	logger.FromContext(ctx).Infof("uploaded avatar %s/%s", a.avatarBucket, key)
	writeSuccess(w, rows[0])
}

// setAvatar points the profile of userID to the public URL of the avatar at key
func (a *API) setAvatar(r *http.Request, userID, key string) (data.Rows, error) {
	avatarURL, err := a.storage.PublicURL(a.avatarBucket, key)
	if err != nil {
		return nil, err
	}
	record := data.Record{"avatar": avatarURL}
	if err = a.validator.ValidateStruct(record, schema.UserProfileUpdateID); err != nil {
		return nil, err
	}
	return a.data.Update(r.Context(), ProfileCollection, record, data.Eq("id", userID))
}

func (a *API) exists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := subject(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeSuccess(w, map[string]bool{"exists": a.data.CheckUserExists(ctx, userID)})
}
