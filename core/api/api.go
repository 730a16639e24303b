// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package api provides the REST interface of profilegate.

Every response, successful or not, is a JSON envelope

	{"code": 200, "msg": "success", "data": ...}

where code mirrors the HTTP status code. All routes below /api are guarded by the
request identity gate, except the allow-listed ones (health, login, refresh).

	GET    /api/health
	POST   /api/user/login
	POST   /api/user/refresh
	POST   /api/user/logout
	GET    /api/user/info
	POST   /api/user/add_info
	PUT    /api/user/info
	DELETE /api/user/info
	POST   /api/user/avatar
	GET    /api/user/exists
	GET    /docs
	GET    /openapi.json
*/
package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/profilegate/core/access"
	"github.com/relabs-tech/profilegate/core/clients"
	"github.com/relabs-tech/profilegate/core/data"
	"github.com/relabs-tech/profilegate/core/logger"
	"github.com/relabs-tech/profilegate/core/schema"
	"github.com/relabs-tech/profilegate/core/storage"
)

// ProfileCollection is the collection of user profiles
const ProfileCollection = "user_profile"

// DefaultAvatarBucket is used when the builder does not name one
const DefaultAvatarBucket = "avatars"

// maximum size of request bodies and uploaded avatars
const (
	maxBodySize   = 1 << 20
	maxAvatarSize = 5 << 20
)

// Builder is a helper to build an API
type Builder struct {
	// Router is the mux router the routes are added to. Mandatory.
	Router *mux.Router
	// Cache provides the client of the auth service. Mandatory.
	Cache *clients.Cache
	// Gate guards all routes below /api. Mandatory.
	Gate *access.Gate
	// Data is the data access layer. Mandatory.
	Data *data.Store
	// Storage is the storage access layer. Mandatory.
	Storage *storage.Service
	// Validator validates request bodies. If nil, the built-in schemas are used.
	Validator *schema.Validator
	// AvatarBucket is the bucket for avatar images. Defaults to DefaultAvatarBucket.
	AvatarBucket string
}

// API is the REST interface
type API struct {
	router       *mux.Router
	cache        *clients.Cache
	gate         *access.Gate
	data         *data.Store
	storage      *storage.Service
	validator    *schema.Validator
	avatarBucket string
}

// New creates a new API and registers all routes
func New(bb *Builder) (*API, error) {
	if bb.Router == nil || bb.Cache == nil || bb.Gate == nil || bb.Data == nil || bb.Storage == nil {
		return nil, errors.New("router, cache, gate, data and storage are mandatory")
	}
	validator := bb.Validator
	if validator == nil {
		var err error
		if validator, err = schema.Default(); err != nil {
			return nil, err
		}
	}
	bucket := bb.AvatarBucket
	if bucket == "" {
		bucket = DefaultAvatarBucket
	}
	a := &API{
		router:       bb.Router,
		cache:        bb.Cache,
		gate:         bb.Gate,
		data:         bb.Data,
		storage:      bb.Storage,
		validator:    validator,
		avatarBucket: bucket,
	}
	a.handleRoutes()
	return a, nil
}

// MustNew is like New but panics on error
func MustNew(bb *Builder) *API {
	a, err := New(bb)
	if err != nil {
		panic(err)
	}
	return a
}

// Router returns the router the routes were added to
func (a *API) Router() *mux.Router {
	return a.router
}

// Handler returns the router wrapped into the global middlewares. Request IDs are
// assigned first so that the recovery middleware can log with request context.
func (a *API) Handler() http.Handler {
	return logger.RequestIDMiddleware(recoverPanics(cors(a.router)))
}

func (a *API) handleRoutes() {
	a.handleDocs(a.router)

	apiRouter := a.router.PathPrefix("/api").Subrouter()
	apiRouter.Use(a.gate.Middleware())

	apiRouter.Handle("/health", http.HandlerFunc(a.health)).Methods(http.MethodGet)

	user := apiRouter.PathPrefix("/user").Subrouter()
	user.Handle("/login", http.HandlerFunc(a.login)).Methods(http.MethodPost)
	user.Handle("/refresh", http.HandlerFunc(a.refresh)).Methods(http.MethodPost)
	user.Handle("/logout", http.HandlerFunc(a.logout)).Methods(http.MethodPost)
	user.Handle("/info", handlers.CompressHandler(http.HandlerFunc(a.getInfo))).Methods(http.MethodGet)
	user.Handle("/add_info", http.HandlerFunc(a.addInfo)).Methods(http.MethodPost)
	user.Handle("/info", http.HandlerFunc(a.updateInfo)).Methods(http.MethodPut)
	user.Handle("/info", http.HandlerFunc(a.deleteInfo)).Methods(http.MethodDelete)
	user.Handle("/avatar", http.HandlerFunc(a.uploadAvatar)).Methods(http.MethodPost)
	user.Handle("/exists", http.HandlerFunc(a.exists)).Methods(http.MethodGet)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]string{"status": "ok"})
}
