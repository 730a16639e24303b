package storage

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/profilegate/core/clients"
	"github.com/relabs-tech/profilegate/core/errs"
)

// DriverType selects a Driver
type DriverType string

// all supported drivers
const (
	DriverTypeRest  DriverType = "rest"
	DriverTypeS3    DriverType = "s3"
	DriverTypeLocal DriverType = "local"
)

var errNoProjectURL = errs.Configuration("SUPABASE_URL must be set in environment variables", nil)

// NewDriver returns the driver of type driverType, using the clients of cache. The
// local driver adds its routes to router.
func NewDriver(driverType DriverType, cache *clients.Cache, router *mux.Router) (Driver, error) {
	cfg := cache.Config()
	switch driverType {
	case DriverTypeRest, "":
		return NewRestDriver(cache), nil
	case DriverTypeS3:
		return NewS3Driver(cache, cfg.SupabaseURL), nil
	case DriverTypeLocal:
		if router == nil {
			return nil, errors.New("local storage requires a router")
		}
		u, err := url.Parse(cfg.PublicURL)
		if err != nil {
			return nil, errs.Configuration(fmt.Sprintf("cannot parse public URL %s", cfg.PublicURL), err)
		}
		return NewLocalFilesystem(router, cfg.LocalStoragePath, *u, []string{cfg.AvatarBucket}, nil)
	default:
		return nil, errs.Configuration(fmt.Sprintf("unknown storage driver '%s'", driverType), nil)
	}
}
