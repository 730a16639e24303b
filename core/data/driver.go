package data

import (
	"fmt"

	"github.com/relabs-tech/profilegate/core/clients"
	"github.com/relabs-tech/profilegate/core/errs"
)

// DriverType selects a Driver
type DriverType string

// all supported drivers
const (
	DriverTypeRest     DriverType = "rest"
	DriverTypePostgres DriverType = "postgres"
)

// NewDriver returns the driver of type driverType, using the clients of cache
func NewDriver(driverType DriverType, cache *clients.Cache) (Driver, error) {
	switch driverType {
	case DriverTypeRest, "":
		return NewRestDriver(cache, cache.Config().DatabaseSchema), nil
	case DriverTypePostgres:
		return NewPostgresDriver(cache), nil
	default:
		return nil, errs.Configuration(fmt.Sprintf("unknown data driver '%s'", driverType), nil)
	}
}
