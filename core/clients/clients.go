/*
Package clients holds the clients for the external services.

A Cache is created once at startup and handed to every component that needs one of
the clients:

	cache := clients.New(cfg)
	store := data.New(data.NewRestDriver(cache))

Nothing is constructed by New. Each client is constructed on first use, exactly once,
even with concurrent first callers. The outcome is kept: a client that failed to
construct keeps failing with the same ConfigurationError until Invalidate is called.
*/
package clients

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/relabs-tech/profilegate/core/config"
	"github.com/relabs-tech/profilegate/core/csql"
	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/logger"
	"github.com/relabs-tech/profilegate/core/supabase"
)

// slot holds one lazily constructed client
type slot[T any] struct {
	once  sync.Once
	value T
	err   error
}

func (s *slot[T]) get(construct func() (T, error)) (T, error) {
	s.once.Do(func() {
		s.value, s.err = construct()
	})
	return s.value, s.err
}

// Cache is the process wide holder of the external service clients
type Cache struct {
	config *config.Configuration

	mutex    sync.Mutex
	data     *slot[*supabase.Client]
	storage  *slot[*supabase.Client]
	objects  *slot[*s3.Client]
	database *slot[*csql.DB]
}

// New returns a new cache for the given configuration
func New(cfg *config.Configuration) *Cache {
	c := &Cache{config: cfg}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.data = &slot[*supabase.Client]{}
	c.storage = &slot[*supabase.Client]{}
	c.objects = &slot[*s3.Client]{}
	c.database = &slot[*csql.DB]{}
}

// Invalidate drops all clients. The next call of a getter constructs a new one.
func (c *Cache) Invalidate() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if db := c.database; db != nil && db.value != nil {
		db.value.Close()
	}
	c.reset()
	logger.Default().Infoln("client cache invalidated")
}

// Config returns the configuration the cache was created with
func (c *Cache) Config() *config.Configuration {
	return c.config
}

// DataClient returns the client for the data and auth services
func (c *Cache) DataClient() (*supabase.Client, error) {
	c.mutex.Lock()
	s := c.data
	c.mutex.Unlock()
	return s.get(func() (*supabase.Client, error) {
		return c.newSupabaseClient("data")
	})
}

// StorageClient returns the client for the storage service
func (c *Cache) StorageClient() (*supabase.Client, error) {
	c.mutex.Lock()
	s := c.storage
	c.mutex.Unlock()
	return s.get(func() (*supabase.Client, error) {
		return c.newSupabaseClient("storage")
	})
}

// ObjectProtocolClient returns an S3 client for the S3 compatible storage endpoint. It
// authenticates with the API key as access key id and secret.
func (c *Cache) ObjectProtocolClient() (*s3.Client, error) {
	c.mutex.Lock()
	s := c.objects
	c.mutex.Unlock()
	return s.get(c.newS3Client)
}

// Database returns the postgres database for the postgres data driver
func (c *Cache) Database() (*csql.DB, error) {
	c.mutex.Lock()
	s := c.database
	c.mutex.Unlock()
	return s.get(func() (*csql.DB, error) {
		dsn := c.config.PostgresURL()
		if dsn == "" {
			return nil, errs.Configuration("DATABASE_URL or SUPABASE_URL and SUPABASE_DB_PASSWORD must be set", nil)
		}
		db, err := csql.Open(dsn, c.config.DatabaseSchema)
		if err != nil {
			logger.Default().WithError(err).Errorln("failed to open database")
			return nil, errs.Configuration("failed to open database", err)
		}
		logger.Default().Debugf("database opened with schema %s", db.Schema)
		return db, nil
	})
}

func (c *Cache) newSupabaseClient(purpose string) (*supabase.Client, error) {
	if c.config.SupabaseURL == "" || c.config.SupabaseKey == "" {
		return nil, errs.Configuration("SUPABASE_URL and SUPABASE_KEY must be set in environment variables", nil)
	}
	client, err := supabase.New(c.config.SupabaseURL, c.config.SupabaseKey, supabase.WithTimeout(c.config.HTTPTimeout))
	if err != nil {
		logger.Default().WithError(err).Errorf("failed to create Supabase %s client", purpose)
		return nil, errs.Configuration("failed to create Supabase client", err)
	}
	logger.Default().Debugf("Supabase %s client created", purpose)
	return client, nil
}

func (c *Cache) newS3Client() (*s3.Client, error) {
	if c.config.SupabaseURL == "" || c.config.SupabaseKey == "" {
		return nil, errs.Configuration("SUPABASE_URL and SUPABASE_KEY must be set in environment variables", nil)
	}
	region := c.config.S3Region
	if region == "" {
		region = "auto"
	}
	cfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.config.SupabaseKey, c.config.SupabaseKey, "")),
	)
	if err != nil {
		logger.Default().WithError(err).Errorln("failed to create S3 client")
		return nil, errs.Configuration("failed to create S3 client", err)
	}
	endpoint := c.config.S3Endpoint()
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.EndpointResolver = s3.EndpointResolverFromURL(endpoint, func(e *aws.Endpoint) {
			e.SigningRegion = region
			e.HostnameImmutable = true
		})
	})
	logger.Default().Debugf("S3 client created for %s", endpoint)
	return client, nil
}
