/*
Package config holds the service configuration.

The configuration is read from the environment. Before decoding, optional env files
(by default ".env.local") are loaded, without overriding variables which are already
set:

	cfg, err := config.Load()

None of the Supabase credentials is required at load time. A missing endpoint URL, API
key or signing secret is reported by the component which needs it, at first use.
*/
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is the env file loaded by Load if no other files are given
const DefaultEnvFile = ".env.local"

// Configuration holds the configuration for this service
//
// use SUPABASE_URL="https://<project>.supabase.co" SUPABASE_KEY="<service key>"
// and SUPABASE_JWT_SECRET="<jwt secret>"
type Configuration struct {
	SupabaseURL        string `env:"SUPABASE_URL" description:"the Supabase project URL"`
	SupabaseKey        string `env:"SUPABASE_KEY" description:"the Supabase API key"`
	SupabaseJWTSecret  string `env:"SUPABASE_JWT_SECRET" description:"the secret used to verify access tokens"`
	SupabaseDBPassword string `env:"SUPABASE_DB_PASSWORD" description:"password of the Supabase Postgres DB"`

	DatabaseURL        string `env:"DATABASE_URL" description:"explicit Postgres connection string, overrides the derived pooler URL"`
	DatabasePoolerHost string `env:"DATABASE_POOLER_HOST,default=aws-1-ap-southeast-1.pooler.supabase.com" description:"host of the Supabase session pooler"`
	DatabaseSchema     string `env:"DATABASE_SCHEMA,default=public" description:"the database schema for the postgres driver"`

	JWTAudience string `env:"JWT_AUDIENCE,default=authenticated" description:"the expected audience of access tokens"`
	S3Region    string `env:"S3_REGION,default=auto" description:"region for the S3 compatible storage endpoint"`

	DataDriver       string `env:"DATA_DRIVER,default=rest" description:"data driver, one of rest, postgres"`
	StorageDriver    string `env:"STORAGE_DRIVER,default=rest" description:"storage driver, one of rest, s3, local"`
	LocalStoragePath string `env:"LOCAL_STORAGE_PATH,default=./storage" description:"base folder of the local storage driver"`
	PublicURL        string `env:"PUBLIC_URL,default=http://localhost:8000" description:"public URL of this service, used by the local storage driver"`
	AvatarBucket     string `env:"AVATAR_BUCKET,default=avatars" description:"bucket for user avatars"`

	Host        string        `env:"HOST,default=0.0.0.0"`
	Port        int           `env:"PORT,default=8000"`
	LogLevel    string        `env:"LOG_LEVEL,default=info"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT,default=20s" description:"timeout for requests to the Supabase backend"`
}

// Load loads the given env files (DefaultEnvFile if none are given) and decodes the
// configuration from the environment. Missing env files are ignored.
func Load(envFiles ...string) (*Configuration, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("cannot load env file %s: %w", file, err)
		}
	}

	cfg := &Configuration{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("cannot decode configuration: %w", err)
	}
	return cfg, nil
}

// Address returns the listen address host:port
func (c *Configuration) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProjectID returns the Supabase project id, which is the first label of the
// project host. Returns the empty string if SupabaseURL cannot be parsed.
func (c *Configuration) ProjectID() string {
	u, err := url.Parse(c.SupabaseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.Split(u.Hostname(), ".")[0]
}

// PostgresURL returns the connection string for the postgres driver. An explicit
// DatabaseURL wins, otherwise the session pooler URL is derived from the project id
// and the database password.
func (c *Configuration) PostgresURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	projectID := c.ProjectID()
	if projectID == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword("postgres."+projectID, c.SupabaseDBPassword),
		Host:     c.DatabasePoolerHost + ":5432",
		Path:     "/postgres",
		RawQuery: "sslmode=require",
	}
	return u.String()
}

// S3Endpoint returns the S3 compatible endpoint of the Supabase storage
func (c *Configuration) S3Endpoint() string {
	if c.SupabaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.SupabaseURL, "/") + "/storage/v1/s3"
}
