package clients

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/profilegate/core/config"
	"github.com/relabs-tech/profilegate/core/errs"
	"github.com/relabs-tech/profilegate/core/supabase"
)

func testConfig() *config.Configuration {
	return &config.Configuration{
		SupabaseURL:        "https://abcdefgh.supabase.co",
		SupabaseKey:        "service-key",
		SupabaseDBPassword: "pw",
		DatabasePoolerHost: "pooler.example.com",
		DatabaseSchema:     "public",
		S3Region:           "auto",
	}
}

func TestCache_SameInstance(t *testing.T) {
	cache := New(testConfig())

	d1, err := cache.DataClient()
	require.NoError(t, err)
	d2, err := cache.DataClient()
	require.NoError(t, err)
	assert.Same(t, d1, d2)

	s1, err := cache.StorageClient()
	require.NoError(t, err)
	s2, err := cache.StorageClient()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.NotSame(t, d1, s1)

	o1, err := cache.ObjectProtocolClient()
	require.NoError(t, err)
	o2, err := cache.ObjectProtocolClient()
	require.NoError(t, err)
	assert.Same(t, o1, o2)

	db1, err := cache.Database()
	require.NoError(t, err)
	db2, err := cache.Database()
	require.NoError(t, err)
	assert.Same(t, db1, db2)
}

func TestCache_ConcurrentFirstCallers(t *testing.T) {
	cache := New(testConfig())

	const n = 16
	results := make([]*supabase.Client, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.DataClient()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different client", i)
		}
	}
}

func TestCache_MissingConfiguration(t *testing.T) {
	cache := New(&config.Configuration{SupabaseURL: "https://abcdefgh.supabase.co"})

	client, err := cache.DataClient()
	assert.Nil(t, client)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	_, err = cache.StorageClient()
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	_, err = cache.ObjectProtocolClient()
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	_, err = New(&config.Configuration{}).Database()
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestCache_ConstructionErrorIsWrappedAndSticky(t *testing.T) {
	cfg := testConfig()
	cfg.SupabaseURL = "ftp://abcdefgh.supabase.co"
	cache := New(cfg)

	_, err1 := cache.DataClient()
	require.Error(t, err1)
	assert.True(t, errors.Is(err1, errs.ErrConfiguration))
	assert.NotNil(t, errors.Unwrap(err1), "cause must be preserved")

	// fixing the configuration does not silently retry
	cfg.SupabaseURL = "https://abcdefgh.supabase.co"
	_, err2 := cache.DataClient()
	assert.Equal(t, err1, err2)

	// explicit invalidation does
	cache.Invalidate()
	client, err := cache.DataClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
}
