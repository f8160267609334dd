package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/contact"
	"github.com/ignite/outreach-engine/internal/worker"
)

const catalog = `
templates:
  - tier: C
    name: initial
    subject: "Hello {{ company_name }}"
    body: "Hi there"
  - tier: C
    name: followup
    subject: "Following up"
    body: "Checking in"
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0644))
	return &config.Config{
		Logging:   config.LoggingConfig{Level: "warn"},
		Templates: config.TemplatesConfig{Path: path},
		Engine:    config.EngineConfig{BounceThreshold: 3, Cadence: []int{5, 10}, SendRetries: 1, SendTimeoutSeconds: 1, ResolveTimeoutSeconds: 1},
	}
}

func TestOpen_MemoryStoreAndDryRun(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	assert.Nil(t, rt.DB)
	assert.Nil(t, rt.Redis)
	assert.Nil(t, rt.Lock("followup-sweep", time.Minute), "no singleton lock without shared storage")
	assert.Equal(t, 2, rt.Templates.Len())

	c, err := rt.Engine.Contacts.Create(ctx, contact.CreateInput{CompanyName: "Acme Fabrication", City: "Calgary"}, contact.CreateOptions{})
	require.NoError(t, err)
	c, err = rt.Engine.Contacts.RecordDiscoveryAttempt(ctx, c.ID, contact.Attempt{Step: "pattern", Result: domain.DiscoveryFound, Email: "info@acme.example"})
	require.NoError(t, err)

	b, err := rt.Engine.Bundles.Draft(ctx, c.ID, "")
	require.NoError(t, err)
	_, err = rt.Engine.Bundles.Approve(ctx, b.ID)
	require.NoError(t, err)
	b, err = rt.Engine.Bundles.Deliver(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BundleSent, b.Status, "dry-run adapter accepts every send")
}

func TestOpen_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{URL: "redis://" + mr.Addr(), LockTTLSeconds: 30}

	rt, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	require.NotNil(t, rt.Redis)

	lock := rt.Lock("news-scan", time.Minute)
	require.NotNil(t, lock)
	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("outreach:lock:news-scan"))
}

func TestOpen_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Templates.Path = "/nonexistent/templates.yaml"
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Redis.URL = "not a url"
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewAdapter(t *testing.T) {
	a, err := NewAdapter(context.Background(), config.SESConfig{})
	require.NoError(t, err)
	assert.IsType(t, &worker.DryRunAdapter{}, a)

	_, err = NewAdapter(context.Background(), config.SESConfig{Enabled: true})
	assert.Error(t, err, "from_email is required")
}
