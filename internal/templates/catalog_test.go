package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

const catalogYAML = `
templates:
  - tier: A
    industry_code: MANUF
    name: initial
    subject: "{{ company_name }}: a quick idea"
    body: "Hi {{ first_name | default: \"there\" }}, we work with plants in {{ city | titlecase }}."
  - tier: a
    name: initial
    subject: "Hello from us"
    body: "Hi {{ first_name | default: \"there\" }}"
  - tier: A
    name: followup
    subject: "Following up"
    body: "Just checking in, {{ first_name }}."
`

func loadCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0644))
	c, err := LoadFile(path)
	require.NoError(t, err)
	return c
}

func TestResolve_ExactThenTierFallback(t *testing.T) {
	c := loadCatalog(t)
	ctx := context.Background()
	assert.Equal(t, 3, c.Len())

	tmpl, err := c.Resolve(ctx, domain.TierA, "manuf", domain.TemplateInitial)
	require.NoError(t, err)
	assert.Equal(t, "MANUF", tmpl.IndustryCode)

	tmpl, err = c.Resolve(ctx, domain.TierA, "RETAIL", domain.TemplateInitial)
	require.NoError(t, err)
	assert.Equal(t, "Hello from us", tmpl.Subject)
}

func TestResolve_NoTemplate(t *testing.T) {
	c := loadCatalog(t)
	_, err := c.Resolve(context.Background(), domain.TierE, "", domain.TemplateInitial)
	assert.True(t, errors.Is(err, domain.ErrNoTemplate))
}

func TestResolve_HonoursCancelledContext(t *testing.T) {
	c := loadCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Resolve(ctx, domain.TierA, "", domain.TemplateInitial)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRender(t *testing.T) {
	c := loadCatalog(t)
	tmpl, err := c.Resolve(context.Background(), domain.TierA, "MANUF", domain.TemplateInitial)
	require.NoError(t, err)

	subject, body, err := c.Render(tmpl, map[string]any{
		"company_name": "Acme",
		"first_name":   "",
		"city":         "red deer",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme: a quick idea", subject)
	assert.Equal(t, "Hi there, we work with plants in Red Deer.", body)
}

func TestReplace_RejectsBadEntries(t *testing.T) {
	c := New()
	assert.Error(t, c.Replace([]domain.Template{{Tier: "Q", Name: "initial"}}))
	assert.Error(t, c.Replace([]domain.Template{{Tier: "A"}}))
	assert.Error(t, c.Replace([]domain.Template{{Tier: "A", Name: "x", Body: "{% if x %}never closed"}}))
	assert.Error(t, c.Replace([]domain.Template{
		{Tier: "A", Name: "x"},
		{Tier: "a", Name: "x"},
	}))
}
