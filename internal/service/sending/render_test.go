package sending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-engine/internal/domain"
)

type stubResolver struct {
	tmpl *domain.Template
	err  error
}

func (s stubResolver) Resolve(context.Context, domain.Tier, string, string) (*domain.Template, error) {
	return s.tmpl, s.err
}

func (s stubResolver) Render(t *domain.Template, data map[string]any) (string, string, error) {
	return t.Subject + " " + data["company_name"].(string), t.Body + " " + data["first_name"].(string), nil
}

func TestRenderFor(t *testing.T) {
	c := &domain.Contact{CompanyName: "Acme", ContactName: "Jane Doe", Tier: domain.TierA}
	r := stubResolver{tmpl: &domain.Template{Subject: "Hi", Body: "Hello"}}

	subject, body, err := RenderFor(context.Background(), r, time.Second, c, domain.TemplateInitial)
	require.NoError(t, err)
	assert.Equal(t, "Hi Acme", subject)
	assert.Equal(t, "Hello Jane", body)
}

func TestRenderFor_PropagatesNoTemplate(t *testing.T) {
	c := &domain.Contact{CompanyName: "Acme", Tier: domain.TierB}
	_, _, err := RenderFor(context.Background(), stubResolver{err: domain.ErrNoTemplate}, time.Second, c, "initial")
	assert.True(t, errors.Is(err, domain.ErrNoTemplate))
}

func TestHTMLBody(t *testing.T) {
	out := HTMLBody("Hello <Jane>\nline two\n\nSecond para", PixelURL("https://t.example.com/", "abc"))
	assert.Contains(t, out, "<p>Hello &lt;Jane&gt;<br>line two</p>")
	assert.Contains(t, out, "<p>Second para</p>")
	assert.Contains(t, out, `src="https://t.example.com/track/abc.gif"`)

	assert.NotContains(t, HTMLBody("x", ""), "<img")
}
