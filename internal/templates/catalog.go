// Package templates is the file-backed template resolver. Templates are
// data: a YAML catalog keyed by (tier, industry_code, name), rendered with
// Liquid.
package templates

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/osteele/liquid"
	"gopkg.in/yaml.v3"

	"github.com/ignite/outreach-engine/internal/domain"
)

// catalogFile is the on-disk layout of the catalog.
type catalogFile struct {
	Templates []domain.Template `yaml:"templates"`
}

type key struct {
	tier     domain.Tier
	industry string
	name     string
}

type compiled struct {
	subject *liquid.Template
	body    *liquid.Template
}

// Catalog resolves templates by exact (tier, industry, name) and falls
// back to the tier-wide entry with an empty industry code. It is safe for
// concurrent use; Reload swaps the whole catalog atomically.
type Catalog struct {
	engine *liquid.Engine

	mu       sync.RWMutex
	entries  map[key]*domain.Template
	compiled map[*domain.Template]compiled
}

// New creates an empty catalog with the engine filters registered.
func New() *Catalog {
	engine := liquid.NewEngine()
	registerFilters(engine)
	return &Catalog{
		engine:   engine,
		entries:  map[key]*domain.Template{},
		compiled: map[*domain.Template]compiled{},
	}
}

// LoadFile builds a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	c := New()
	if err := c.Reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the YAML file. Every template is compiled up front so a
// syntax error rejects the whole file and the previous catalog stays.
func (c *Catalog) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("templates: read %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("templates: parse %s: %w", path, err)
	}
	return c.Replace(f.Templates)
}

// Replace installs the given templates, replacing the current set.
func (c *Catalog) Replace(list []domain.Template) error {
	entries := make(map[key]*domain.Template, len(list))
	comp := make(map[*domain.Template]compiled, len(list))
	for i := range list {
		t := list[i]
		t.Tier = domain.Tier(strings.ToUpper(string(t.Tier)))
		if !t.Tier.Valid() {
			return fmt.Errorf("templates: %q: invalid tier %q", t.Name, t.Tier)
		}
		if t.Name == "" {
			return fmt.Errorf("templates: entry %d has no name", i)
		}
		k := key{tier: t.Tier, industry: strings.ToUpper(t.IndustryCode), name: t.Name}
		if _, dup := entries[k]; dup {
			return fmt.Errorf("templates: duplicate entry %s/%s/%s", k.tier, k.industry, k.name)
		}
		subj, err := c.engine.ParseString(t.Subject)
		if err != nil {
			return fmt.Errorf("templates: %s subject: %w", t.Name, err)
		}
		body, err := c.engine.ParseString(t.Body)
		if err != nil {
			return fmt.Errorf("templates: %s body: %w", t.Name, err)
		}
		tp := &t
		entries[k] = tp
		comp[tp] = compiled{subject: subj, body: body}
	}

	c.mu.Lock()
	c.entries = entries
	c.compiled = comp
	c.mu.Unlock()
	return nil
}

// Len returns the number of templates loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Resolve implements sending.TemplateResolver.
func (c *Catalog) Resolve(ctx context.Context, tier domain.Tier, industryCode, name string) (*domain.Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t, ok := c.entries[key{tier: tier, industry: strings.ToUpper(industryCode), name: name}]; ok {
		return t, nil
	}
	if t, ok := c.entries[key{tier: tier, name: name}]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: tier=%s industry=%s name=%s", domain.ErrNoTemplate, tier, industryCode, name)
}

// Render implements sending.TemplateResolver. Missing variables render
// empty.
func (c *Catalog) Render(t *domain.Template, data map[string]any) (string, string, error) {
	c.mu.RLock()
	comp, ok := c.compiled[t]
	c.mu.RUnlock()

	if !ok {
		subj, err := c.engine.ParseString(t.Subject)
		if err != nil {
			return "", "", fmt.Errorf("parse subject: %w", err)
		}
		body, err := c.engine.ParseString(t.Body)
		if err != nil {
			return "", "", fmt.Errorf("parse body: %w", err)
		}
		comp = compiled{subject: subj, body: body}
	}

	subject, err := comp.subject.RenderString(data)
	if err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	body, err := comp.body.RenderString(data)
	if err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return strings.TrimSpace(subject), body, nil
}

// registerFilters adds the filters templates rely on.
func registerFilters(engine *liquid.Engine) {
	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(words, " ")
	})
	engine.RegisterFilter("urlencode", url.QueryEscape)
	engine.RegisterFilter("escape", html.EscapeString)
}
