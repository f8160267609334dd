// Package policy holds the data-driven classification rules of the
// engine: industry to tier mapping, per-signal-type lead defaults, the
// news keyword pre-filter and company matching for promoted signals.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
)

// SignalRule is how a promoted signal of one type becomes a lead.
type SignalRule struct {
	Type         string
	Tier         domain.Tier
	Priority     int
	IndustryCode string
	Keywords     []string
}

// Classifier answers classification questions from configuration.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	defaultTier   domain.Tier
	industryTier  map[string]domain.Tier
	rules         map[string]SignalRule
	ruleOrder     []string
	blockKeywords []string
}

// New builds a Classifier and rejects tiers or priorities outside their
// domains so bad config fails at boot.
func New(cfg config.PolicyConfig) (*Classifier, error) {
	c := &Classifier{
		defaultTier:  domain.Tier(strings.ToUpper(cfg.DefaultTier)),
		industryTier: make(map[string]domain.Tier, len(cfg.IndustryTier)),
		rules:        make(map[string]SignalRule, len(cfg.SignalTypes)),
	}
	if c.defaultTier == "" {
		c.defaultTier = domain.TierC
	}
	if !c.defaultTier.Valid() {
		return nil, fmt.Errorf("policy: invalid default tier %q", cfg.DefaultTier)
	}
	for industry, tier := range cfg.IndustryTier {
		t := domain.Tier(strings.ToUpper(tier))
		if !t.Valid() {
			return nil, fmt.Errorf("policy: industry %s: invalid tier %q", industry, tier)
		}
		c.industryTier[strings.ToUpper(industry)] = t
	}
	for name, st := range cfg.SignalTypes {
		rule := SignalRule{
			Type:         name,
			Tier:         domain.Tier(strings.ToUpper(st.Tier)),
			Priority:     st.Priority,
			IndustryCode: st.IndustryCode,
		}
		if rule.Tier == "" {
			rule.Tier = c.defaultTier
		}
		if !rule.Tier.Valid() {
			return nil, fmt.Errorf("policy: signal type %s: invalid tier %q", name, st.Tier)
		}
		if rule.Priority < 0 || rule.Priority > 100 {
			return nil, fmt.Errorf("policy: signal type %s: priority %d out of range", name, st.Priority)
		}
		for _, kw := range st.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				rule.Keywords = append(rule.Keywords, kw)
			}
		}
		c.rules[name] = rule
		c.ruleOrder = append(c.ruleOrder, name)
	}
	sort.Strings(c.ruleOrder)
	for _, kw := range cfg.BlockKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			c.blockKeywords = append(c.blockKeywords, kw)
		}
	}
	return c, nil
}

// DefaultTier is used when nothing more specific applies.
func (c *Classifier) DefaultTier() domain.Tier { return c.defaultTier }

// TierFor returns the tier configured for an industry code, or the
// default tier.
func (c *Classifier) TierFor(industryCode string) domain.Tier {
	if t, ok := c.industryTier[strings.ToUpper(strings.TrimSpace(industryCode))]; ok {
		return t
	}
	return c.defaultTier
}

// Rule returns the promotion rule for a signal type. Unknown types get the
// default tier and a zero priority so the caller applies its own default.
func (c *Classifier) Rule(signalType string) (SignalRule, bool) {
	r, ok := c.rules[signalType]
	if !ok {
		return SignalRule{Type: signalType, Tier: c.defaultTier}, false
	}
	return r, true
}

// SignalTypes lists the configured signal types in name order.
func (c *Classifier) SignalTypes() []string {
	return append([]string(nil), c.ruleOrder...)
}

// ClassifyText returns the first signal type (by name order) whose keyword
// appears in text, or "" when none match.
func (c *Classifier) ClassifyText(text string) string {
	lower := strings.ToLower(text)
	for _, name := range c.ruleOrder {
		for _, kw := range c.rules[name].Keywords {
			if strings.Contains(lower, kw) {
				return name
			}
		}
	}
	return ""
}

// Blocked reports whether text contains a block keyword. Blocked items
// are dropped before classification.
func (c *Classifier) Blocked(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.blockKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
