package newsscan

import (
	"context"
	"strings"
)

// Classification is the verdict on one article.
type Classification struct {
	SignalType  string
	CompanyName string
	City        string
}

// Classifier decides whether an article is a lead signal. ok=false means
// the article is not a signal.
type Classifier interface {
	Classify(ctx context.Context, a Article) (c Classification, ok bool, err error)
}

// KeywordRules is the subset of *policy.Classifier the scanner needs.
type KeywordRules interface {
	ClassifyText(text string) string
	Blocked(text string) bool
	SignalTypes() []string
}

// KeywordClassifier classifies on headline and snippet keywords alone. It
// cannot name the company, so its signals wait for human review before
// promotion.
type KeywordClassifier struct {
	rules KeywordRules
}

func NewKeywordClassifier(rules KeywordRules) *KeywordClassifier {
	return &KeywordClassifier{rules: rules}
}

func (k *KeywordClassifier) Classify(_ context.Context, a Article) (Classification, bool, error) {
	t := k.rules.ClassifyText(a.Headline + " " + a.Snippet)
	if t == "" {
		return Classification{}, false, nil
	}
	return Classification{SignalType: t, City: a.City}, true, nil
}

// parseVerdict reads the line-oriented answer format shared by the LLM
// prompt:
//
//	SIGNAL
//	type: relocation
//	company: Acme Logistics
//	city: Calgary
//
// or a single NO_SIGNAL line. Unknown types fall back to fallbackType.
func parseVerdict(text string, known []string, fallbackType string) (Classification, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "SIGNAL") {
		return Classification{}, false
	}
	var c Classification
	for _, line := range strings.Split(text, "\n") {
		key, val, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "type":
			c.SignalType = strings.ToLower(val)
		case "company":
			if !strings.EqualFold(val, "unknown") && !strings.EqualFold(val, "n/a") {
				c.CompanyName = val
			}
		case "city":
			c.City = val
		}
	}
	if c.SignalType == "" {
		return Classification{}, false
	}
	valid := false
	for _, k := range known {
		if k == c.SignalType {
			valid = true
			break
		}
	}
	if !valid {
		c.SignalType = fallbackType
	}
	return c, true
}
