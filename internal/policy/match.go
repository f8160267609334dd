package policy

import (
	"strings"
	"unicode"

	"github.com/ignite/outreach-engine/internal/domain"
)

// companySuffixes are stripped before comparing company names.
var companySuffixes = []string{"inc", "incorporated", "ltd", "limited", "llc", "corp", "corporation", "co", "company"}

// NormalizeCompany lowercases a company name, drops punctuation and a
// trailing legal suffix.
func NormalizeCompany(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '&':
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	if len(words) > 1 {
		last := words[len(words)-1]
		for _, s := range companySuffixes {
			if last == s {
				words = words[:len(words)-1]
				break
			}
		}
	}
	return strings.Join(words, " ")
}

// MatchContact picks the contact a signal about company in city refers to.
// An exact normalized name match wins over a containment match; city must
// agree when both sides have one. Ties go to the lowest ID.
func MatchContact(candidates []domain.Contact, company, city string) (*domain.Contact, bool) {
	want := NormalizeCompany(company)
	if want == "" {
		return nil, false
	}
	var exact, partial *domain.Contact
	for i := range candidates {
		c := &candidates[i]
		if city != "" && c.City != "" && !strings.EqualFold(strings.TrimSpace(c.City), strings.TrimSpace(city)) {
			continue
		}
		have := NormalizeCompany(c.CompanyName)
		if have == "" {
			continue
		}
		switch {
		case have == want:
			if exact == nil || c.ID < exact.ID {
				exact = c
			}
		case strings.Contains(have, want) || strings.Contains(want, have):
			if partial == nil || c.ID < partial.ID {
				partial = c
			}
		}
	}
	if exact != nil {
		return exact, true
	}
	if partial != nil {
		return partial, true
	}
	return nil, false
}
