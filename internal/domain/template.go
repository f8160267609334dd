package domain

// Template is keyed by (tier, industry_code, name). The engine consults
// templates but never mutates them.
type Template struct {
	Tier         Tier   `json:"tier" yaml:"tier"`
	IndustryCode string `json:"industry_code" yaml:"industry_code"`
	Name         string `json:"name" yaml:"name"`
	Subject      string `json:"subject" yaml:"subject"`
	Body         string `json:"body" yaml:"body"`
}

// Template names used by the engine.
const (
	TemplateInitial  = "initial"
	TemplateFollowUp = "followup"
)
