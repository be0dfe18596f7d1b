package domain

// Template is a stored prompt template. Read-only to the streaming core;
// the UI's template CRUD screens own the rows.
type Template struct {
	ID               string   `json:"id"`
	FamilyType       string   `json:"familyType,omitempty"`
	TemplateCategory string   `json:"templateCategory"`
	PromptText       string   `json:"promptText"`
	InputFields      []string `json:"inputFields,omitempty"`
	UsageCount       int      `json:"usageCount"`
	Status           string   `json:"status,omitempty"`
}

// TemplateStats is the derived success-rate view for one template slot,
// identified by category plus 1-based index within that category.
type TemplateStats struct {
	TemplateCategory string `json:"templateCategory"`
	TemplateIndex    int    `json:"templateIndex"`
	Sessions         int    `json:"sessions"`
	Succeeded        int    `json:"succeeded"`
	SuccessRate      int    `json:"successRate"` // percent, rounded to nearest
}
