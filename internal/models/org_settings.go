package models

import "encoding/json"

// HeaderKV is one custom header an organization wants appended to AI
// requests. Values may carry secrets and are treated as sensitive by
// the HTTP layer.
type HeaderKV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PromptTemplate is a named AI prompt template. Text may contain the
// {{json_input}} and {{content}} placeholders, both replaced with the
// rolling context serialized as JSON at render time.
type PromptTemplate struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// OrgSettings holds per-organization endpoint and credential overrides.
// All fields are optional; the config resolver falls through to process
// env when a field is absent. The worker treats the row as read-only,
// and a missing row is represented by a nil *OrgSettings.
type OrgSettings struct {
	OrgID           string          `db:"org_id" json:"org_id"`
	AIEndpoint      *string         `db:"ai_endpoint" json:"ai_endpoint,omitempty"`
	AIKey           *string         `db:"ai_key" json:"ai_key,omitempty"`
	AICustomHeaders json.RawMessage `db:"ai_custom_headers" json:"ai_custom_headers,omitempty"`
	OCREndpoint     *string         `db:"ocr_endpoint" json:"ocr_endpoint,omitempty"`
	OCRKey          *string         `db:"ocr_key" json:"ocr_key,omitempty"`
	PromptTemplates json.RawMessage `db:"prompt_templates" json:"prompt_templates,omitempty"`
}

// CustomHeaders decodes the stored header list. A nil receiver, absent
// column, or malformed JSON yields an empty list.
func (s *OrgSettings) CustomHeaders() []HeaderKV {
	if s == nil || len(s.AICustomHeaders) == 0 {
		return nil
	}
	var headers []HeaderKV
	if err := json.Unmarshal(s.AICustomHeaders, &headers); err != nil {
		return nil
	}
	return headers
}

// Template looks up a prompt template by name.
func (s *OrgSettings) Template(name string) (PromptTemplate, bool) {
	if s == nil || name == "" || len(s.PromptTemplates) == 0 {
		return PromptTemplate{}, false
	}
	var templates []PromptTemplate
	if err := json.Unmarshal(s.PromptTemplates, &templates); err != nil {
		return PromptTemplate{}, false
	}
	for _, t := range templates {
		if t.Name == name {
			return t, true
		}
	}
	return PromptTemplate{}, false
}
