package model

// Finding represents a single audit finding.
type Finding struct {
	// Type is the finding type identifier, a key of findingInfoMapping.
	Type string `json:"type"`

	// Severity is the risk level.
	Severity Severity `json:"severity"`

	// SeverityText is the human-readable severity.
	SeverityText string `json:"severity_text"`

	// Title is a short description of the finding.
	Title string `json:"title"`

	// Impact explains why the finding matters.
	Impact string `json:"impact,omitempty"`

	// Recommendation provides guidance on how to address the finding.
	Recommendation string `json:"recommendation,omitempty"`

	// Value is the metadata value found.
	Value string `json:"value,omitempty"`

	// Location is the Output Tree relative file the value was found in.
	Location string `json:"location,omitempty"`
}

// NewFinding builds a Finding with severity, impact and recommendation
// filled in from the finding type.
func NewFinding(findingType, title, value, location string) Finding {
	info := GetFindingInfo(findingType)
	return Finding{
		Type:           findingType,
		Severity:       info.Severity,
		SeverityText:   info.Severity.String(),
		Title:          title,
		Impact:         info.Impact,
		Recommendation: info.Recommendation,
		Value:          value,
		Location:       location,
	}
}
