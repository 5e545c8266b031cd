package model

// Severity represents the risk level of an audit finding.
type Severity int

const (
	// SeverityInfo indicates informational findings such as capture timestamps.
	SeverityInfo Severity = iota

	// SeverityLow indicates metadata that narrows down tooling but not people,
	// such as the editing software.
	SeverityLow

	// SeverityMedium indicates metadata that identifies equipment or authors.
	SeverityMedium

	// SeverityHigh indicates metadata that reveals a physical location.
	SeverityHigh
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// FindingInfo contains metadata about a finding type including severity,
// impact description, and remediation recommendation.
type FindingInfo struct {
	Severity       Severity
	Impact         string
	Recommendation string
}

// Finding types reported by the upload audit.
const (
	FindingExifGPS       = "exif_gps"
	FindingExifDevice    = "exif_device"
	FindingExifSerial    = "exif_serial"
	FindingExifAuthor    = "exif_author"
	FindingExifSoftware  = "exif_software"
	FindingExifTimestamp = "exif_timestamp"
)

// findingInfoMapping is the single source of truth for audit risk levels.
var findingInfoMapping = map[string]FindingInfo{
	FindingExifGPS: {
		Severity:       SeverityHigh,
		Impact:         "GPS coordinates in a published image reveal where the photo was taken.",
		Recommendation: "Strip location metadata from uploads before they are published.",
	},
	FindingExifSerial: {
		Severity:       SeverityMedium,
		Impact:         "A camera or lens serial number ties the image to a specific device.",
		Recommendation: "Strip EXIF metadata from uploads before they are published.",
	},
	FindingExifAuthor: {
		Severity:       SeverityMedium,
		Impact:         "Artist or copyright tags name the person who produced the image.",
		Recommendation: "Review whether the author should be named in the public mirror.",
	},
	FindingExifDevice: {
		Severity:       SeverityMedium,
		Impact:         "Camera make and model identify the equipment used.",
		Recommendation: "Strip EXIF metadata from uploads before they are published.",
	},
	FindingExifSoftware: {
		Severity:       SeverityLow,
		Impact:         "Software tags reveal the editing tools or host computer.",
		Recommendation: "Export images without application metadata.",
	},
	FindingExifTimestamp: {
		Severity:       SeverityInfo,
		Impact:         "Capture timestamps reveal when the image was taken.",
		Recommendation: "Remove timestamps if the capture time is sensitive.",
	},
}

// GetSeverity returns the severity level for a finding type.
// Returns SeverityInfo if the finding type is not in the mapping.
func GetSeverity(findingType string) Severity {
	if info, ok := findingInfoMapping[findingType]; ok {
		return info.Severity
	}
	return SeverityInfo
}

// GetFindingInfo returns the full finding information for a finding type.
// Returns a default FindingInfo with SeverityInfo if the type is not in the mapping.
func GetFindingInfo(findingType string) FindingInfo {
	if info, ok := findingInfoMapping[findingType]; ok {
		return info
	}
	return FindingInfo{
		Severity:       SeverityInfo,
		Impact:         "Unknown finding type. Review manually.",
		Recommendation: "Investigate the finding and assess risk.",
	}
}
