package domain

import "strings"

// Severity is the qualitative risk level attached to a suggestion.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering value of a severity (low < medium < high < critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ParseSeverity normalizes a raw severity string. Unknown or empty values
// default to low so a malformed analysis result never blocks filtering.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// PriorityStatus records the prioritization decision for a suggestion.
type PriorityStatus string

const (
	PriorityStatusPrioritized             PriorityStatus = "prioritized"
	PriorityStatusPrioritizedByClustering PriorityStatus = "prioritized_by_clustering"
	PriorityStatusDiscardedByQuantity     PriorityStatus = "discarded_by_quantity"
	PriorityStatusDiscardedBySeverity     PriorityStatus = "discarded_by_severity"
	PriorityStatusDiscardedByClustering   PriorityStatus = "discarded_by_clustering"
)

// DeliveryStatus records the outcome of posting a suggestion to the platform.
type DeliveryStatus string

const (
	DeliveryStatusNotSent             DeliveryStatus = "not_sent"
	DeliveryStatusSent                DeliveryStatus = "sent"
	DeliveryStatusFailed              DeliveryStatus = "failed"
	DeliveryStatusFailedLinesMismatch DeliveryStatus = "failed_lines_mismatch"
)

// ClusterType marks a suggestion's role inside a cluster of co-located findings.
type ClusterType string

const (
	ClusterTypeParent  ClusterType = "parent"
	ClusterTypeRelated ClusterType = "related"
	ClusterTypeNone    ClusterType = "none"
)

// ClusteringInformation links duplicated or co-located suggestions into one
// logical group: a parent plus zero or more related children.
type ClusteringInformation struct {
	Type                  ClusterType `json:"type"`
	ParentSuggestionID    string      `json:"parentSuggestionId,omitempty"`
	RelatedSuggestionsIDs []string    `json:"relatedSuggestionsIds,omitempty"`
}

// LabelKodyRules is the category for organization-authored custom rule
// suggestions, which carry special exemption semantics in prioritization.
const LabelKodyRules = "kody_rules"

// NormalizeLabel canonicalizes a category label: lowercase with whitespace
// runs collapsed to underscores ("Kody Rules" -> "kody_rules").
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(label))), "_")
}

// CodeSuggestion is one AI- or rule-generated proposed code change tied to a
// file and line range. Content fields are immutable after creation; only the
// classification and delivery fields are mutated by prioritization/delivery.
type CodeSuggestion struct {
	ID string `json:"id"`

	RelevantFile       string `json:"relevantFile"`
	RelevantLinesStart int    `json:"relevantLinesStart"`
	RelevantLinesEnd   int    `json:"relevantLinesEnd"`
	Language           string `json:"language,omitempty"`

	ExistingCode       string `json:"existingCode,omitempty"`
	ImprovedCode       string `json:"improvedCode,omitempty"`
	SuggestionContent  string `json:"suggestionContent"`
	OneSentenceSummary string `json:"oneSentenceSummary,omitempty"`

	Label    string   `json:"label"`
	Severity Severity `json:"severity"`

	RankScore      int            `json:"rankScore,omitempty"`
	PriorityStatus PriorityStatus `json:"priorityStatus,omitempty"`
	DeliveryStatus DeliveryStatus `json:"deliveryStatus,omitempty"`

	ClusteringInformation *ClusteringInformation `json:"clusteringInformation,omitempty"`
}

// IsRelated reports whether the suggestion is a clustering child.
func (s *CodeSuggestion) IsRelated() bool {
	return s.ClusteringInformation != nil && s.ClusteringInformation.Type == ClusterTypeRelated
}

// IsParent reports whether the suggestion is a clustering parent.
func (s *CodeSuggestion) IsParent() bool {
	return s.ClusteringInformation != nil && s.ClusteringInformation.Type == ClusterTypeParent
}

// IsKodyRule reports whether the suggestion carries the kody_rules category,
// using the normalized label form.
func (s *CodeSuggestion) IsKodyRule() bool {
	return NormalizeLabel(s.Label) == LabelKodyRules
}
