package domain

// GroupingMode selects how clustered suggestions are handled during
// prioritization.
type GroupingMode string

const (
	GroupingModeNone  GroupingMode = "none"
	GroupingModeSmart GroupingMode = "smart"
	GroupingModeFull  GroupingMode = "full"
)

// Grouped reports whether clustering-aware behavior is enabled.
func (g GroupingMode) Grouped() bool {
	return g == GroupingModeSmart || g == GroupingModeFull
}

// LimitationType selects the quantity-limiting strategy.
type LimitationType string

const (
	LimitationTypeFile     LimitationType = "file"
	LimitationTypePR       LimitationType = "pr"
	LimitationTypeSeverity LimitationType = "severity"
)

// SeverityLimits caps the number of delivered suggestions per severity
// bucket. Zero means unlimited for that bucket.
type SeverityLimits struct {
	Low      int `json:"low" yaml:"low"`
	Medium   int `json:"medium" yaml:"medium"`
	High     int `json:"high" yaml:"high"`
	Critical int `json:"critical" yaml:"critical"`
}

// For returns the cap for one severity bucket.
func (l SeverityLimits) For(s Severity) int {
	switch s {
	case SeverityCritical:
		return l.Critical
	case SeverityHigh:
		return l.High
	case SeverityMedium:
		return l.Medium
	default:
		return l.Low
	}
}

// SuggestionControlConfig is the per-repository prioritization policy.
type SuggestionControlConfig struct {
	GroupingMode            GroupingMode   `json:"groupingMode" yaml:"grouping_mode"`
	LimitationType          LimitationType `json:"limitationType" yaml:"limitation_type"`
	MaxSuggestions          int            `json:"maxSuggestions" yaml:"max_suggestions"`
	SeverityLimits          SeverityLimits `json:"severityLimits" yaml:"severity_limits"`
	SeverityLevelFilter     Severity       `json:"severityLevelFilter" yaml:"severity_level_filter"`
	ApplyFiltersToKodyRules bool           `json:"applyFiltersToKodyRules" yaml:"apply_filters_to_kody_rules"`
}

// CodeReviewConfig is the resolved review configuration for one repository,
// combining the suggestion policy with the run gates.
type CodeReviewConfig struct {
	SuggestionControl SuggestionControlConfig `json:"suggestionControl" yaml:"suggestion_control"`

	BaseBranchPatterns []string `json:"baseBranchPatterns,omitempty" yaml:"base_branch_patterns"`
	IgnorePaths        []string `json:"ignorePaths,omitempty" yaml:"ignore_paths"`
	ReviewDrafts       bool     `json:"reviewDrafts" yaml:"review_drafts"`
	MaxFiles           int      `json:"maxFiles" yaml:"max_files"`

	Cadence CadenceConfig `json:"cadence" yaml:"cadence"`
}

// CadenceType governs whether an automatic review re-runs on new commits.
type CadenceType string

const (
	CadenceTypeAutomatic CadenceType = "automatic"
	CadenceTypeManual    CadenceType = "manual"
	CadenceTypeAutoPause CadenceType = "auto_pause"
)

// CadenceConfig configures the review cadence gate.
type CadenceConfig struct {
	Type              CadenceType `json:"type" yaml:"type"`
	PushesToTrigger   int         `json:"pushesToTrigger" yaml:"pushes_to_trigger"`
	TimeWindowMinutes int         `json:"timeWindowMinutes" yaml:"time_window_minutes"`
}
