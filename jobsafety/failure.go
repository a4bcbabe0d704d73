package jobsafety

import (
	"regexp"
	"strings"
)

// FailureCategory is a tagged classification of a job failure
type FailureCategory string

const (
	// Retryable categories
	FailureNetwork        FailureCategory = "network_error"
	FailureTimeout        FailureCategory = "timeout"
	FailureRateLimit      FailureCategory = "rate_limit"
	FailureLockContention FailureCategory = "lock_contention"
	FailureTemporary      FailureCategory = "temporary_error"

	// Non-retryable categories
	FailureValidation    FailureCategory = "validation_error"
	FailureLogic         FailureCategory = "logic_error"
	FailureNotFound      FailureCategory = "not_found"
	FailurePermission    FailureCategory = "permission_error"
	FailureConfiguration FailureCategory = "configuration_error"

	// FailureUnknown is the default when no rule matches; treated as
	// non-retryable so unclassified failures surface for manual review
	FailureUnknown FailureCategory = "unknown"
)

// Retryable reports whether this category may be retried automatically
func (c FailureCategory) Retryable() bool {
	switch c {
	case FailureNetwork, FailureTimeout, FailureRateLimit, FailureLockContention, FailureTemporary:
		return true
	default:
		return false
	}
}

// patternRule maps a message pattern to a failure category
type patternRule struct {
	pattern  *regexp.Regexp
	category FailureCategory
}

// FailureClassifier maps failure codes and messages to categories using an
// explicit, ordered rule set: exact code match first, then message patterns,
// then default to unknown (non-retryable).
type FailureClassifier struct {
	exactCodes map[string]FailureCategory
	patterns   []patternRule
}

// NewFailureClassifier creates a classifier with the built-in rule set
func NewFailureClassifier() *FailureClassifier {
	return &FailureClassifier{
		exactCodes: map[string]FailureCategory{
			"network_error":       FailureNetwork,
			"timeout":             FailureTimeout,
			"rate_limit":          FailureRateLimit,
			"lock_contention":     FailureLockContention,
			"temporary_error":     FailureTemporary,
			"validation_error":    FailureValidation,
			"logic_error":         FailureLogic,
			"not_found":           FailureNotFound,
			"permission_error":    FailurePermission,
			"configuration_error": FailureConfiguration,
			"429":                 FailureRateLimit,
			"502":                 FailureTemporary,
			"503":                 FailureTemporary,
			"504":                 FailureTemporary,
			"400":                 FailureValidation,
			"401":                 FailurePermission,
			"403":                 FailurePermission,
			"404":                 FailureNotFound,
		},
		patterns: []patternRule{
			{regexp.MustCompile(`(?i)connection (refused|reset|closed)|no such host|broken pipe|EOF`), FailureNetwork},
			{regexp.MustCompile(`(?i)timed? ?out|deadline exceeded`), FailureTimeout},
			{regexp.MustCompile(`(?i)rate limit|too many requests`), FailureRateLimit},
			{regexp.MustCompile(`(?i)lock(ed)?( contention)?|try again later`), FailureLockContention},
			{regexp.MustCompile(`(?i)temporarily unavailable|service unavailable|bad gateway`), FailureTemporary},
			{regexp.MustCompile(`(?i)validation|invalid|bad request|malformed`), FailureValidation},
			{regexp.MustCompile(`(?i)nil pointer|index out of range|assertion`), FailureLogic},
			{regexp.MustCompile(`(?i)not found|does not exist`), FailureNotFound},
			{regexp.MustCompile(`(?i)permission|forbidden|unauthorized|denied`), FailurePermission},
			{regexp.MustCompile(`(?i)misconfigured|configuration`), FailureConfiguration},
		},
	}
}

// Classify resolves a failure code and message to a category. Rules are
// evaluated in order; the first match wins.
func (c *FailureClassifier) Classify(code, message string) FailureCategory {
	if code != "" {
		if category, ok := c.exactCodes[strings.ToLower(strings.TrimSpace(code))]; ok {
			return category
		}
	}

	for _, rule := range c.patterns {
		if rule.pattern.MatchString(message) {
			return rule.category
		}
	}

	return FailureUnknown
}

// AddExactCode registers a custom exact-code rule
func (c *FailureClassifier) AddExactCode(code string, category FailureCategory) {
	c.exactCodes[strings.ToLower(code)] = category
}

// AddPattern appends a custom message-pattern rule, evaluated after the
// built-in patterns
func (c *FailureClassifier) AddPattern(pattern *regexp.Regexp, category FailureCategory) {
	c.patterns = append(c.patterns, patternRule{pattern: pattern, category: category})
}
