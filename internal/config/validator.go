package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rohankatakam/bugrouter/internal/errors"
	"github.com/rohankatakam/bugrouter/internal/logging"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextIngest - ingest requires storage and, for GitHub feeds, a token
	ValidationContextIngest ValidationContext = "ingest"
	// ValidationContextAssign - assign requires scoring, availability and storage
	ValidationContextAssign ValidationContext = "assign"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Err returns the result as a config error, or nil when valid
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigErrorf("%s", vr.Error())
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateLogging(result)

	switch ctx {
	case ValidationContextIngest:
		c.validateOwnership(result)
		c.validateStorage(result)
		c.validateGraph(result)
	case ValidationContextAssign:
		c.validateOwnership(result)
		c.validateComplexity(result)
		c.validateAvailability(result)
		c.validateAssignment(result)
		c.validateStorage(result)
	case ValidationContextAll:
		c.validateOwnership(result)
		c.validateComplexity(result)
		c.validateAvailability(result)
		c.validateAssignment(result)
		c.validateStorage(result)
		c.validateGitHub(result)
		c.validateGraph(result)
	}

	return result
}

func (c *Config) validateOwnership(result *ValidationResult) {
	if c.Ownership.DecayHalfLifeDays <= 0 {
		result.AddError("decay_half_life_days must be positive (got %v)", c.Ownership.DecayHalfLifeDays)
	}
	if c.Ownership.StaleWindowDays <= 0 {
		result.AddError("stale_window_days must be positive (got %v)", c.Ownership.StaleWindowDays)
	}
	if c.Ownership.DeletionCoefficient <= 0 || c.Ownership.DeletionCoefficient > 1 {
		result.AddError("deletion_coefficient must be in (0, 1] (got %v)", c.Ownership.DeletionCoefficient)
	}
}

func (c *Config) validateComplexity(result *ValidationResult) {
	cc := c.Complexity
	for name, w := range map[string]float64{
		"complexity_weight_size":    cc.WeightSize,
		"complexity_weight_churn":   cc.WeightChurn,
		"complexity_weight_authors": cc.WeightAuthors,
	} {
		if w < 0 {
			result.AddError("%s must not be negative (got %v)", name, w)
		}
	}
	if cc.WeightSize+cc.WeightChurn+cc.WeightAuthors <= 0 {
		result.AddError("complexity weights must not all be zero")
	}
	if cc.SizeCapLines <= 0 || cc.ChurnCapPerDay <= 0 || cc.AuthorCap <= 0 {
		result.AddError("complexity caps must be positive")
	}
	if cc.MinScore < 0 || cc.MinScore > 3 {
		result.AddError("complexity min_score must be in [0, 3] (got %v)", cc.MinScore)
	}
	if cc.MinScore == 0 {
		result.AddWarning("complexity min_score is 0; owners of files with no measurable complexity will not be ranked")
	}
}

func (c *Config) validateAvailability(result *ValidationResult) {
	if c.Availability.MaxCapacityDefault <= 0 {
		result.AddError("max_capacity_default must be positive (got %d)", c.Availability.MaxCapacityDefault)
	}
	switch c.Availability.Backend {
	case "storage":
	case "memory":
		result.AddWarning("availability.backend memory keeps workload for a single command; use storage or redis")
	case "redis":
		if c.Availability.RedisAddr == "" {
			result.AddError("availability.redis_addr is required for the redis backend")
		}
	default:
		result.AddError("unknown availability backend %q (expected storage, redis or memory)", c.Availability.Backend)
	}

	seen := make(map[string]bool)
	for _, e := range c.Availability.Engineers {
		if e.ID == "" {
			result.AddError("availability.engineers entry has no id")
			continue
		}
		if seen[e.ID] {
			result.AddWarning("engineer %s is listed more than once", e.ID)
		}
		seen[e.ID] = true
		if e.Capacity < 0 {
			result.AddError("engineer %s has negative capacity", e.ID)
		}
	}
}

func (c *Config) validateAssignment(result *ValidationResult) {
	if c.Assignment.EscalationTarget == "" {
		result.AddError("escalation_target is required")
	}
	if c.Assignment.AvailabilityTimeout <= 0 {
		result.AddError("assignment.availability_timeout must be positive")
	}
	if c.Assignment.MaxBackups < 0 {
		result.AddError("assignment.max_backups must not be negative")
	}
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("POSTGRES_DSN is required for postgres storage")
		} else if _, err := url.Parse(c.Storage.PostgresDSN); err != nil {
			result.AddError("POSTGRES_DSN is invalid: %v", err)
		}
	default:
		result.AddError("unknown storage type %q (expected sqlite or postgres)", c.Storage.Type)
	}
}

func (c *Config) validateGitHub(result *ValidationResult) {
	if c.GitHub.Token == "" {
		result.AddWarning("GITHUB_TOKEN is not set; GitHub ingestion is unavailable")
	}
	if c.GitHub.RateLimit <= 0 {
		result.AddError("github.rate_limit must be positive")
	}
}

func (c *Config) validateLogging(result *ValidationResult) {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		result.AddError("logging.level: %v", err)
	}
	if c.Logging.File != "" && strings.HasSuffix(c.Logging.File, string(filepath.Separator)) {
		result.AddError("logging.file must name a file, not a directory (got %s)", c.Logging.File)
	}
}

func (c *Config) validateGraph(result *ValidationResult) {
	if !c.Graph.Enabled() {
		return
	}
	if _, err := url.Parse(c.Graph.URI); err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
	}
	if c.Graph.Password == "" {
		result.AddWarning("NEO4J_PASSWORD is not set")
	}
}
