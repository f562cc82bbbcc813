package graph

import (
	"context"
	"time"
)

// TransactionConfig defines timeout and metadata for an operation
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTransactionConfigs returns configs per operation type
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		// Ownership edge upserts, one batch per call
		"ownership_sync": {
			Timeout: 2 * time.Minute,
			Metadata: map[string]any{
				"operation": "ownership_sync",
				"type":      "write",
			},
		},

		// Owner lookups for a single file
		"owner_query": {
			Timeout: 15 * time.Second,
			Metadata: map[string]any{
				"operation": "owner_query",
				"type":      "read",
			},
		},

		"index_creation": {
			Timeout: 5 * time.Minute,
			Metadata: map[string]any{
				"operation": "index_creation",
				"type":      "schema",
			},
		},

		// Health checks must be fast
		"health_check": {
			Timeout: 5 * time.Second,
			Metadata: map[string]any{
				"operation": "health_check",
				"type":      "read",
			},
		},
	}
}

// GetConfigForOperation retrieves the transaction config for an operation,
// falling back to a 60s default
func GetConfigForOperation(operation string) TransactionConfig {
	if config, ok := DefaultTransactionConfigs()[operation]; ok {
		return config
	}
	return TransactionConfig{
		Timeout: 60 * time.Second,
		Metadata: map[string]any{
			"operation": operation,
			"type":      "unknown",
		},
	}
}

// ExecuteQuery has no per-query timeout, so timeouts ride on the context
func withOperationTimeout(ctx context.Context, operation string) (context.Context, context.CancelFunc) {
	txConfig := GetConfigForOperation(operation)
	if txConfig.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, txConfig.Timeout)
}
