package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	switch environment {
	case "development", "staging":
		prefix = "staging"
	case "test":
		prefix = "test"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

func (kb *KeyBuilder) KeyDecisionResults(decisionID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyDecisionResults, decisionID))
}

func (kb *KeyBuilder) KeyDecisionLock(decisionID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyDecisionLock, decisionID))
}

func (kb *KeyBuilder) KeyDecisionEvents(decisionID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyDecisionEvents, decisionID))
}

func (kb *KeyBuilder) KeySweepLeader() string {
	return kb.BuildKey(KeySweepLeader)
}

// KeyCustom builds a key from an arbitrary pattern
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	return kb.BuildKey(fmt.Sprintf(pattern, args...))
}
