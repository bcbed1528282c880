package models

import "strings"

// SanitizeKeySegment escapes the ':' delimiter so a user-controlled identifier
// such as "user:admin" cannot spill into an adjacent key segment.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewBucketKey builds "rl:<policy>:<identity>" with a normalized identity.
func NewBucketKey(policy Policy, identity string) string {
	return "rl:" + string(policy) + ":" + SanitizeKeySegment(NormalizeIdentity(identity))
}

// NormalizeIdentity lowercases and trims identities so "Jane@X.com " and
// "jane@x.com" share a bucket.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// LockoutKey identifies a credential under lockout policy.
type LockoutKey struct {
	Scope      string
	Identifier string
}

// NewLockoutKey scopes an identifier, e.g. ("verify:login", subjectID).
func NewLockoutKey(scope, identifier string) LockoutKey {
	return LockoutKey{Scope: scope, Identifier: identifier}
}

func (k LockoutKey) String() string {
	return "lockout:" + SanitizeKeySegment(k.Scope) + ":" + SanitizeKeySegment(NormalizeIdentity(k.Identifier))
}
