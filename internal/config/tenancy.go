package config

import (
	"fmt"
	"regexp"
	"time"
)

// TenancyConfig controls how requests are scoped to an organization.
type TenancyConfig struct {
	// SessionKey is the PostgreSQL setting Row-Level-Security policies read
	// through current_setting(). Custom settings need a dotted name.
	SessionKey string `koanf:"session_key" validate:"required"`

	// OrgCacheTTL is how long a resolved (org, role) pair is reused before
	// the membership table is queried again.
	OrgCacheTTL time.Duration `koanf:"org_cache_ttl" validate:"min=0"`

	// MembershipTable holds one row per (user_id, org_id, role).
	MembershipTable string `koanf:"membership_table" validate:"required"`
}

// sessionKeyRe matches "prefix.name" custom setting names.
var sessionKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*$`)

// DefaultTenancyConfig provides the defaults used when no tenancy block is set.
func DefaultTenancyConfig() *TenancyConfig {
	return &TenancyConfig{
		SessionKey:      "app.current_org_id",
		OrgCacheTTL:     5 * time.Minute,
		MembershipTable: "organization_members",
	}
}

func (c *TenancyConfig) withDefaults() *TenancyConfig {
	d := DefaultTenancyConfig()
	if c == nil {
		return d
	}
	if c.SessionKey == "" {
		c.SessionKey = d.SessionKey
	}
	if c.OrgCacheTTL == 0 {
		c.OrgCacheTTL = d.OrgCacheTTL
	}
	if c.MembershipTable == "" {
		c.MembershipTable = d.MembershipTable
	}
	return c
}

// Validate applies rules that go beyond struct tags.
func (c *TenancyConfig) Validate() error {
	if !sessionKeyRe.MatchString(c.SessionKey) {
		return fmt.Errorf("session_key %q must look like prefix.name", c.SessionKey)
	}
	if c.OrgCacheTTL < 0 {
		return fmt.Errorf("org_cache_ttl must be non-negative")
	}
	if c.MembershipTable == "" {
		return fmt.Errorf("membership_table is required")
	}
	return nil
}
