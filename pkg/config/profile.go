package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is an optional YAML overlay applied on top of the env config.
// Deployments that manage settings as files (rather than env vars) point
// STOCKPILOT_PROFILE at one of these.
type Profile struct {
	Port     string `yaml:"port,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`

	Shopify struct {
		ShopDomain  string `yaml:"shop_domain,omitempty"`
		APIVersion  string `yaml:"api_version,omitempty"`
		CallTimeout string `yaml:"call_timeout,omitempty"`
	} `yaml:"shopify"`

	Dedup struct {
		Backend       string `yaml:"backend,omitempty"`
		SweepInterval string `yaml:"sweep_interval,omitempty"`
	} `yaml:"dedup"`

	RateLimit struct {
		RPS   int `yaml:"rps,omitempty"`
		Burst int `yaml:"burst,omitempty"`
	} `yaml:"rate_limit"`
}

// LoadProfile reads a YAML profile and applies its non-zero fields to cfg.
func LoadProfile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load profile %q: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse profile %q: %w", path, err)
	}

	if p.Port != "" {
		cfg.Port = p.Port
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
	if p.Shopify.ShopDomain != "" {
		cfg.ShopDomain = p.Shopify.ShopDomain
	}
	if p.Shopify.APIVersion != "" {
		cfg.APIVersion = p.Shopify.APIVersion
	}
	if p.Shopify.CallTimeout != "" {
		d, err := time.ParseDuration(p.Shopify.CallTimeout)
		if err != nil {
			return fmt.Errorf("profile %q: call_timeout: %w", path, err)
		}
		cfg.CallTimeout = d
	}
	if p.Dedup.Backend != "" {
		cfg.DedupBackend = p.Dedup.Backend
	}
	if p.Dedup.SweepInterval != "" {
		d, err := time.ParseDuration(p.Dedup.SweepInterval)
		if err != nil {
			return fmt.Errorf("profile %q: sweep_interval: %w", path, err)
		}
		cfg.SweepInterval = d
	}
	if p.RateLimit.RPS > 0 {
		cfg.RateLimitRPS = p.RateLimit.RPS
	}
	if p.RateLimit.Burst > 0 {
		cfg.RateLimitBurst = p.RateLimit.Burst
	}

	return nil
}
