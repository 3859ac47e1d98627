package config

import (
	"errors"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// HierarchyPolicy holds the tunables operators may change without a restart.
type HierarchyPolicy struct {
	InvitationExpirationDays int     `mapstructure:"invitationExpirationDays"`
	InvitationsPerMinute     float64 `mapstructure:"invitationsPerMinute"`
	InvitationBurst          int     `mapstructure:"invitationBurst"`
}

// DefaultHierarchyPolicy derives the policy from environment configuration.
func DefaultHierarchyPolicy(cfg Config) HierarchyPolicy {
	return HierarchyPolicy{
		InvitationExpirationDays: cfg.Hierarchy.InvitationExpirationDays,
		InvitationsPerMinute:     cfg.RateLimit.InvitationsPerMinute,
		InvitationBurst:          cfg.RateLimit.InvitationBurst,
	}
}

var defaultPolicyPaths = []string{
	"/var/lib/marketplace/config",
	"/etc/marketplace",
	".",
}

type PolicyHolder struct {
	current atomic.Value // HierarchyPolicy
}

// NewPolicyHolder reads hierarchy.yml from the default locations.
func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	return LoadPolicy(cfg, log, defaultPolicyPaths...)
}

// LoadPolicy reads the "hierarchy" key of hierarchy.yml found in paths and
// watches the file for changes. Without a file the environment defaults apply.
func LoadPolicy(cfg Config, log *zap.Logger, paths ...string) (*PolicyHolder, error) {
	log = log.Named("config.policy")
	defaults := DefaultHierarchyPolicy(cfg)

	v := viper.New()
	v.SetConfigName("hierarchy")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.SetDefault("hierarchy.invitationExpirationDays", defaults.InvitationExpirationDays)
	v.SetDefault("hierarchy.invitationsPerMinute", defaults.InvitationsPerMinute)
	v.SetDefault("hierarchy.invitationBurst", defaults.InvitationBurst)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	var policy HierarchyPolicy
	if err := v.UnmarshalKey("hierarchy", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if found {
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated HierarchyPolicy
			if err := v.UnmarshalKey("hierarchy", &updated); err != nil {
				log.Warn("policy reload failed", zap.Error(err))
				return
			}
			if err := validatePolicy(updated); err != nil {
				log.Warn("invalid policy ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("policy reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
		log.Info("policy loaded", zap.String("file", v.ConfigFileUsed()))
	}

	return holder, nil
}

func (h *PolicyHolder) Get() HierarchyPolicy {
	return h.current.Load().(HierarchyPolicy)
}

// StaticPolicy wraps a fixed policy, mostly for tests.
func StaticPolicy(policy HierarchyPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validatePolicy(p HierarchyPolicy) error {
	if p.InvitationExpirationDays <= 0 {
		return errors.New("hierarchy.invitationExpirationDays must be positive")
	}
	if p.InvitationsPerMinute > 0 && p.InvitationBurst <= 0 {
		return errors.New("hierarchy.invitationBurst must be positive when rate limiting is on")
	}
	return nil
}
