package dbk

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/tidwall/jsonc"

	"dbk-go/internal/glob"
	"dbk-go/internal/model"
)

// PathConfig is the override stored for one virtual path. Nil fields are
// unset and inherit from the nearest configured ancestor, then from the
// defaults.
type PathConfig struct {
	Lock           *bool            `json:"lock,omitempty"`
	Hide           *bool            `json:"hide,omitempty"`
	FollowSymlinks *bool            `json:"follow_symlinks,omitempty"`
	Include        []string         `json:"include"`
	Exclude        []string         `json:"exclude"`
	Priority       *int             `json:"priority,omitempty"`
	MaxCopies      *model.MaxCopies `json:"maxcopies,omitempty"`
}

// Config keys accepted by ClearPathConfig.
const (
	KeyLock           = "lock"
	KeyHide           = "hide"
	KeyFollowSymlinks = "follow_symlinks"
	KeyInclude        = "include"
	KeyExclude        = "exclude"
	KeyPriority       = "priority"
	KeyMaxCopies      = "maxcopies"
)

func (c *PathConfig) empty() bool {
	return c.Lock == nil && c.Hide == nil && c.FollowSymlinks == nil &&
		c.Include == nil && c.Exclude == nil && c.Priority == nil && c.MaxCopies == nil
}

// overlay fills the fields of c that are unset from o.
func (c *PathConfig) overlay(o *PathConfig) {
	if c.Lock == nil {
		c.Lock = o.Lock
	}
	if c.Hide == nil {
		c.Hide = o.Hide
	}
	if c.FollowSymlinks == nil {
		c.FollowSymlinks = o.FollowSymlinks
	}
	if c.Include == nil {
		c.Include = o.Include
	}
	if c.Exclude == nil {
		c.Exclude = o.Exclude
	}
	if c.Priority == nil {
		c.Priority = o.Priority
	}
	if c.MaxCopies == nil {
		c.MaxCopies = o.MaxCopies
	}
}

func (c *PathConfig) clear(key string) error {
	switch key {
	case KeyLock:
		c.Lock = nil
	case KeyHide:
		c.Hide = nil
	case KeyFollowSymlinks:
		c.FollowSymlinks = nil
	case KeyInclude:
		c.Include = nil
	case KeyExclude:
		c.Exclude = nil
	case KeyPriority:
		c.Priority = nil
	case KeyMaxCopies:
		c.MaxCopies = nil
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func (c *PathConfig) validate() error {
	if c.Priority != nil && *c.Priority < 0 {
		return fmt.Errorf("priority must not be negative, got %d", *c.Priority)
	}
	for _, patterns := range [][]string{c.Include, c.Exclude} {
		for _, p := range patterns {
			if _, err := path.Match(p, ""); err != nil {
				return fmt.Errorf("invalid pattern %q: %w", p, err)
			}
		}
	}
	return nil
}

// EffectiveConfig is the configuration that applies to a path after
// inheritance and defaults.
type EffectiveConfig struct {
	Lock           bool
	Hide           bool
	FollowSymlinks bool
	Include        []string
	Exclude        []string
	Priority       int
	MaxCopies      model.MaxCopies

	rules *glob.Rules
}

// Excluded reports whether the include/exclude rules drop vp.
func (e *EffectiveConfig) Excluded(vp string) bool {
	return e.rules.Excluded(vp)
}

func effective(c *PathConfig) *EffectiveConfig {
	e := &EffectiveConfig{
		Include:   c.Include,
		Exclude:   c.Exclude,
		MaxCopies: model.Unlimited(),
	}
	if c.Lock != nil {
		e.Lock = *c.Lock
	}
	if c.Hide != nil {
		e.Hide = *c.Hide
	}
	if c.FollowSymlinks != nil {
		e.FollowSymlinks = *c.FollowSymlinks
	}
	if c.Priority != nil {
		e.Priority = *c.Priority
	}
	if c.MaxCopies != nil {
		e.MaxCopies = *c.MaxCopies
	}
	e.rules = glob.NewRules(e.Include, e.Exclude)
	return e
}

func parsePathConfig(raw string) (*PathConfig, error) {
	var c PathConfig
	if err := json.Unmarshal(jsonc.ToJSON([]byte(raw)), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// configResolver answers effective configuration lookups for one operation.
type configResolver struct {
	explicit map[string]*PathConfig
	cache    map[string]*EffectiveConfig
}

func (s *Service) loadConfigs() (*configResolver, error) {
	rows, err := s.database.ListPathConfigs()
	if err != nil {
		return nil, fmt.Errorf("listing path configs: %w", err)
	}
	r := &configResolver{
		explicit: make(map[string]*PathConfig, len(rows)),
		cache:    make(map[string]*EffectiveConfig),
	}
	for _, row := range rows {
		c, err := parsePathConfig(row.Config)
		if err != nil {
			return nil, fmt.Errorf("parsing config of %q: %w", row.VirtualPath, err)
		}
		r.explicit[row.VirtualPath] = c
	}
	return r, nil
}

// Resolve merges the explicit config of vp with those of its ancestors,
// nearest first, over the defaults.
func (r *configResolver) Resolve(vp string) *EffectiveConfig {
	if e, ok := r.cache[vp]; ok {
		return e
	}
	var merged PathConfig
	for p := vp; ; p = parentVirtual(p) {
		if c, ok := r.explicit[p]; ok {
			merged.overlay(c)
		}
		if p == "" {
			break
		}
	}
	e := effective(&merged)
	r.cache[vp] = e
	return e
}

// locked reports whether vp is locked by its own or an inherited override.
func (r *configResolver) locked(vp string) bool {
	return r.Resolve(vp).Lock
}

func parentVirtual(vp string) string {
	dir := path.Dir(vp)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// PathConfigs returns every explicit override keyed by virtual path.
func (s *Service) PathConfigs() (map[string]*PathConfig, error) {
	r, err := s.loadConfigs()
	if err != nil {
		return nil, err
	}
	return r.explicit, nil
}

// EffectivePathConfig returns the configuration that applies to a path.
func (s *Service) EffectivePathConfig(virtualPath string) (*EffectiveConfig, error) {
	r, err := s.loadConfigs()
	if err != nil {
		return nil, err
	}
	return r.Resolve(CleanVirtualPath(virtualPath)), nil
}

// SetPathConfig merges the set fields of cfg into the override stored for
// virtualPath. Fields cfg leaves nil keep their stored value.
func (s *Service) SetPathConfig(virtualPath string, cfg PathConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	vp := CleanVirtualPath(virtualPath)
	r, err := s.loadConfigs()
	if err != nil {
		return err
	}
	if old, ok := r.explicit[vp]; ok {
		cfg.overlay(old)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding path config: %w", err)
	}
	if err := s.database.SetPathConfig(vp, string(data)); err != nil {
		return fmt.Errorf("saving path config: %w", err)
	}
	s.logger.Info("path config set", "virtual_path", vp, "config", string(data))
	return nil
}

// ClearPathConfig removes the given keys from the override of virtualPath,
// or the whole override when no keys are given.
func (s *Service) ClearPathConfig(virtualPath string, keys ...string) error {
	vp := CleanVirtualPath(virtualPath)
	r, err := s.loadConfigs()
	if err != nil {
		return err
	}
	cfg, ok := r.explicit[vp]
	if !ok {
		return nil
	}
	for _, k := range keys {
		if err := cfg.clear(k); err != nil {
			return err
		}
	}
	if len(keys) == 0 || cfg.empty() {
		if err := s.database.DeletePathConfig(vp); err != nil {
			return fmt.Errorf("clearing path config: %w", err)
		}
		s.logger.Info("path config cleared", "virtual_path", vp)
		return nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding path config: %w", err)
	}
	if err := s.database.SetPathConfig(vp, string(data)); err != nil {
		return fmt.Errorf("saving path config: %w", err)
	}
	s.logger.Info("path config keys cleared", "virtual_path", vp, "keys", keys)
	return nil
}
