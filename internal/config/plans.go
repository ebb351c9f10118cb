package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanCatalog lists the plan keys the mapper accepts and the provider
// spellings that normalize onto them.
type PlanCatalog struct {
	Plans   []string          `mapstructure:"plans"`
	Aliases map[string]string `mapstructure:"aliases"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []string{"starter", "professional", "enterprise", "pilot"},
		Aliases: map[string]string{
			"pro": "professional",
		},
	}
}

// Resolve returns the canonical plan for raw, or false when it is unknown.
func (c PlanCatalog) Resolve(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", false
	}
	if alias, ok := c.Aliases[key]; ok {
		key = alias
	}
	for _, plan := range c.Plans {
		if plan == key {
			return plan, true
		}
	}
	return "", false
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewStaticPlanCatalogHolder returns a holder that never reloads.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(normalizeCatalog(catalog))
	return holder
}

func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/workspacebilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WORKSPACEBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fromFile = false
	}

	cfg := DefaultPlanCatalog()
	if fromFile {
		if err := v.UnmarshalKey("catalog", &cfg); err != nil {
			return nil, err
		}
	}
	cfg = normalizeCatalog(cfg)
	if err := validatePlanCatalog(cfg); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(cfg)

	if !fromFile {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Warn("plan catalog reload failed", zap.Error(err))
			return
		}
		updated = normalizeCatalog(updated)
		if err := validatePlanCatalog(updated); err != nil {
			log.Warn("invalid plan catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func normalizeCatalog(cfg PlanCatalog) PlanCatalog {
	out := PlanCatalog{
		Plans:   make([]string, 0, len(cfg.Plans)),
		Aliases: make(map[string]string, len(cfg.Aliases)),
	}
	for _, plan := range cfg.Plans {
		plan = strings.ToLower(strings.TrimSpace(plan))
		if plan != "" {
			out.Plans = append(out.Plans, plan)
		}
	}
	for alias, target := range cfg.Aliases {
		out.Aliases[strings.ToLower(strings.TrimSpace(alias))] = strings.ToLower(strings.TrimSpace(target))
	}
	return out
}

func validatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	known := make(map[string]struct{}, len(cfg.Plans))
	for _, plan := range cfg.Plans {
		known[plan] = struct{}{}
	}
	for alias, target := range cfg.Aliases {
		if _, ok := known[target]; !ok {
			return fmt.Errorf("catalog.aliases.%s points at unknown plan %q", alias, target)
		}
	}
	return nil
}
