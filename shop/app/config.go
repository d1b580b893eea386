package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/cardshop/core/config"
	coredatabase "github.com/m3rciful/cardshop/core/database"
	"github.com/m3rciful/cardshop/core/telegram/state"
	"github.com/m3rciful/cardshop/shop/model"
)

// Storage and session backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// StorageConfig selects where users, catalog and orders live.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
}

// SessionConfig selects the conversation state store.
type SessionConfig struct {
	Backend       string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTLSeconds    int    `yaml:"ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// TTL returns the idle timeout.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// FulfillmentConfig bounds inventory claims.
type FulfillmentConfig struct {
	TimeoutMS int `yaml:"timeout_ms" envconfig:"FULFILLMENT_TIMEOUT_MS"`
}

// ShopConfig holds presentation settings.
type ShopConfig struct {
	Name         string `yaml:"name"`
	HistoryLimit int    `yaml:"history_limit"`
}

// CategorySeed is one catalog entry loaded at startup.
type CategorySeed struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	ProductName      string   `yaml:"product_name"`
	Description      string   `yaml:"description"`
	Price            string   `yaml:"price"`
	DeliveryType     string   `yaml:"delivery_type"`
	RedemptionMethod string   `yaml:"redemption_method"`
	Terms            string   `yaml:"terms"`
	Active           *bool    `yaml:"active"`
	Codes            []string `yaml:"codes"`
}

// Category converts the seed into a catalog entry.
func (s CategorySeed) Category() (model.Category, error) {
	price, err := model.ParseMoney(s.Price)
	if err != nil {
		return model.Category{}, fmt.Errorf("catalog %q: price: %w", s.ID, err)
	}
	c := model.Category{
		ID:               strings.TrimSpace(s.ID),
		Name:             strings.TrimSpace(s.Name),
		ProductName:      s.ProductName,
		Description:      s.Description,
		Price:            price,
		DeliveryType:     model.DeliveryType(strings.ToLower(strings.TrimSpace(s.DeliveryType))),
		RedemptionMethod: s.RedemptionMethod,
		Terms:            s.Terms,
		Active:           s.Active == nil || *s.Active,
	}
	if c.ID == "" || c.Name == "" {
		return model.Category{}, fmt.Errorf("catalog entry needs id and name")
	}
	if !c.DeliveryType.Valid() {
		return model.Category{}, fmt.Errorf("catalog %q: unknown delivery_type %q", s.ID, s.DeliveryType)
	}
	if len(s.Codes) > 0 && c.DeliveryType != model.DeliveryCode {
		return model.Category{}, fmt.Errorf("catalog %q: codes are only allowed for code delivery", s.ID)
	}
	return c, nil
}

// Config is the full process configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database    coredatabase.Config `yaml:"database"`
	Storage     StorageConfig       `yaml:"storage"`
	Session     SessionConfig       `yaml:"session"`
	Fulfillment FulfillmentConfig   `yaml:"fulfillment"`
	Shop        ShopConfig          `yaml:"shop"`
	Catalog     []CategorySeed      `yaml:"catalog"`
}

// CoreConfig exposes the embedded framework configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, applies env overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Load(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the shop sections and fills defaults.
func Normalize(cfg *Config) error {
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = BackendPostgres
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be %s or %s, got %q", BackendPostgres, BackendMemory, cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == BackendPostgres {
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres storage")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
	}

	cfg.Session.Backend = strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	switch cfg.Session.Backend {
	case "":
		cfg.Session.Backend = BackendMemory
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(cfg.Session.RedisAddr) == "" {
			return fmt.Errorf("session.redis_addr is required for redis sessions")
		}
	default:
		return fmt.Errorf("session.backend must be %s or %s, got %q", BackendMemory, BackendRedis, cfg.Session.Backend)
	}
	if cfg.Session.TTLSeconds <= 0 {
		cfg.Session.TTLSeconds = int(state.DefaultTTL / time.Second)
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = "cardshop:session"
	}

	if cfg.Fulfillment.TimeoutMS <= 0 {
		cfg.Fulfillment.TimeoutMS = 3000
	}
	if cfg.Shop.Name == "" {
		cfg.Shop.Name = "Card Shop"
	}
	if cfg.Shop.HistoryLimit <= 0 {
		cfg.Shop.HistoryLimit = 10
	}

	seen := make(map[string]struct{}, len(cfg.Catalog))
	for _, seed := range cfg.Catalog {
		c, err := seed.Category()
		if err != nil {
			return err
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("catalog %q is listed twice", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
