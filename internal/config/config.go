package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	JWT struct {
		SigningKey string `yaml:"signing_key"`
	} `yaml:"jwt"`
	Stripe struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		SuccessURL    string `yaml:"success_url"`
		CancelURL     string `yaml:"cancel_url"`
	} `yaml:"stripe"`
	Chains    map[string]ChainConfig `yaml:"chains"`
	ChainFeed struct {
		// HMAC key for transfer-activity deliveries. Empty disables the
		// signature check.
		SigningKey string `yaml:"signing_key"`
	} `yaml:"chainfeed"`
	Wallet struct {
		// Pre-provisioned receiving addresses per chain, consumed lazily as
		// (user, chain, asset) triples request one. HD derivation is out of
		// scope for this deployment.
		AddressPool map[string][]string `yaml:"address_pool"`
	} `yaml:"wallet"`
}

type ChainConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

const defaultConfigPath = "config/config.yaml"

// LoadConfig reads the yaml config file and applies environment overrides
// for the values that differ per deployment.
func LoadConfig() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.JWT.SigningKey = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("CHAINFEED_SIGNING_KEY"); v != "" {
		cfg.ChainFeed.SigningKey = v
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return Config{}, fmt.Errorf("database url is required")
	}
	return cfg, nil
}
