package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	GitHub struct {
		Token         string `yaml:"token"`
		WebhookSecret string `yaml:"webhookSecret"`
	} `yaml:"github"`

	Security struct {
		// APIKeys maps tenant -> key. Empty disables auth (dev mode).
		APIKeys           map[string]string `yaml:"apiKeys"`
		RateLimitCapacity int               `yaml:"rateLimitCapacity"`
		RateLimitRefill   int               `yaml:"rateLimitRefill"`
	} `yaml:"security"`

	Engine struct {
		Concurrency           int      `yaml:"concurrency"`
		UnitTimeoutSeconds    int      `yaml:"unitTimeoutSeconds"`
		SessionTimeoutSeconds int      `yaml:"sessionTimeoutSeconds"`
		LineTolerance         int      `yaml:"lineTolerance"`
		StoreRetries          int      `yaml:"storeRetries"`
		StoreBackoffMillis    int      `yaml:"storeBackoffMillis"`
		StaticTools           []string `yaml:"staticTools"` // bandit, semgrep, safety
		ContextDocsDir        string   `yaml:"contextDocsDir"`
	} `yaml:"engine"`
}

// Load baca file config.yaml. Secrets may be overridden from env so they
// stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_WEBHOOK_SECRET"); v != "" {
		cfg.GitHub.WebhookSecret = v
	}
	return &cfg, nil
}

// MySQLDSN builds the DSN for the mysql driver.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the DSN for lib/pq.
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}

// UnitTimeout with default.
func (c *Config) UnitTimeout() time.Duration {
	if c.Engine.UnitTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Engine.UnitTimeoutSeconds) * time.Second
}

// SessionTimeout; zero disables the outer bound.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Engine.SessionTimeoutSeconds) * time.Second
}

// StoreBackoff with default.
func (c *Config) StoreBackoff() time.Duration {
	if c.Engine.StoreBackoffMillis <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.Engine.StoreBackoffMillis) * time.Millisecond
}
