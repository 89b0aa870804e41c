package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document store backends
const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
)

// Registry backends for the Lambda relay
const (
	RegistryDynamoDB = "dynamodb"
	RegistryRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// Storage
	DocumentStore    string `yaml:"document_store"`
	RegistryBackend  string `yaml:"registry_backend"`
	AWSRegion        string `yaml:"aws_region"`
	TableName        string `yaml:"table_name"`
	ConnectionsTable string `yaml:"connections_table"`
	DatabaseURL      string `yaml:"database_url"`
	RedisURL         string `yaml:"redis_url"`

	// Messaging
	EventBusName      string `yaml:"event_bus_name"`
	WebSocketEndpoint string `yaml:"websocket_endpoint"`

	// Relay
	RelayRequireAuth bool     `yaml:"relay_require_auth"`
	SendBufferSize   int      `yaml:"send_buffer_size"`
	AllowedOrigins   []string `yaml:"allowed_origins"`

	// Authentication
	JWTSigningMethod string   `yaml:"jwt_signing_method"`
	JWTSecret        string   `yaml:"jwt_secret"`
	JWTPublicKey     string   `yaml:"jwt_public_key"`
	JWTIssuer        string   `yaml:"jwt_issuer"`
	JWTAudience      []string `yaml:"jwt_audience"`
	RateLimitPerMin  int      `yaml:"rate_limit_per_minute"`
	// TrustGatewayAuth accepts identity headers set by an API Gateway
	// authorizer in front of the Lambda deployment
	TrustGatewayAuth bool `yaml:"trust_gateway_auth"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	// Client
	QuietPeriod time.Duration `yaml:"quiet_period"`

	// Logging and features
	LogLevel         string `yaml:"log_level"`
	EnableMetrics    bool   `yaml:"enable_metrics"`
	EnableTracing    bool   `yaml:"enable_tracing"`
	MetricsNamespace string `yaml:"metrics_namespace"`

	// File is the YAML file the configuration was read from, if any
	File string `yaml:"-"`
}

// Defaults returns the development configuration
func Defaults() *Config {
	return &Config{
		ServerAddress:    ":8080",
		Environment:      "development",
		DocumentStore:    StoreMemory,
		RegistryBackend:  RegistryDynamoDB,
		AWSRegion:        "us-west-2",
		TableName:        "mindmaps",
		ConnectionsTable: "mindmap-connections",
		SendBufferSize:   256,
		AllowedOrigins:   []string{"http://localhost:3000"},
		JWTSigningMethod: "HS256",
		JWTIssuer:        "mindmap-auth",
		JWTAudience:      []string{"mindmap-api"},
		RateLimitPerMin:  300,
		QuietPeriod:      time.Second,
		LogLevel:         "info",
		EnableMetrics:    true,
		MetricsNamespace: "MindMap",
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE and environment variables, in increasing precedence
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.File = path
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.DocumentStore = strings.ToLower(getEnv("DOCUMENT_STORE", c.DocumentStore))
	c.RegistryBackend = strings.ToLower(getEnv("REGISTRY_BACKEND", c.RegistryBackend))
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.TableName = getEnv("TABLE_NAME", c.TableName)
	c.ConnectionsTable = getEnv("CONNECTIONS_TABLE", c.ConnectionsTable)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.WebSocketEndpoint = getEnv("WEBSOCKET_ENDPOINT", c.WebSocketEndpoint)

	c.RelayRequireAuth = getEnvBool("RELAY_REQUIRE_AUTH", c.RelayRequireAuth)
	c.SendBufferSize = getEnvInt("SEND_BUFFER_SIZE", c.SendBufferSize)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)

	c.JWTSigningMethod = getEnv("JWT_SIGNING_METHOD", c.JWTSigningMethod)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTPublicKey = getEnv("JWT_PUBLIC_KEY", c.JWTPublicKey)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnvList("JWT_AUDIENCE", c.JWTAudience)
	c.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMin)
	c.TrustGatewayAuth = getEnvBool("TRUST_GATEWAY_AUTH", c.TrustGatewayAuth)
	c.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", c.TrustProxyHeaders)

	c.QuietPeriod = getEnvDuration("QUIET_PERIOD", c.QuietPeriod)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.MetricsNamespace = getEnv("METRICS_NAMESPACE", c.MetricsNamespace)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.DocumentStore {
	case StoreMemory:
	case StoreDynamoDB:
		if c.TableName == "" {
			return fmt.Errorf("TABLE_NAME is required for the dynamodb document store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres document store")
		}
	default:
		return fmt.Errorf("unknown DOCUMENT_STORE %q", c.DocumentStore)
	}

	switch c.RegistryBackend {
	case RegistryDynamoDB, RegistryRedis:
	default:
		return fmt.Errorf("unknown REGISTRY_BACKEND %q", c.RegistryBackend)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be positive")
	}
	if c.QuietPeriod <= 0 {
		return fmt.Errorf("QUIET_PERIOD must be positive")
	}

	if c.IsProduction() {
		if c.JWTSecret == "" && c.JWTPublicKey == "" {
			return fmt.Errorf("JWT_SECRET or JWT_PUBLIC_KEY is required in production")
		}
		if c.DocumentStore == StoreMemory {
			return fmt.Errorf("the memory document store cannot be used in production")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
