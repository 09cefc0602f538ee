package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hanko-field/orderengine/internal/domain"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 20 * time.Second
	defaultChannelCode     = "default"
	defaultCacheTTL        = 5 * time.Minute
	defaultEventsTopic     = "order-events"
	defaultLogLevel        = "info"
	defaultEnvironment     = "local"
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultInvalidateLimit = 10
	defaultInvalidateSpan  = time.Minute

	// IdempotencyStoreFirestore persists idempotency records in Firestore.
	IdempotencyStoreFirestore = "firestore"
	// IdempotencyStoreMemory keeps idempotency records in process memory.
	IdempotencyStoreMemory = "memory"

	// TaxRateBackendFirestore reads tax rates and zones from Firestore.
	TaxRateBackendFirestore = "firestore"
	// TaxRateBackendPostgres reads tax rates and zones from a Postgres database.
	TaxRateBackendPostgres = "postgres"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Stripe      StripeConfig
	Channel     ChannelConfig
	Cache       CacheConfig
	TaxRates    TaxRateConfig
	Orders      OrderConfig
	Idempotency IdempotencyConfig
	Admin       AdminConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig selects the minimum log level (debug, info, warn, error).
type LogConfig struct {
	Level string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig selects the topic transition events are published to. An empty topic disables
// publishing.
type PubSubConfig struct {
	ProjectID    string
	Topic        string
	EmulatorHost string
}

// StripeConfig holds the Stripe credentials; APIKey is usually a secret reference.
type StripeConfig struct {
	APIKey    string
	AccountID string
}

// ChannelConfig describes the single sales channel this instance prices for.
type ChannelConfig struct {
	Code             string
	CurrencyCode     string
	PricesIncludeTax bool
	DefaultTaxZoneID string
}

// Domain converts the channel settings to the domain type used by pricing.
func (c ChannelConfig) Domain() domain.Channel {
	return domain.Channel{
		Code:             c.Code,
		CurrencyCode:     c.CurrencyCode,
		PricesIncludeTax: c.PricesIncludeTax,
		DefaultTaxZoneID: c.DefaultTaxZoneID,
	}
}

// CacheConfig controls the reference data snapshots.
type CacheConfig struct {
	TTL time.Duration
}

// TaxRateConfig selects where tax rates and zones are read from.
type TaxRateConfig struct {
	Backend     string
	DatabaseURL string
}

// OrderConfig holds order lifecycle extensions. ExtraTransitions is read from TransitionsFile and
// only ever adds transitions to the built-in table.
type OrderConfig struct {
	TransitionsFile  string
	ExtraTransitions map[string][]string
}

// IdempotencyConfig controls replay protection of payment endpoints.
type IdempotencyConfig struct {
	Store    string
	TTL      time.Duration
	Required bool
}

// AdminConfig bounds how often a single actor may invalidate reference data caches.
type AdminConfig struct {
	InvalidateLimit  int
	InvalidateWindow time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the engine configuration by combining defaults, .env overrides, environment
// variables, explicit maps and Secret Manager lookups, in increasing precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "ENGINE_SERVER_PORT", defaultPort),
			Environment:     stringWithDefault(lookup, "ENGINE_ENVIRONMENT", defaultEnvironment),
			ReadTimeout:     durationWithDefault(lookup, "ENGINE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "ENGINE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "ENGINE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "ENGINE_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Log: LogConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "ENGINE_LOG_LEVEL", defaultLogLevel)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "ENGINE_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "ENGINE_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "ENGINE_PUBSUB_PROJECT_ID", ""),
			Topic:        stringWithDefault(lookup, "ENGINE_PUBSUB_TOPIC", defaultEventsTopic),
			EmulatorHost: stringWithDefault(lookup, "ENGINE_PUBSUB_EMULATOR_HOST", ""),
		},
		Stripe: StripeConfig{
			APIKey:    stringWithDefault(lookup, "ENGINE_STRIPE_API_KEY", ""),
			AccountID: stringWithDefault(lookup, "ENGINE_STRIPE_ACCOUNT_ID", ""),
		},
		Channel: ChannelConfig{
			Code:             stringWithDefault(lookup, "ENGINE_CHANNEL_CODE", defaultChannelCode),
			CurrencyCode:     stringWithDefault(lookup, "ENGINE_CHANNEL_CURRENCY", ""),
			PricesIncludeTax: boolWithDefault(lookup, "ENGINE_CHANNEL_PRICES_INCLUDE_TAX", false),
			DefaultTaxZoneID: stringWithDefault(lookup, "ENGINE_CHANNEL_DEFAULT_TAX_ZONE", ""),
		},
		Cache: CacheConfig{
			TTL: durationWithDefault(lookup, "ENGINE_CACHE_TTL", defaultCacheTTL),
		},
		TaxRates: TaxRateConfig{
			Backend:     strings.ToLower(stringWithDefault(lookup, "ENGINE_TAX_RATE_BACKEND", TaxRateBackendFirestore)),
			DatabaseURL: stringWithDefault(lookup, "ENGINE_DATABASE_URL", ""),
		},
		Orders: OrderConfig{
			TransitionsFile: stringWithDefault(lookup, "ENGINE_ORDER_TRANSITIONS_FILE", ""),
		},
		Idempotency: IdempotencyConfig{
			Store:    strings.ToLower(stringWithDefault(lookup, "ENGINE_IDEMPOTENCY_STORE", IdempotencyStoreFirestore)),
			TTL:      durationWithDefault(lookup, "ENGINE_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			Required: boolWithDefault(lookup, "ENGINE_IDEMPOTENCY_REQUIRED", false),
		},
		Admin: AdminConfig{
			InvalidateLimit:  intWithDefault(lookup, "ENGINE_ADMIN_INVALIDATE_LIMIT", defaultInvalidateLimit),
			InvalidateWindow: durationWithDefault(lookup, "ENGINE_ADMIN_INVALIDATE_WINDOW", defaultInvalidateSpan),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if currency := strings.TrimSpace(cfg.Channel.CurrencyCode); currency != "" {
		if normalized, err := domain.NormalizeCurrency(currency); err == nil {
			cfg.Channel.CurrencyCode = normalized
		}
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
		{"TaxRates.DatabaseURL", &cfg.TaxRates.DatabaseURL},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}

	if path := strings.TrimSpace(cfg.Orders.TransitionsFile); path != "" {
		extra, err := LoadTransitionsFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Orders.ExtraTransitions = extra
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// transitionsFile is the YAML layout of ENGINE_ORDER_TRANSITIONS_FILE:
//
//	transitions:
//	  Cancelled: [AddingItems]
type transitionsFile struct {
	Transitions map[string][]string `yaml:"transitions"`
}

// LoadTransitionsFile reads additional order transitions from a YAML file.
func LoadTransitionsFile(path string) (map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read transitions file %s: %w", path, err)
	}
	var parsed transitionsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse transitions file %s: %w", path, err)
	}
	out := make(map[string][]string, len(parsed.Transitions))
	for from, targets := range parsed.Transitions {
		from = strings.TrimSpace(from)
		if from == "" {
			continue
		}
		cleaned := make([]string, 0, len(targets))
		for _, target := range targets {
			if target = strings.TrimSpace(target); target != "" {
				cleaned = append(cleaned, target)
			}
		}
		out[from] = cleaned
	}
	return out, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if strings.TrimSpace(cfg.Channel.Code) == "" {
		missing = append(missing, "Channel.Code")
	}
	if _, err := domain.NormalizeCurrency(cfg.Channel.CurrencyCode); err != nil {
		missing = append(missing, "Channel.CurrencyCode")
	}
	if strings.TrimSpace(cfg.Channel.DefaultTaxZoneID) == "" {
		missing = append(missing, "Channel.DefaultTaxZoneID")
	}
	if cfg.Cache.TTL < 0 {
		missing = append(missing, "Cache.TTL")
	}
	switch cfg.TaxRates.Backend {
	case TaxRateBackendFirestore:
	case TaxRateBackendPostgres:
		if strings.TrimSpace(cfg.TaxRates.DatabaseURL) == "" {
			missing = append(missing, "TaxRates.DatabaseURL")
		}
	default:
		missing = append(missing, "TaxRates.Backend")
	}
	switch cfg.Idempotency.Store {
	case IdempotencyStoreFirestore, IdempotencyStoreMemory:
	default:
		missing = append(missing, "Idempotency.Store")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Admin.InvalidateLimit < 0 {
		missing = append(missing, "Admin.InvalidateLimit")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return fallback
}
