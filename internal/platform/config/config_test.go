package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"ENGINE_FIRESTORE_PROJECT_ID":     "engine-dev",
		"ENGINE_CHANNEL_CURRENCY":         "gbp",
		"ENGINE_CHANNEL_DEFAULT_TAX_ZONE": "uk",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "engine-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.Topic != defaultEventsTopic {
		t.Errorf("unexpected default topic %s", cfg.PubSub.Topic)
	}
	if cfg.Channel.Code != defaultChannelCode {
		t.Errorf("unexpected default channel %s", cfg.Channel.Code)
	}
	if cfg.Channel.CurrencyCode != "GBP" {
		t.Errorf("expected normalised currency GBP, got %s", cfg.Channel.CurrencyCode)
	}
	if cfg.Channel.PricesIncludeTax {
		t.Errorf("expected prices to exclude tax by default")
	}
	if cfg.Cache.TTL != defaultCacheTTL {
		t.Errorf("unexpected cache ttl %s", cfg.Cache.TTL)
	}
	if cfg.TaxRates.Backend != TaxRateBackendFirestore {
		t.Errorf("unexpected tax rate backend %s", cfg.TaxRates.Backend)
	}
	if len(cfg.Orders.ExtraTransitions) != 0 {
		t.Errorf("expected no extra transitions, got %v", cfg.Orders.ExtraTransitions)
	}
	if cfg.Log.Level != defaultLogLevel {
		t.Errorf("unexpected log level %s", cfg.Log.Level)
	}
	if cfg.Idempotency.Store != IdempotencyStoreFirestore || cfg.Idempotency.TTL != defaultIdempotencyTTL || cfg.Idempotency.Required {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
	if cfg.Admin.InvalidateLimit != defaultInvalidateLimit || cfg.Admin.InvalidateWindow != time.Minute {
		t.Errorf("unexpected admin defaults %+v", cfg.Admin)
	}
}

func TestLoadRejectsUnknownIdempotencyStore(t *testing.T) {
	env := baseEnv()
	env["ENGINE_IDEMPOTENCY_STORE"] = "redis"
	env["ENGINE_ADMIN_INVALIDATE_LIMIT"] = "-1"
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := vErr.Fields()
	if len(fields) != 2 || fields[0] != "Idempotency.Store" || fields[1] != "Admin.InvalidateLimit" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := baseEnv()
	for k, v := range map[string]string{
		"ENGINE_SERVER_PORT":                "9090",
		"ENGINE_SERVER_IDLE_TIMEOUT":        "2m",
		"ENGINE_PUBSUB_PROJECT_ID":          "engine-events",
		"ENGINE_PUBSUB_TOPIC":               "transitions",
		"ENGINE_STRIPE_API_KEY":             "secret://stripe/api",
		"ENGINE_STRIPE_ACCOUNT_ID":          "acct_1",
		"ENGINE_CHANNEL_CODE":               "web",
		"ENGINE_CHANNEL_PRICES_INCLUDE_TAX": "yes",
		"ENGINE_CACHE_TTL":                  "30s",
		"ENGINE_TAX_RATE_BACKEND":           "Postgres",
		"ENGINE_DATABASE_URL":               "sm://db/url",
	} {
		env[k] = v
	}

	secrets := map[string]string{
		"secret://stripe/api": "sk_test_123",
		"secret://db/url":     "postgres://engine@localhost/engine",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.PubSub.ProjectID != "engine-events" || cfg.PubSub.Topic != "transitions" {
		t.Errorf("unexpected pubsub config %+v", cfg.PubSub)
	}
	if cfg.Stripe.APIKey != "sk_test_123" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.Stripe.APIKey)
	}
	if cfg.TaxRates.Backend != TaxRateBackendPostgres {
		t.Errorf("expected postgres backend, got %s", cfg.TaxRates.Backend)
	}
	if cfg.TaxRates.DatabaseURL != "postgres://engine@localhost/engine" {
		t.Errorf("expected resolved database url, got %s", cfg.TaxRates.DatabaseURL)
	}
	if !cfg.Channel.PricesIncludeTax {
		t.Errorf("expected tax inclusive prices")
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("unexpected cache ttl %s", cfg.Cache.TTL)
	}
	channel := cfg.Channel.Domain()
	if channel.Code != "web" || channel.CurrencyCode != "GBP" || channel.DefaultTaxZoneID != "uk" {
		t.Errorf("unexpected domain channel %+v", channel)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "ENGINE_SERVER_PORT=7070\nexport ENGINE_FIRESTORE_PROJECT_ID=\"engine-dot\"\nENGINE_CHANNEL_CURRENCY=EUR\nENGINE_CHANNEL_DEFAULT_TAX_ZONE=eu\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "engine-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := map[string]bool{"Firestore.ProjectID": true, "Channel.CurrencyCode": true, "Channel.DefaultTaxZoneID": true}
	for _, field := range validation.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("expected fields %v to be reported, got %v", want, validation.Fields())
	}
}

func TestLoadRejectsUnknownBackendAndMissingDatabaseURL(t *testing.T) {
	env := baseEnv()
	env["ENGINE_TAX_RATE_BACKEND"] = "postgres"
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) || validation.Fields()[0] != "TaxRates.DatabaseURL" {
		t.Fatalf("expected DatabaseURL validation error, got %v", err)
	}

	env["ENGINE_TAX_RATE_BACKEND"] = "mysql"
	_, err = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if !errors.As(err, &validation) || validation.Fields()[0] != "TaxRates.Backend" {
		t.Fatalf("expected Backend validation error, got %v", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["ENGINE_STRIPE_API_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver not configured cause, got %v", secretErr.Err)
	}
}

func TestLoadReadsTransitionsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transitions.yaml")
	content := "transitions:\n  Cancelled: [AddingItems]\n  PaymentSettled:\n    - \" Refunded \"\n    - \"\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write transitions file: %v", err)
	}

	env := baseEnv()
	env["ENGINE_ORDER_TRANSITIONS_FILE"] = path
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	extra := cfg.Orders.ExtraTransitions
	if got := extra["Cancelled"]; len(got) != 1 || got[0] != "AddingItems" {
		t.Fatalf("unexpected Cancelled transitions %v", got)
	}
	if got := extra["PaymentSettled"]; len(got) != 1 || got[0] != "Refunded" {
		t.Fatalf("expected trimmed targets, got %v", got)
	}
}

func TestLoadTransitionsFileErrors(t *testing.T) {
	if _, err := LoadTransitionsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("transitions: [not, a, map"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := LoadTransitionsFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
