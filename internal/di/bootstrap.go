package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/platform/config"
	"github.com/hanko-field/orderengine/internal/platform/events"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/platform/observability"
	"github.com/hanko-field/orderengine/internal/repositories"
	repofirestore "github.com/hanko-field/orderengine/internal/repositories/firestore"
	"github.com/hanko-field/orderengine/internal/repositories/postgres"
)

const probeTimeout = 2 * time.Second

// Bootstrap opens the clients cfg names (Firestore, optionally Postgres and Pub/Sub, Stripe) and
// assembles a Container on top of them. Everything opened here is released by Container.Close,
// or immediately when assembly fails.
func Bootstrap(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var cleanups []func(context.Context) error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cerr := cleanups[i](context.Background()); cerr != nil {
				logger.Warn("bootstrap cleanup failed", zap.Error(cerr))
			}
		}
	}()

	provider := pfirestore.NewProvider(cfg.Firestore)
	cleanups = append(cleanups, provider.Close)
	if _, err := provider.Client(ctx); err != nil {
		return nil, fmt.Errorf("initialise firestore client: %w", err)
	}

	opts := []Option{
		WithLogger(logger),
		WithHealthChecks(repositories.DependencyCheck{Name: "firestore", Timeout: probeTimeout, Check: provider.Ping}),
	}

	var regOpts []repofirestore.RegistryOption
	if cfg.TaxRates.Backend == config.TaxRateBackendPostgres {
		pool, err := postgres.Open(ctx, cfg.TaxRates.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open tax rate database: %w", err)
		}
		closePool := func(context.Context) error {
			pool.Close()
			return nil
		}
		cleanups = append(cleanups, closePool)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate tax rate database: %w", err)
		}
		rates, err := postgres.NewTaxRateRepository(pool)
		if err != nil {
			return nil, err
		}
		zones, err := postgres.NewZoneRepository(pool)
		if err != nil {
			return nil, err
		}
		regOpts = append(regOpts, repofirestore.WithTaxData(rates, zones))
		opts = append(opts,
			WithCloser(closePool),
			WithHealthChecks(repositories.DependencyCheck{Name: "postgres", Timeout: probeTimeout, Check: pool.Ping}),
		)
		logger.Info("tax rates served from postgres")
	}

	reg, err := repofirestore.NewRegistry(provider, regOpts...)
	if err != nil {
		return nil, err
	}

	if topicName := strings.TrimSpace(cfg.PubSub.Topic); topicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, pubsubClientOptions(cfg.PubSub)...)
		if err != nil {
			return nil, fmt.Errorf("initialise pubsub client: %w", err)
		}
		topic := client.Topic(topicName)
		closeTopic := func(context.Context) error {
			topic.Stop()
			return client.Close()
		}
		cleanups = append(cleanups, closeTopic)
		publisher, err := events.NewPubSubPublisher(topic)
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			WithEventPublisher(publisher),
			WithCloser(closeTopic),
			WithHealthChecks(repositories.DependencyCheck{Name: "pubsub", Timeout: probeTimeout, Check: topicCheck(topic)}),
		)
	} else {
		logger.Info("transition events disabled: no pubsub topic configured")
	}

	if apiKey := strings.TrimSpace(cfg.Stripe.APIKey); apiKey != "" {
		stripeHandler, err := payments.NewStripeHandler(payments.StripeHandlerConfig{
			APIKey:    apiKey,
			AccountID: cfg.Stripe.AccountID,
			Logger:    payments.StripeLogger(observability.EventLogger(logger.Named("stripe"))),
		})
		if err != nil {
			return nil, fmt.Errorf("initialise stripe handler: %w", err)
		}
		opts = append(opts, WithPaymentHandlers(stripeHandler))
	}

	store, err := idempotencyStore(cfg.Idempotency, provider)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithIdempotencyStore(store))

	container, err := NewContainer(ctx, cfg, reg, opts...)
	if err != nil {
		return nil, err
	}
	return container, nil
}

func idempotencyStore(cfg config.IdempotencyConfig, provider *pfirestore.Provider) (idempotency.Store, error) {
	switch cfg.Store {
	case config.IdempotencyStoreMemory:
		return idempotency.NewMemoryStore(), nil
	case config.IdempotencyStoreFirestore, "":
		store, err := idempotency.NewFirestoreStore(provider)
		if err != nil {
			return nil, fmt.Errorf("initialise idempotency store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", cfg.Store)
	}
}

func pubsubClientOptions(cfg config.PubSubConfig) []option.ClientOption {
	host := strings.TrimSpace(cfg.EmulatorHost)
	if host == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithEndpoint(host),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

type topicExister interface {
	Exists(ctx context.Context) (bool, error)
}

var errTopicMissing = errors.New("pubsub: topic does not exist")

func topicCheck(topic topicExister) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errTopicMissing
		}
		return nil
	}
}
