// Package factory wires configuration, clients, repositories and
// services, and owns their shutdown order.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/sync/errgroup"

	"recordkeeper-auth/internal/audit"
	"recordkeeper-auth/internal/bucketing"
	"recordkeeper-auth/internal/client"
	"recordkeeper-auth/internal/config"
	"recordkeeper-auth/internal/encryption"
	"recordkeeper-auth/internal/geo"
	"recordkeeper-auth/internal/hashing"
	"recordkeeper-auth/internal/nonce"
	"recordkeeper-auth/internal/repository"
	chrepo "recordkeeper-auth/internal/repository/clickhouse"
	"recordkeeper-auth/internal/repository/memory"
	"recordkeeper-auth/internal/repository/scylla"
	"recordkeeper-auth/internal/risk"
	"recordkeeper-auth/internal/service"
	"recordkeeper-auth/internal/tls"
	"recordkeeper-auth/internal/token"
	"recordkeeper-auth/internal/util"
)

// Factory manages the lifecycle of all application dependencies. In
// development any unreachable external store falls back to its
// in-memory implementation; in production a failed client is fatal.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager
	tokenManager      *token.Manager
	riskEngine        *risk.Engine
	resolver          geo.Resolver
	nonceStore        nonce.Store

	identityStore repository.IdentityStore
	sessionStore  repository.SessionStore
	auditStore    repository.AuditStore

	recorder   *audit.Recorder
	dispatcher *audit.Dispatcher
	sweeper    *audit.Sweeper

	sessionService *service.SessionService
	authService    *service.AuthService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes every dependency.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeStores()
	factory.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("scylla_backed", factory.scyllaClient != nil),
		util.Bool("clickhouse_backed", factory.clickhouseClient != nil),
	)

	return factory, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			f.redisClient = nil
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		util.Info("ScyllaDB client initialized and healthy")
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config); err != nil {
			util.Warn("Elasticsearch initialization failed - proceeding without search index", util.ErrorField(err))
		} else {
			f.esClient = esClient
		}
	}

	if chClient, err := client.NewClickHouseClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning, using in-memory fallback", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	f.encryptionManager = encryption.NewManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewManager(f.config)
	f.tokenManager = token.NewManager(f.config.JWT.Secret, f.config.JWT.ExpiresIn)
	f.riskEngine = risk.NewEngine(f.config.Risk.MFAThreshold, f.config.Risk.HighRiskCountries)
	f.resolver = geo.NewHTTPResolver(f.config.Geo.BaseURL, f.config.Geo.Timeout)

	if f.redisClient != nil {
		f.nonceStore = nonce.NewRedisStore(f.redisClient, f.config.Nonce.TTL)
	} else {
		f.nonceStore = nonce.NewMemoryStore(f.config.Nonce.TTL)
	}

	return nil
}

func (f *Factory) initializeStores() {
	if f.scyllaClient != nil {
		f.identityStore = scylla.NewIdentityRepository(f.scyllaClient, f.bucketingManager)
		f.sessionStore = scylla.NewSessionRepository(f.scyllaClient)
	} else {
		f.identityStore = memory.NewIdentityStore()
		f.sessionStore = memory.NewSessionStore()
	}

	if f.clickhouseClient != nil {
		f.auditStore = chrepo.NewAuditRepository(f.clickhouseClient, f.bucketingManager)
	} else {
		f.auditStore = memory.NewAuditStore()
	}
}

func (f *Factory) initializeServices() {
	f.recorder = audit.NewRecorder(f.encryptionManager, f.config.Audit.Retention)
	f.dispatcher = audit.NewDispatcher(f.auditStore, audit.DispatcherOptions{
		BufferSize: f.config.Audit.BufferSize,
		KafkaTopic: f.config.Kafka.Topic,
		ESIndex:    f.config.Elasticsearch.Index,
		Producer:   f.kafkaProducer,
		Search:     f.esClient,
	})
	f.sweeper = audit.NewSweeper(f.auditStore, time.Hour)
	f.sweeper.Start()

	f.sessionService = service.NewSessionService(f.sessionStore, f.resolver, f.config.JWT.ExpiresIn)
	f.authService = service.NewAuthService(
		f.identityStore,
		f.sessionService,
		f.nonceStore,
		f.riskEngine,
		f.tokenManager,
		f.hasher,
		f.recorder,
		f.dispatcher,
	)
}

// HealthCheck probes the external stores in parallel.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		healthErrors[name] = err
	}

	g, ctx := errgroup.WithContext(ctx)

	if f.redisClient != nil {
		g.Go(func() error {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				record("redis", err)
			}
			return nil
		})
	}
	if f.scyllaClient != nil {
		g.Go(func() error {
			if err := f.scyllaClient.HealthCheck(); err != nil {
				record("scylla", err)
			}
			return nil
		})
	}
	if f.clickhouseClient != nil {
		g.Go(func() error {
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				record("clickhouse", err)
			}
			return nil
		})
	}
	if f.esClient != nil {
		g.Go(func() error {
			if err := f.esClient.HealthCheck(); err != nil {
				record("elasticsearch", err)
			}
			return nil
		})
	}
	if f.kafkaProducer != nil {
		g.Go(func() error {
			if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
				record("kafka", err)
			}
			return nil
		})
	}

	g.Wait()
	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	// Kafka is optional fan-out; its failure does not degrade auth.
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// Close shuts everything down: the audit pipeline first so buffered
// entries still reach their store, then the clients.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.sweeper != nil {
			f.sweeper.Stop()
		}
		if f.dispatcher != nil {
			f.dispatcher.Close()
			util.Info("Audit dispatcher drained")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}

func (f *Factory) SessionService() *service.SessionService {
	return f.sessionService
}
