package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scadenze/internal/amqp"
	"scadenze/internal/cache"
	"scadenze/internal/log"
	"scadenze/internal/rates"
	"scadenze/internal/services"
	"scadenze/internal/storage"
	"scadenze/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the configured storage and wires the services on top of it. The
// returned Cleanup releases everything that was opened.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var table *rates.Table
	if config.RatesFile != "" {
		t, err := rates.Load(config.RatesFile)
		if err != nil {
			return nil, fmt.Errorf("load rates: %w", err)
		}
		if config.BaseUnit != "" && t.Base() != config.BaseUnit {
			return nil, fmt.Errorf("rates file base %s does not match base unit %s", t.Base(), config.BaseUnit)
		}
		table = t
		f.logger.Info("Loaded rate table", "path", config.RatesFile, "base", t.Base())
	}

	var repo Backend
	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo = sqliteRepo
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		repo = memory.New()
		f.logger.Warn("Initialized memory backend; data is lost on exit")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	// Initialize AMQP client (optional)
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		c, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			amqpClient = c
			f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		}
	}

	reportCache := cache.NewLRUCache[any](config.CacheSize, config.CacheTTL)
	manager := cache.NewManager()
	manager.Register(reportCache)
	manager.StartCleanup(config.CacheTTL)

	reports := services.NewReportService(repo, reportCache, config.Reports)
	opts := services.Options{
		BaseUnit: config.BaseUnit,
		Reports:  reports,
		Logger:   f.logger,
	}
	// Interfaces stay nil unless the collaborator exists.
	if table != nil {
		opts.Rates = table
	}
	if amqpClient != nil {
		opts.Publisher = amqpClient
	}
	commitments := services.NewCommitmentService(repo, opts)

	cleanup := func() error {
		manager.Stop()
		var errs []error
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close amqp client: %w", err))
			}
		}
		if err := repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
		return errors.Join(errs...)
	}

	f.logger.Info("Backend ready",
		"backend", config.Type.String(),
		"base_unit", strings.ToUpper(config.BaseUnit),
		"events_enabled", amqpClient != nil,
		"rates_loaded", table != nil)

	return &BackendResult{
		Backend:     repo,
		Commitments: commitments,
		Reports:     reports,
		Cache:       reportCache,
		Cleanup:     cleanup,
	}, nil
}
