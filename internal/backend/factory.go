package backend

import (
	"context"
	"errors"
	"fmt"

	"cambista/internal/amqp"
	"cambista/internal/api"
	applog "cambista/internal/log"
	"cambista/internal/middleware/trace"
	"cambista/internal/repository"
	"cambista/internal/sheets"
	gsheet "cambista/internal/sheets/google"
	sheetsmem "cambista/internal/sheets/memory"
	"cambista/internal/storage"
	storemem "cambista/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// Create implements Factory.Create. On failure everything built so far is
// closed again.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (res *Result, err error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var cleanups []func() error
	cleanup := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = cleanup()
		}
	}()

	store, closeStore, err := f.createStore(config)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		cleanups = append(cleanups, closeStore)
	}

	apiLogger := f.logger.WithComponent(applog.ComponentAPI)
	httpClient := api.NewHTTPClient(config.APITimeout)
	httpClient.Transport = trace.NewTransport(httpClient.Transport, apiLogger)
	client := api.NewClient(config.APIBaseURL, httpClient,
		repository.TokenSource(store),
		api.WithLogger(apiLogger))

	opts := []repository.Option{
		repository.WithPersistTransactions(config.PersistTransactions),
		repository.WithMemoryTTL(config.MemoryTTL),
		repository.WithLogger(f.logger.WithComponent(applog.ComponentRepository)),
	}

	// Initialize AMQP client (optional)
	var publisher *amqp.Client
	if config.AMQPURL != "" {
		publisher, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
			publisher, err = nil, nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			cleanups = append(cleanups, publisher.Close)
			opts = append(opts, repository.WithPublisher(publisher))
		}
	}

	exporter, err := f.createExporter(ctx, config)
	if err != nil {
		return nil, err
	}

	repo := repository.New(client, store, opts...)

	f.logger.Info("Initialized backend",
		"store", config.Store,
		"export", config.Export,
		"amqp_enabled", publisher != nil,
		"persist_transactions", config.PersistTransactions)

	return &Result{
		Store:      store,
		API:        client,
		Publisher:  publisher,
		Repository: repo,
		Exporter:   exporter,
		Cleanup:    cleanup,
	}, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, func() error, error) {
	switch config.Store {
	case SQLiteStore:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return store, store.Close, nil
	case MemoryStore:
		f.logger.Info("Initialized memory store")
		return storemem.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store type: %s", config.Store)
	}
}

func (f *DefaultFactory) createExporter(ctx context.Context, config Config) (sheets.ReportWriter, error) {
	switch config.Export {
	case "", NoExport:
		return nil, nil
	case MemoryExport:
		f.logger.Info("Initialized memory report exporter")
		return sheetsmem.New(), nil
	case SheetsExport:
		cli, err := gsheet.NewWithServiceAccount(ctx, config.GoogleSpreadsheetID, config.GoogleReportSheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets exporter")
		return cli, nil
	default:
		return nil, fmt.Errorf("unsupported export type: %s", config.Export)
	}
}
