package backend

import (
	"fmt"

	"cambista/internal/config"
	"cambista/internal/report"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Store:               StoreType(appConfig.StoreBackend),
		SQLiteDBPath:        appConfig.SQLiteDBPath,
		PersistTransactions: appConfig.PersistTransactions,
		MemoryTTL:           appConfig.MemoryCacheTTL,

		APIBaseURL: appConfig.APIBaseURL,
		APITimeout: appConfig.APITimeout,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		Export:                ExportType(appConfig.ExportBackend),
		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleReportSheetName: appConfig.GoogleReportSheetName,

		Report: report.Options{CompletedOnly: appConfig.ReportCompletedOnly},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Store.IsValid() {
		return fmt.Errorf("invalid store type: %s", c.Store)
	}
	if c.Store == SQLiteStore && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite store")
	}

	if c.Export == "" {
		c.Export = NoExport
	}
	if !c.Export.IsValid() {
		return fmt.Errorf("invalid export type: %s", c.Export)
	}
	if c.Export == SheetsExport && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets export")
	}
	// AMQP is optional, so we don't validate it
	return nil
}
