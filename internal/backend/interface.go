package backend

import (
	"context"
	"time"

	"cambista/internal/amqp"
	"cambista/internal/api"
	"cambista/internal/report"
	"cambista/internal/repository"
	"cambista/internal/sheets"
	"cambista/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds every wired component. Publisher and Exporter are nil when
// not configured.
type Result struct {
	Store      storage.Store
	API        *api.Client
	Publisher  *amqp.Client
	Repository *repository.Repository
	Exporter   sheets.ReportWriter
	Cleanup    CleanupFunc
}

// Factory builds the component graph from configuration.
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Store               StoreType
	SQLiteDBPath        string
	PersistTransactions bool
	MemoryTTL           time.Duration

	APIBaseURL string
	APITimeout time.Duration

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	Export                ExportType
	GoogleSpreadsheetID   string
	GoogleReportSheetName string

	Report report.Options
}

// StoreType selects the persisted tier.
type StoreType string

const (
	SQLiteStore StoreType = "sqlite"
	MemoryStore StoreType = "memory"
)

// String implements fmt.Stringer
func (st StoreType) String() string {
	return string(st)
}

// IsValid returns true if the store type is valid
func (st StoreType) IsValid() bool {
	switch st {
	case SQLiteStore, MemoryStore:
		return true
	default:
		return false
	}
}

// ExportType selects where monthly reports go.
type ExportType string

const (
	NoExport     ExportType = "none"
	MemoryExport ExportType = "memory"
	SheetsExport ExportType = "sheets"
)

func (et ExportType) String() string {
	return string(et)
}

func (et ExportType) IsValid() bool {
	switch et {
	case NoExport, MemoryExport, SheetsExport:
		return true
	default:
		return false
	}
}
