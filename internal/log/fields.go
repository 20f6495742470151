package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldDuration  = "duration_ms"
	FieldStatus    = "status_code"
	FieldSuccess   = "success"
	FieldError     = "error"
	FieldKey       = "key"
	FieldCount     = "count"
	FieldForce     = "force"
	FieldSource    = "source"
	FieldEntity    = "entity"
	FieldAction    = "action"
	FieldEntityID  = "entity_id"
	FieldYear      = "year"
	FieldMonth     = "month"
	FieldUserID    = "user_id"
	FieldSheetsRef = "sheets_ref"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentRepository = "repository"
	ComponentAPI        = "api"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentSheets     = "sheets"
	ComponentWorker     = "worker"
	ComponentAgent      = "agent"
	ComponentCache      = "cache"
)

// Where a collection read was served from.
const (
	SourceMemory    = "memory"
	SourcePersisted = "persisted"
	SourceNetwork   = "network"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpLogin    = "login"
	OpLogout   = "logout"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithMutation adds the fields of a repository mutation.
func (f LogFields) WithMutation(entity, action string, id int64) LogFields {
	f[FieldEntity] = entity
	f[FieldAction] = action
	if id != 0 {
		f[FieldEntityID] = id
	}
	return f
}

// WithPeriod adds year and month fields.
func (f LogFields) WithPeriod(year, month int) LogFields {
	f[FieldYear] = year
	f[FieldMonth] = month
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
