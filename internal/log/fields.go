package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorKind   = "error_kind"
	FieldOperation   = "operation"
	FieldExpenseID   = "expense_id"
	FieldActorID     = "actor_id"
	FieldActorRole   = "actor_role"
	FieldOwnerID     = "owner_id"
	FieldCategoryID  = "category_id"
	FieldAmount      = "amount"
	FieldCurrency    = "currency"
	FieldAction      = "action"
	FieldStatusFrom  = "status_from"
	FieldStatusTo    = "status_to"
	FieldBudgetType  = "budget_type"
	FieldWindow      = "window"
	FieldPeriod      = "period"
	FieldBudgetLimit = "budget_limit"
	FieldTotalBefore = "total_before"
	FieldTotalAfter  = "total_after"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentExpense  = "expense"
	ComponentWorkflow = "workflow"
	ComponentBudget   = "budget"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentLedger   = "ledger"
	ComponentCache    = "cache"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpApprove  = "approve"
	OpReject   = "reject"
	OpValidate = "validate"
	OpPublish  = "publish"
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

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
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

// WithExpense adds expense identity fields
func (f LogFields) WithExpense(id, ownerID, categoryID int64, amount, currency string) LogFields {
	f[FieldExpenseID] = id
	f[FieldOwnerID] = ownerID
	f[FieldCategoryID] = categoryID
	f[FieldAmount] = amount
	f[FieldCurrency] = currency
	return f
}

// WithActor adds the acting user
func (f LogFields) WithActor(id int64, role string) LogFields {
	f[FieldActorID] = id
	f[FieldActorRole] = role
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
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
