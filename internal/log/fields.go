package log

import (
	"errors"

	"smartbudget/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldExpenseID     = "expense_id"
	FieldCategory      = "category"
	FieldAmount        = "amount"
	FieldAlertID       = "alert_id"
	FieldAlertType     = "alert_type"
	FieldPriority      = "priority"
	FieldDedupKey      = "dedup_key"
	FieldPercentUsed   = "percent_used"
	FieldSeverity      = "severity"
	FieldAnomalies     = "anomalies"
	FieldSkipped       = "skipped_categories"
	FieldAlertsCreated = "alerts_created"

	FieldCategoryShifts     = "category_shifts"
	FieldFrequencyAnomalies = "frequency_anomalies"
)

// Components defines standard component names
const (
	ComponentHTTP      = "http"
	ComponentExpense   = "expense"
	ComponentAlert     = "alert"
	ComponentEvaluator = "evaluator"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentSecurity  = "security"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpEvaluate = "evaluate"
	OpSweep    = "sweep"
	OpExport   = "export"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation  = "validation_error"
	ErrorTypeUnavailable = "data_unavailable"
	ErrorTypeTimeout     = "timeout_error"
	ErrorTypeNotFound    = "not_found_error"
	ErrorTypeInternal    = "internal_error"
)

// ErrorType classifies err into one of the ErrorType constants.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case core.IsTimeout(err):
		return ErrorTypeTimeout
	case errors.Is(err, core.ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, core.ErrDataUnavailable):
		return ErrorTypeUnavailable
	default:
		return ErrorTypeInternal
	}
}

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

// WithError adds the error message and its classification
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = ErrorType(err)
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the user id
func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(e core.ExpenseRecord) LogFields {
	f[FieldExpenseID] = e.ID
	f[FieldUserID] = e.UserID
	f[FieldCategory] = e.Category
	f[FieldAmount] = e.Amount.String()
	return f
}

// WithAlert adds alert-related fields
func (f LogFields) WithAlert(a core.AlertRecord) LogFields {
	f[FieldAlertID] = a.ID
	f[FieldUserID] = a.UserID
	f[FieldAlertType] = string(a.AlertType)
	f[FieldPriority] = string(a.Priority)
	f[FieldDedupKey] = a.DedupKey
	return f
}

// WithResult summarises an evaluation outcome
func (f LogFields) WithResult(r core.AnomalyResult) LogFields {
	f[FieldPercentUsed] = r.BudgetStatus.PercentUsed.String()
	f[FieldSeverity] = string(r.BudgetStatus.Severity)
	f[FieldAnomalies] = len(r.AmountAnomalies)
	f[FieldCategoryShifts] = len(r.CategoryShifts)
	f[FieldFrequencyAnomalies] = len(r.FrequencyAnomalies)
	f[FieldSkipped] = len(r.Skipped)
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
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
