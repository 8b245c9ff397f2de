package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Service
	FieldService = "service"
	FieldStation = "station_id"

	// Scanner
	FieldCameraID  = "camera_id"
	FieldSessionID = "session_id"
	FieldState     = "state"
	FieldScanID    = "scan_id"
	FieldClientID  = "client_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
