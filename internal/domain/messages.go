package domain

// WebSocket message types from client.
const (
	MsgTypeSelectCamera = "select_camera"
	MsgTypeToggleTorch  = "toggle_torch"
	MsgTypePing         = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeState       = "state"
	MsgTypeScan        = "scan"
	MsgTypeTorchResult = "torch_result"
	MsgTypeError       = "error"
	MsgTypePong        = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// SelectCameraMessage is sent when the operator picks a camera.
type SelectCameraMessage struct {
	Type     string `json:"type"`
	CameraID string `json:"camera_id"`
}

// Server -> Client messages

// StateMessage carries a full state snapshot.
type StateMessage struct {
	Type  string       `json:"type"`
	State ScannerState `json:"state"`
}

// ScanMessage is pushed for every decoded-text event.
type ScanMessage struct {
	Type   string     `json:"type"`
	Result ScanResult `json:"result"`
}

// TorchResultMessage answers a toggle_torch request.
type TorchResultMessage struct {
	Type   string      `json:"type"`
	Result TorchResult `json:"result"`
}

// ErrorMessage is sent when a client request cannot be served.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewStateMessage wraps a snapshot for the wire.
func NewStateMessage(state ScannerState) *StateMessage {
	return &StateMessage{Type: MsgTypeState, State: state}
}

// NewScanMessage wraps a scan result for the wire.
func NewScanMessage(result ScanResult) *ScanMessage {
	return &ScanMessage{Type: MsgTypeScan, Result: result}
}

// NewErrorMessage creates a new error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
