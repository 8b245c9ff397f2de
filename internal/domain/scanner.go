package domain

import "time"

// DefaultCameraLabel is shown for devices that report no label.
const DefaultCameraLabel = "Camera"

// CameraDevice is a video-capture device found at startup.
type CameraDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DisplayLabel returns the label, falling back to DefaultCameraLabel.
func (c CameraDevice) DisplayLabel() string {
	if c.Label == "" {
		return DefaultCameraLabel
	}
	return c.Label
}

// ScanResult is the payload of one decoded-text event.
type ScanResult struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CameraID  string    `json:"camera_id"`
	SessionID string    `json:"session_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

// ScannerState is the snapshot a view renders.
type ScannerState struct {
	StationID        string         `json:"station_id"`
	Cameras          []CameraDevice `json:"cameras"`
	SelectedCameraID string         `json:"selected_camera_id"`
	SessionID        string         `json:"session_id,omitempty"`
	State            SessionState   `json:"state"`
	LastResult       *ScanResult    `json:"last_result,omitempty"`
	TorchOn          bool           `json:"torch_on"`
	ScanCount        int64          `json:"scan_count"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s ScannerState) Clone() ScannerState {
	out := s
	out.Cameras = append(make([]CameraDevice, 0, len(s.Cameras)), s.Cameras...)
	if s.LastResult != nil {
		r := *s.LastResult
		out.LastResult = &r
	}
	return out
}

// BestEffort reports the outcome of an operation whose failure degrades
// to a neutral state instead of surfacing.
type BestEffort struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

// Reasons a best-effort operation was not applied.
const (
	ReasonNoSession   = "no_session"
	ReasonUnsupported = "unsupported"
	ReasonFailed      = "failed"
)

// Applied is the successful BestEffort.
func Applied() BestEffort {
	return BestEffort{Applied: true}
}

// NotApplied builds an unapplied BestEffort.
func NotApplied(reason string, err error) BestEffort {
	return BestEffort{Reason: reason, Err: err}
}

// TorchResult is the outcome of a torch toggle.
type TorchResult struct {
	BestEffort
	TorchOn bool `json:"torch_on"`
}
