package pubsub

import "fmt"

// Channel naming conventions for scanner stations.
const (
	// Scanner -> Dashboard channel
	ChannelScannerToDashboard = "scanner:station:%s:to_dashboard"
)

// Event types for Scanner -> Dashboard communication.
const (
	EventScanDecoded   = "scan_decoded"
	EventStationOnline = "station_online"
	EventStationClosed = "station_closed"
)

// ScannerToDashboardChannel returns the channel name for a station's events.
func ScannerToDashboardChannel(stationID string) string {
	return fmt.Sprintf(ChannelScannerToDashboard, stationID)
}

// ScanDecodedPayload is sent for every decoded code.
type ScanDecodedPayload struct {
	ScanID    string `json:"scan_id"`
	Text      string `json:"text"`
	CameraID  string `json:"camera_id"`
	SessionID string `json:"session_id"`
}

// StationPayload is sent when a station comes online or shuts down.
type StationPayload struct {
	StationID string `json:"station_id"`
	Cameras   int    `json:"cameras"`
}
