package types

// ------------------------
// Node state (retained on node/state)
// ------------------------

// Level is the lifecycle phase of the node.
type Level string

const (
	LevelBooting    Level = "booting"
	LevelConnecting Level = "connecting"
	LevelPortal     Level = "portal"
	LevelUpdating   Level = "updating"
	LevelRunning    Level = "running"
	LevelRestarting Level = "restarting"
	LevelStopped    Level = "stopped"
)

type NodeState struct {
	Level   Level  `json:"level"`
	Status  string `json:"status"`           // freeform short code
	Version string `json:"version"`          // running firmware version
	Addr    string `json:"addr,omitempty"`   // network address once up
	Remote  string `json:"remote,omitempty"` // remote firmware version seen by the OTA check
	TS      int64  `json:"ts_ns"`            // publish Unix ns
}

// Link is the link/state reported for a sensor.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded" // available but the last read failed
)

// ------------------------
// Sensors (retained on node/sensor/<id>)
// ------------------------

type SensorStatus struct {
	ID    string             `json:"id"`
	Type  string             `json:"type"` // "sht21", "ccs811", "bme280"
	Link  Link               `json:"link"`
	Last  map[string]float64 `json:"last,omitempty"`  // field -> value of the last good read
	Error string             `json:"error,omitempty"` // machine-readable short code
	TS    int64              `json:"ts_ns"`
}

// ------------------------
// Reports (retained on node/report)
// ------------------------

type ReportStatus struct {
	Cycle  uint64             `json:"cycle"`
	Fields map[string]float64 `json:"fields"`
	Sent   bool               `json:"sent"`
	Error  string             `json:"error,omitempty"`
	TS     int64              `json:"ts_ns"`
}
