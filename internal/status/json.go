package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Paddle        PaddleJSON   `json:"paddle"`
	Keyer         KeyerJSON    `json:"keyer"`
	Source        SourceJSON   `json:"source"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PaddleJSON is the debounced contact state.
type PaddleJSON struct {
	Dit string `json:"dit"`
	Dah string `json:"dah"`
}

// KeyerJSON is the engine state.
type KeyerJSON struct {
	State   string `json:"state"`
	KeyDown bool   `json:"key_down"`
	WPM     int    `json:"wpm"`
	Mode    string `json:"mode"`
}

// SourceJSON is the paddle source state.
type SourceJSON struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	LastError string `json:"last_error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of engine counters.
type CountsJSON struct {
	Dits           int `json:"dits"`
	Dahs           int `json:"dahs"`
	WatchdogResets int `json:"watchdog_resets"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Source      string `json:"source"`
	PollMs      int64  `json:"poll_ms"`
	Debounce    int    `json:"debounce_reads"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker,omitempty"`
	HTTPAddr    string `json:"http_addr,omitempty"`
}

func contact(closed bool) string {
	if closed {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Paddle: PaddleJSON{Dit: contact(snap.Dit), Dah: contact(snap.Dah)},
		Keyer: KeyerJSON{
			State:   snap.KeyerState.String(),
			KeyDown: snap.KeyDown,
			WPM:     snap.WPM,
			Mode:    snap.Mode.String(),
		},
		Source: SourceJSON{
			Name:      snap.Source.Name,
			Connected: snap.Source.Connected,
			LastError: snap.Source.LastError,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Dits:           snap.Counts.Dits,
			Dahs:           snap.Counts.Dahs,
			WatchdogResets: snap.Counts.WatchdogResets,
		},
		Config: ConfigJSON{
			Source:      snap.Config.Source,
			PollMs:      snap.Config.PollMs,
			Debounce:    snap.Config.Debounce,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
