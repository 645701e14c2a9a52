package status

import (
	"github.com/caarlos0/env/v11"
)

// NetworkInfo holds host network details exported by the Pi helper
// (written to /run/pi-helper.env and loaded into the service environment).
type NetworkInfo struct {
	Type       string `env:"NETWORK_TYPE"`
	IP         string `env:"NETWORK_IP"`
	Status     string `env:"NETWORK_STATUS"`
	Gateway    string `env:"NETWORK_GATEWAY"`
	WifiStatus string `env:"NETWORK_WIFI_STATUS"`
	SSID       string `env:"NETWORK_WIFI_SSID"`
}

// ReadNetworkInfo parses NetworkInfo from the environment. It returns nil
// when the helper has not written a status.
func ReadNetworkInfo() *NetworkInfo {
	info, err := env.ParseAs[NetworkInfo]()
	if err != nil || info.Status == "" {
		return nil
	}
	return &info
}

// SetNetwork sets the current network info. nil clears it.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info == nil {
		t.snap.Network = nil
		return
	}
	cp := *info
	t.snap.Network = &cp
}
