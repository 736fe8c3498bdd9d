package status

// NetworkFromEnv reads the host network state that the pi-helper service
// exports as NETWORK_* variables (sourced from /run/pi-helper.env by the
// unit file). It returns nil until pi-helper has reported a status.
// getenv is normally os.Getenv.
func NetworkFromEnv(getenv func(string) string) *NetworkInfo {
	info := &NetworkInfo{Status: getenv("NETWORK_STATUS")}
	if info.Status == "" {
		return nil
	}
	for key, field := range map[string]*string{
		"NETWORK_TYPE":        &info.Type,
		"NETWORK_IP":          &info.IP,
		"NETWORK_GATEWAY":     &info.Gateway,
		"NETWORK_WIFI_STATUS": &info.WifiStatus,
		"NETWORK_WIFI_SSID":   &info.SSID,
	} {
		*field = getenv(key)
	}
	return info
}

// RefreshNetwork replaces the network info when the environment reports
// one and keeps the previous value otherwise.
func (t *Tracker) RefreshNetwork(getenv func(string) string) {
	if info := NetworkFromEnv(getenv); info != nil {
		t.SetNetwork(info)
	}
}
