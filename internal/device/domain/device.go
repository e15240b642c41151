package domain

// Info describes the installation that owns the session. DeviceID is stable per install.
type Info struct {
	DeviceID   string `json:"deviceId"`
	Platform   string `json:"platform"`
	OSVersion  string `json:"osVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	Model      string `json:"model,omitempty"`
}
