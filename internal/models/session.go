package models

import "time"

// DeviceInfo is the parsed device posture for a login attempt. Fields
// absent from the user agent default to "Unknown"/desktop.
type DeviceInfo struct {
	UserAgent string `json:"user_agent"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	IsMobile  bool   `json:"is_mobile"`
	IsDesktop bool   `json:"is_desktop"`
}

// LocationInfo is the resolved caller location. City/Country are empty
// when the lookup failed or timed out; the core treats that as
// "location unknown", never as an error.
type LocationInfo struct {
	IP      string `json:"ip"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

func (l LocationInfo) Resolved() bool {
	return l.City != "" && l.Country != ""
}

// Session binds an issued bearer token to an identity, device and
// network origin. Sessions are deactivated, never deleted.
type Session struct {
	IdentityID string       `db:"identity_id" json:"identity_id"`
	Token      string       `db:"token" json:"-"`
	LoginTime  time.Time    `db:"login_time" json:"login_time"`
	ExpiresAt  time.Time    `db:"expires_at" json:"expires_at"`
	IsActive   bool         `db:"is_active" json:"is_active"`
	IP         string       `db:"ip" json:"ip"`
	Location   LocationInfo `db:"location" json:"location"`
	Device     DeviceInfo   `db:"device" json:"device"`
}
