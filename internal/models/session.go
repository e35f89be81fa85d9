package models

import "time"

// Provider identifies a cloud drive.
type Provider string

const (
	ProviderQuark Provider = "quark" // source drive
	ProviderBaidu Provider = "baidu" // destination drive
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderQuark || p == ProviderBaidu
}

// Providers lists all known providers in source-first order.
func Providers() []Provider {
	return []Provider{ProviderQuark, ProviderBaidu}
}

// Session is a per-provider credential snapshot. The token is a
// header-ready cookie string treated as an opaque capability, never parsed.
type Session struct {
	Provider  Provider  `json:"provider"`
	Token     string    `json:"token"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Age returns how long ago the session was fetched.
func (s *Session) Age() time.Duration {
	return time.Since(s.FetchedAt)
}
