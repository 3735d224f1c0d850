package config

import "time"

type Config interface {
	FetchInterval() time.Duration
	FetchTimeout() time.Duration
	FetchHost() string
	FetchPort() int
	InsecureTLS() bool
	MaxCount() int
	Account() string

	APSSID() string
	APPassword() string
	Interface() string
	PortalAddr() string
	DNSAddr() string
	RestartPortalOnFailure() bool

	CredentialStore() string
	MQTTBroker() string
	MQTTTopic() string
	AllowNonRootAccess() bool

	SetFetchInterval(time.Duration)
	SetAccount(string)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
