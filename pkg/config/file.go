package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/followd/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		FetchInterval: ptr.To("60s"),
		FetchTimeout:  ptr.To("15s"),
		FetchHost:     ptr.To("i.instagram.com"),
		FetchPort:     ptr.To(443),
		// The device never shipped a CA bundle, so verification stays off
		// unless the user opts in.
		InsecureTLS:            ptr.To(true),
		MaxCount:               ptr.To(99999),
		Account:                ptr.To(""),
		APSSID:                 ptr.To("ConfigPortal"),
		APPassword:             ptr.To(""),
		Interface:              ptr.To("wlan0"),
		PortalAddr:             ptr.To(":80"),
		DNSAddr:                ptr.To(":53"),
		RestartPortalOnFailure: ptr.To(false),
		CredentialStore:        ptr.To("/var/lib/followd/prefs.json"),
		MQTTBroker:             ptr.To(""),
		MQTTTopic:              ptr.To("followd/count"),
		AllowNonRootAccess:     ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	FetchInterval          *string `json:"fetchInterval,omitempty" yaml:"fetchInterval,omitempty"`
	FetchTimeout           *string `json:"fetchTimeout,omitempty" yaml:"fetchTimeout,omitempty"`
	FetchHost              *string `json:"fetchHost,omitempty" yaml:"fetchHost,omitempty"`
	FetchPort              *int    `json:"fetchPort,omitempty" yaml:"fetchPort,omitempty"`
	InsecureTLS            *bool   `json:"insecureTLS,omitempty" yaml:"insecureTLS,omitempty"`
	MaxCount               *int    `json:"maxCount,omitempty" yaml:"maxCount,omitempty"`
	Account                *string `json:"account,omitempty" yaml:"account,omitempty"`
	APSSID                 *string `json:"apSSID,omitempty" yaml:"apSSID,omitempty"`
	APPassword             *string `json:"apPassword,omitempty" yaml:"apPassword,omitempty"`
	Interface              *string `json:"interface,omitempty" yaml:"interface,omitempty"`
	PortalAddr             *string `json:"portalAddr,omitempty" yaml:"portalAddr,omitempty"`
	DNSAddr                *string `json:"dnsAddr,omitempty" yaml:"dnsAddr,omitempty"`
	RestartPortalOnFailure *bool   `json:"restartPortalOnFailure,omitempty" yaml:"restartPortalOnFailure,omitempty"`
	CredentialStore        *string `json:"credentialStore,omitempty" yaml:"credentialStore,omitempty"`
	MQTTBroker             *string `json:"mqttBroker,omitempty" yaml:"mqttBroker,omitempty"`
	MQTTTopic              *string `json:"mqttTopic,omitempty" yaml:"mqttTopic,omitempty"`
	AllowNonRootAccess     *bool   `json:"allowNonRootAccess,omitempty" yaml:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		FetchInterval:          ptr.To(c.FetchInterval().String()),
		FetchTimeout:           ptr.To(c.FetchTimeout().String()),
		FetchHost:              ptr.To(c.FetchHost()),
		FetchPort:              ptr.To(c.FetchPort()),
		InsecureTLS:            ptr.To(c.InsecureTLS()),
		MaxCount:               ptr.To(c.MaxCount()),
		Account:                ptr.To(c.Account()),
		APSSID:                 ptr.To(c.APSSID()),
		Interface:              ptr.To(c.Interface()),
		PortalAddr:             ptr.To(c.PortalAddr()),
		DNSAddr:                ptr.To(c.DNSAddr()),
		RestartPortalOnFailure: ptr.To(c.RestartPortalOnFailure()),
		CredentialStore:        ptr.To(c.CredentialStore()),
		MQTTBroker:             ptr.To(c.MQTTBroker()),
		MQTTTopic:              ptr.To(c.MQTTTopic()),
		AllowNonRootAccess:     ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// pick returns the configured value, or the default when unset.
func pick[T any](v, def *T) T {
	if v != nil {
		return *v
	}
	return *def
}

func (f *File) raw() *RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}
	return f.c
}

func (f *File) duration(v, def *string) time.Duration {
	s := pick(v, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		logrus.Warnf("invalid duration %q in config, using default %s", s, *def)
		d, _ = time.ParseDuration(*def)
	}
	return d
}

func (f *File) FetchInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.duration(f.raw().FetchInterval, defaultFileConfig.FetchInterval)
}

func (f *File) FetchTimeout() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.duration(f.raw().FetchTimeout, defaultFileConfig.FetchTimeout)
}

func (f *File) FetchHost() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().FetchHost, defaultFileConfig.FetchHost)
}

func (f *File) FetchPort() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().FetchPort, defaultFileConfig.FetchPort)
}

func (f *File) InsecureTLS() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().InsecureTLS, defaultFileConfig.InsecureTLS)
}

func (f *File) MaxCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().MaxCount, defaultFileConfig.MaxCount)
}

func (f *File) Account() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().Account, defaultFileConfig.Account)
}

func (f *File) APSSID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().APSSID, defaultFileConfig.APSSID)
}

func (f *File) APPassword() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().APPassword, defaultFileConfig.APPassword)
}

func (f *File) Interface() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().Interface, defaultFileConfig.Interface)
}

func (f *File) PortalAddr() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().PortalAddr, defaultFileConfig.PortalAddr)
}

func (f *File) DNSAddr() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().DNSAddr, defaultFileConfig.DNSAddr)
}

func (f *File) RestartPortalOnFailure() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().RestartPortalOnFailure, defaultFileConfig.RestartPortalOnFailure)
}

func (f *File) CredentialStore() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().CredentialStore, defaultFileConfig.CredentialStore)
}

func (f *File) MQTTBroker() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().MQTTBroker, defaultFileConfig.MQTTBroker)
}

func (f *File) MQTTTopic() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().MQTTTopic, defaultFileConfig.MQTTTopic)
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return pick(f.raw().AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) SetFetchInterval(d time.Duration) {
	if d <= 0 {
		panic("fetch interval must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().FetchInterval = ptr.To(d.String())
}

func (f *File) SetAccount(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().Account = &s
}

func (f *File) SetAllowNonRootAccess(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().AllowNonRootAccess = &b
}

func (f *File) isYAML() bool {
	switch strings.ToLower(filepath.Ext(f.filepath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	var (
		b   []byte
		err error
	)
	if f.isYAML() {
		b, err = yaml.Marshal(f.c)
	} else {
		b, err = json.MarshalIndent(f.c, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}

	if err := os.MkdirAll(filepath.Dir(f.filepath), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.filepath)
	}
	if err := os.WriteFile(f.filepath, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"fetchInterval":          f.FetchInterval().String(),
		"fetchHost":              f.FetchHost(),
		"fetchPort":              f.FetchPort(),
		"insecureTLS":            f.InsecureTLS(),
		"account":                f.Account(),
		"apSSID":                 f.APSSID(),
		"interface":              f.Interface(),
		"portalAddr":             f.PortalAddr(),
		"dnsAddr":                f.DNSAddr(),
		"restartPortalOnFailure": f.RestartPortalOnFailure(),
		"credentialStore":        f.CredentialStore(),
		"mqttBroker":             f.MQTTBroker(),
		"allowNonRootAccess":     f.AllowNonRootAccess(),
	}
}
