// Package prefs persists the provisioning credentials of the device.
//
// Values are plain strings grouped under a namespace. Two backends are
// available: a JSON file (the default) and SQLite, chosen by the file
// extension passed to Open.
package prefs

import (
	"errors"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/followd/pkg/types"
)

// ErrNotFound is returned when a key is not present in the store.
var ErrNotFound = errors.New("not found")

const (
	Namespace  = "captive"
	KeySSID    = "ssid"
	KeyPass    = "pass"
	KeyAccount = "account"
)

// Store is a durable, synchronous string key-value store.
type Store interface {
	GetString(namespace, key string) (string, error)
	PutString(namespace, key, value string) error
	Close() error
}

// Open opens the store at path. Paths ending in .db, .sqlite or .sqlite3 use
// the SQLite backend, anything else the JSON file backend.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path)
	default:
		return OpenFile(path)
	}
}

// LoadCredentials reads the saved credentials. Missing keys are returned as
// empty strings.
func LoadCredentials(s Store) (types.Credentials, error) {
	var creds types.Credentials
	for key, dst := range map[string]*string{
		KeySSID:    &creds.SSID,
		KeyPass:    &creds.Password,
		KeyAccount: &creds.Account,
	} {
		v, err := s.GetString(Namespace, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return types.Credentials{}, pkgerrors.Wrapf(err, "failed to read %s", key)
		}
		*dst = v
	}
	return creds, nil
}

// SaveCredentials writes the network name, secret and target account.
func SaveCredentials(s Store, creds types.Credentials) error {
	if err := s.PutString(Namespace, KeySSID, creds.SSID); err != nil {
		return pkgerrors.Wrap(err, "failed to save ssid")
	}
	if err := s.PutString(Namespace, KeyPass, creds.Password); err != nil {
		return pkgerrors.Wrap(err, "failed to save password")
	}
	if err := s.PutString(Namespace, KeyAccount, creds.Account); err != nil {
		return pkgerrors.Wrap(err, "failed to save account")
	}
	return nil
}
