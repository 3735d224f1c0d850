package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}

	if got := f.FetchInterval(); got != time.Minute {
		t.Errorf("FetchInterval() = %v, want %v", got, time.Minute)
	}
	if got := f.MaxCount(); got != 99999 {
		t.Errorf("MaxCount() = %v, want 99999", got)
	}
	if got := f.APSSID(); got != "ConfigPortal" {
		t.Errorf("APSSID() = %q, want ConfigPortal", got)
	}
	if got := f.FetchPort(); got != 443 {
		t.Errorf("FetchPort() = %v, want 443", got)
	}
}

func TestFileSaveLoad(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{name: "json", file: "followd.json"},
		{name: "yaml", file: "followd.yaml"},
		{name: "yml nested dir", file: "etc/followd.yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), tt.file)
			f := NewFileFromConfig(nil, p)
			f.SetFetchInterval(90 * time.Second)
			f.SetAccount("nasa")
			f.SetAllowNonRootAccess(true)
			if err := f.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loaded, err := NewFile(p)
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			if got := loaded.FetchInterval(); got != 90*time.Second {
				t.Errorf("FetchInterval() = %v, want 1m30s", got)
			}
			if got := loaded.Account(); got != "nasa" {
				t.Errorf("Account() = %q, want nasa", got)
			}
			if !loaded.AllowNonRootAccess() {
				t.Errorf("AllowNonRootAccess() = false, want true")
			}
			// untouched keys keep their defaults
			if got := loaded.Interface(); got != "wlan0" {
				t.Errorf("Interface() = %q, want wlan0", got)
			}
		})
	}
}

func TestFileInvalidDurationFallsBack(t *testing.T) {
	p := filepath.Join(t.TempDir(), "followd.json")
	if err := os.WriteFile(p, []byte(`{"fetchInterval":"soon"}`), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if got := f.FetchInterval(); got != time.Minute {
		t.Errorf("FetchInterval() = %v, want %v", got, time.Minute)
	}
}

func TestFileEmptyAndBroken(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(empty); err != nil {
		t.Errorf("NewFile(empty) error = %v, want nil", err)
	}

	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(broken); err == nil {
		t.Errorf("NewFile(broken) error = nil, want error")
	}
}
