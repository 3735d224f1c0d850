// Package daemon installs followd as a systemd service.
package daemon

import (
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitName = "followd.service"

//go:embed followd.service
var unitTemplate string

var (
	unitPath = "/etc/systemd/system/" + unitName

	// runCommand runs an external program. Replaced in tests.
	runCommand = func(name string, args ...string) error {
		out, err := exec.Command(name, args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

func renderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/followd", exePath,
		"/path/to/config", configPath,
		"/path/to/socket", socketPath,
	).Replace(unitTemplate)
}

// Install writes the unit file for the running binary and starts the service.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	return installUnit(renderUnit(exePath, configPath, socketPath))
}

func installUnit(unit string) error {
	logrus.Infof("writing systemd unit to %s", unitPath)

	err := os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(unit), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting followd")

	if err := runCommand("systemctl", "daemon-reload"); err != nil {
		return err
	}
	if err := runCommand("systemctl", "enable", "--now", unitName); err != nil {
		return err
	}

	return nil
}
