// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the platform config directory. Tests set it
// because os.UserHomeDir() ignores HOME on some platforms (macOS in CI).
var configDirOverride string

// Reset clears test overrides. Call from test cleanup to restore defaults.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride makes ConfigDir return dir until Reset is called.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
