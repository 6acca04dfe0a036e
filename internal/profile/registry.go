package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName     = "tuyatap"
	profileFile = "profile.yaml"
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// ConfigDir returns the OS-appropriate configuration directory for the
// application. This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/tuyatap or $HOME/.config/tuyatap
//   - macOS: $HOME/.config/tuyatap (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\tuyatap
func ConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		// Windows: Use LOCALAPPDATA
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			// Fallback to USERPROFILE\AppData\Local if LOCALAPPDATA not set
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		// macOS: Use $HOME/.config/tuyatap (following modern XDG convention)
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		// Linux and other Unix-like systems: Use XDG_CONFIG_HOME or $HOME/.config
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// DefaultPath returns the full path to the default profile file.
func DefaultPath() (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, profileFile), nil
}

// Load reads a profile from an explicit path. A missing file is an error;
// use LoadDefault when absence should fall back to an empty profile.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	// Validate version
	if p.Version != 1 {
		return nil, fmt.Errorf("unsupported profile version: %d (expected 1)", p.Version)
	}

	// Ensure maps are initialized
	if p.DataPoints == nil {
		p.DataPoints = make(map[int]*DataPointMeta)
	}

	return &p, nil
}

// LoadDefault loads the profile from the default location. If the file
// doesn't exist, returns a new empty profile.
func LoadDefault() (*Profile, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile path: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Profile doesn't exist - return new empty profile
		return New(), nil
	}

	return Load(path)
}

// Save writes the profile to path.
// Performs an atomic write to prevent corruption on crash.
func (p *Profile) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	// Ensure the parent directory exists with user-only permissions
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	// Add header comment
	header := []byte(`# Tuyatap Device Profile
# This file stores user-authored labels, units and enum names for the
# data points of one device.
#
# Everything here is advisory: it changes how decoded values are
# displayed, never what gets decoded.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary profile file: %w", err)
	}

	// Atomic rename (this is atomic on all platforms)
	if err := os.Rename(tmpPath, path); err != nil {
		// Clean up temp file on error
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save profile file: %w", err)
	}

	return nil
}

// CreateStarter creates a starter profile file with example data point
// entries. This is useful for first-time setup or documentation purposes.
func CreateStarter(path string) error {
	p := New()
	p.Name = "Example Water Heater"
	p.Notes = "Replace these entries with what you learn from watching traffic."

	p.DataPoints[1] = &DataPointMeta{
		Label: "power",
		Notes: "Boolean, toggles with the front panel button.",
	}
	p.DataPoints[2] = &DataPointMeta{
		Label: "target_temp",
		Unit:  "°C",
		Scale: 0.5,
	}
	p.DataPoints[4] = &DataPointMeta{
		Label: "mode",
		Enum: map[int]string{
			0: "auto",
			1: "manual",
			2: "holiday",
		},
	}
	p.DataPoints[11] = &DataPointMeta{
		Label: "fault",
		Notes: "Fault bitmap. Bit 0 seems to be the dry-fire sensor.",
	}

	return p.Save(path)
}
