// Package dotdir resolves the .relay/ directory holding config.toml,
// credentials.toml and the default sqlite memory database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DirName is the name of the relay directory.
	DirName = ".relay"

	// EnvDir names an explicit relay directory, overridden only by the
	// --config-dir flag.
	EnvDir = "RELAY_DIR"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the relay directory, creating it if
// needed. The first of these wins:
//  1. overrideDir (the --config-dir flag)
//  2. $RELAY_DIR
//  3. ./.relay/ when it exists
//  4. ~/.relay/
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving relay directory %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("creating relay directory %s: %w", abs, err)
	}

	return abs, nil
}

// File returns the absolute path of name inside the relay directory.
func (m *Manager) File(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}

	if env := strings.TrimSpace(os.Getenv(EnvDir)); env != "" {
		return env, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if info, err := os.Stat(filepath.Join(cwd, DirName)); err == nil && info.IsDir() {
		return filepath.Join(cwd, DirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}
