//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"config.yml",
		filepath.Join(home, ".data-collector", "config.yml"),
		"/etc/data-collector/config.yml",
	}
}
