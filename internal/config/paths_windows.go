//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	programData := os.Getenv("ProgramData")
	return []string{
		"config.yml",
		filepath.Join(programData, "DataCollector", "config.yml"),
	}
}
