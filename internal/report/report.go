// Package report stores human-readable traceroute reports on disk.
// Each report is written as a timestamped text file in a per-host directory;
// the oldest reports of a host are removed once a retention limit is reached.
package report

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/idna"
)

const fileExt = ".txt"

var safeSegment = regexp.MustCompile(`^[a-z0-9._-]+$`)

// Writer writes report files below a base directory.
type Writer struct {
	dir        string
	maxReports int
	logger     *zap.Logger
	mu         sync.Mutex
}

// New creates a report writer rooted at dir. The directory is created if it
// does not exist. maxReports <= 0 disables retention.
func New(dir string, maxReports int, logger *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &Writer{
		dir:        dir,
		maxReports: maxReports,
		logger:     logger,
	}, nil
}

// Write stores body as the report of host taken at the given time and returns
// the path of the new file.
func (w *Writer) Write(host string, at time.Time, body string) (string, error) {
	segment, err := NormalizeHost(host)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.dir, segment)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	path := filepath.Join(dir, at.UTC().Format("20060102T150405.000")+fileExt)
	if err := os.WriteFile(path, []byte(body), 0640); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	w.enforceRetention(dir)
	return path, nil
}

// enforceRetention removes the oldest reports in dir beyond maxReports.
// Must be called with w.mu held.
func (w *Writer) enforceRetention(dir string) {
	if w.maxReports <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == fileExt {
			names = append(names, entry.Name())
		}
	}
	// File names are timestamps, so lexical order is chronological.
	sort.Strings(names)

	for len(names) > w.maxReports {
		path := filepath.Join(dir, names[0])
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Failed to remove old report",
				zap.String("file", path),
				zap.Error(err))
		}
		names = names[1:]
	}
}

// NormalizeHost maps a hostname or address to a filesystem-safe directory
// name: lowercased, trailing dot removed, IDN labels punycode-encoded and
// colons (IPv6) replaced by underscores.
func NormalizeHost(host string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	h = strings.TrimSuffix(h, ".")
	if h == "" {
		return "", fmt.Errorf("empty hostname")
	}

	if net.ParseIP(h) == nil {
		ascii, err := idna.Punycode.ToASCII(h)
		if err != nil {
			return "", fmt.Errorf("encoding hostname %q: %w", host, err)
		}
		h = ascii
	}
	h = strings.ReplaceAll(h, ":", "_")

	if h == "." || h == ".." || !safeSegment.MatchString(h) {
		return "", fmt.Errorf("hostname %q is not safe as a path segment", host)
	}
	return h, nil
}
