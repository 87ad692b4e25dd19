package backfill

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
)

// Manual timestamp file suffixes. The misspelled one exists in older exports.
var manualSuffixes = []string{"_description.txt", "_decription.txt"}

// ReadURLs reads one video URL or ID per line. Blank lines and lines
// starting with # are ignored.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return urls, nil
}

// FindManualFiles lists the manual timestamp files in dir, sorted by name.
func FindManualFiles(dir string) ([]string, error) {
	var files []string
	for _, suffix := range manualSuffixes {
		m, err := filepath.Glob(filepath.Join(dir, "*"+suffix))
		if err != nil {
			return nil, err
		}
		files = append(files, m...)
	}
	if len(files) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("find manual files: %w", err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ManualVideoID returns the video ID a manual timestamp file is named after.
func ManualVideoID(path string) (string, error) {
	name := filepath.Base(path)
	for _, suffix := range manualSuffixes {
		if id, ok := strings.CutSuffix(name, suffix); ok {
			if !youtube.IsValidVideoID(id) {
				return "", fmt.Errorf("%w: file %s", youtube.ErrInvalidVideoID, name)
			}
			return id, nil
		}
	}
	return "", fmt.Errorf("%s is not a manual timestamp file", name)
}
