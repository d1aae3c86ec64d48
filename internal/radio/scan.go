package radio

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// DefaultPortPatterns returns the serial device globs for goos.
func DefaultPortPatterns(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"/dev/cu.usbserial-*", "/dev/cu.SLAB_USBtoUART*"}
	case "linux":
		return []string{"/dev/ttyACM*", "/dev/ttyUSB*"}
	default:
		return []string{"/dev/ttyACM*", "/dev/ttyUSB*", "/dev/cu.usbserial-*", "/dev/cu.SLAB_USBtoUART*"}
	}
}

// GlobScanner finds devices by filesystem glob, patterns in priority order.
type GlobScanner struct {
	Patterns []string
}

func NewGlobScanner(patterns []string) GlobScanner {
	if len(patterns) == 0 {
		patterns = DefaultPortPatterns(runtime.GOOS)
	}
	return GlobScanner{Patterns: append([]string(nil), patterns...)}
}

func (s GlobScanner) Scan() ([]string, error) {
	var out []string
	for _, pattern := range s.Patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

func (s GlobScanner) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
