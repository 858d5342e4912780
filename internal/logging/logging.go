package logging

import (
	"path/filepath"
	"strings"
	"time"
)

// LogFilePath returns the session log file for a realm:
// <logsDir>/worldserver.<realm>.<start>.log. The realm segment is omitted
// when empty and reduced to a safe file name otherwise.
func LogFilePath(logsDir, realm string, sessionStart time.Time) string {
	parts := []string{ServiceName}
	if r := fileSafe(realm); r != "" {
		parts = append(parts, r)
	}
	parts = append(parts, sessionStart.Format("20060102_150405"), "log")
	return filepath.Join(logsDir, strings.Join(parts, "."))
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(name))
}
