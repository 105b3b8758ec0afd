package domain

import "strings"

// Health is the three-state classification shared by freshness, entities and books.
type Health string

const (
	HealthOK    Health = "ok"
	HealthWarn  Health = "warn"
	HealthError Health = "error"
)

func (h Health) rank() int {
	switch h {
	case HealthError:
		return 2
	case HealthWarn:
		return 1
	default:
		return 0
	}
}

// Worse reports whether h is strictly more severe than other.
func (h Health) Worse(other Health) bool {
	return h.rank() > other.rank()
}

// ParseHealth maps loose backend spellings onto a Health. Unknown values map to ok.
func ParseHealth(s string) Health {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err", "critical", "fail", "failed":
		return HealthError
	case "warn", "warning", "stale":
		return HealthWarn
	default:
		return HealthOK
	}
}
