// Package alert owns the lifecycle of operational alerts. No other package
// writes Alert.Status.
package alert

// Alert types.
const (
	TypeRankingDrop      = "ranking_drop"
	TypeRankingLost      = "ranking_lost"
	TypePublishFailed    = "publish_failed"
	TypeQualityGateSpike = "quality_gate_spike"
	TypeBrokenLink       = "broken_link"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Statuses. An alert starts active and may move to acknowledged or straight
// to resolved; nothing leaves resolved.
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// BrokenLinkCriticalThreshold is the broken-link count at which the
// link-health alert escalates to critical.
const BrokenLinkCriticalThreshold = 10

func ValidType(t string) bool {
	switch t {
	case TypeRankingDrop, TypeRankingLost, TypePublishFailed, TypeQualityGateSpike, TypeBrokenLink:
		return true
	}
	return false
}

func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

// SeverityForBrokenLinks maps a broken-link count to an alert severity.
func SeverityForBrokenLinks(n int) string {
	return SeverityForCount(n, BrokenLinkCriticalThreshold)
}

// SeverityForCount is critical at or above criticalAt and warning below.
func SeverityForCount(n, criticalAt int) string {
	if n >= criticalAt {
		return SeverityCritical
	}
	return SeverityWarning
}
