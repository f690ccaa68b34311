package security

import (
	"fmt"
	"time"
)

// detection is one predicate's evaluation result for the current
// request. A zero-value triggered means the predicate did not fire.
type detection struct {
	family      string
	kind        Kind
	level       Level
	triggered   bool
	description string
}

func detectAPIAbuse(w *sourceWindow, now time.Time) detection {
	count := countSince(w.requests, now.Add(-time.Minute))
	switch {
	case count >= 500:
		return detection{"api_abuse", KindAPIAbuseSevere, LevelCritical, true,
			fmt.Sprintf("%d requests in the trailing 60s", count)}
	case count >= 100:
		return detection{"api_abuse", KindAPIAbuseSustained, LevelHigh, true,
			fmt.Sprintf("%d requests in the trailing 60s", count)}
	case count >= 50:
		return detection{"api_abuse", KindAPIAbuseBurst, LevelMedium, true,
			fmt.Sprintf("%d requests in the trailing 60s", count)}
	default:
		return detection{family: "api_abuse"}
	}
}

func detectBruteForce(w *sourceWindow, now time.Time) detection {
	count := countSince(w.authFailures, now.Add(-15*time.Minute))
	switch {
	case count >= 10:
		return detection{"brute_force", KindBruteForceCritical, LevelCritical, true,
			fmt.Sprintf("%d auth failures in the trailing 15m", count)}
	case count >= 5:
		return detection{"brute_force", KindBruteForceWarning, LevelHigh, true,
			fmt.Sprintf("%d auth failures in the trailing 15m", count)}
	default:
		return detection{family: "brute_force"}
	}
}

func detectDataExfiltration(w *sourceWindow, meta RequestMeta, now time.Time) detection {
	if meta.RecordsAccessed < 100 {
		return detection{family: "data_exfiltration"}
	}
	mean := rollingMean(w.recordsAccessed, now.Add(-time.Hour))
	if mean > 0 && float64(meta.RecordsAccessed) >= 10*mean {
		return detection{"data_exfiltration", KindDataExfiltration, LevelHigh, true,
			fmt.Sprintf("%d records accessed in one request, trailing 1h mean %.1f", meta.RecordsAccessed, mean)}
	}
	return detection{family: "data_exfiltration"}
}

func detectInsiderThreat(meta RequestMeta, now time.Time) detection {
	hour := now.Hour()
	night := hour >= 22 || hour <= 5
	if meta.IsPrivilegedEndpoint && night {
		return detection{"insider_threat", KindInsiderThreat, LevelHigh, true,
			fmt.Sprintf("privileged endpoint %s accessed at hour %d", meta.Endpoint, hour)}
	}
	return detection{family: "insider_threat"}
}

func detectPrivilegeEscalation(w *sourceWindow, meta RequestMeta) detection {
	if meta.IsAdminEndpoint && !w.adminAccessed {
		return detection{"privilege_escalation", KindPrivilegeEscalation, LevelHigh, true,
			fmt.Sprintf("first admin-endpoint access: %s", meta.Endpoint)}
	}
	return detection{family: "privilege_escalation"}
}

func detectUnusualAccess(w *sourceWindow, meta RequestMeta, now time.Time) detection {
	cutoff := now.Add(-24 * time.Hour)
	lastSeen, seen := w.endpointLastAccess[meta.Endpoint]
	neverInWindow := !seen || lastSeen.Before(cutoff)
	outsideHistory := w.hourHistogram[now.Hour()] == 0

	if neverInWindow && outsideHistory {
		return detection{"unusual_access", KindUnusualAccess, LevelMedium, true,
			fmt.Sprintf("endpoint %s unseen in trailing 24h and hour %d outside source's history", meta.Endpoint, now.Hour())}
	}
	return detection{family: "unusual_access"}
}

func detectSystemAnomaly(meta RequestMeta) detection {
	if meta.ConfigChangeSignal {
		return detection{"system_anomaly", KindSystemAnomaly, LevelMedium, true, "configuration-change signal observed"}
	}
	return detection{family: "system_anomaly"}
}
