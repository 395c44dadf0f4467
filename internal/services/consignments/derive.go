package consignments

import (
	"strings"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/courierapi"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

// DeriveStatus recomputes the display status from a history snapshot. The
// channel delivers events out of order, so the client never trusts event
// order: the latest completed step wins in a fixed precedence
// (Delivered > Collected > server status word).
func DeriveStatus(h courierapi.History) string {
	var collected, delivered bool
	for _, st := range h.Steps {
		if !st.Completed {
			continue
		}
		step := strings.ToLower(st.Step)
		switch {
		case strings.Contains(step, "delivered"):
			delivered = true
		case strings.Contains(step, "collected"):
			collected = true
		}
	}
	if delivered {
		return models.StatusDelivered
	}
	if collected {
		return models.StatusCollected
	}

	switch strings.ToLower(strings.TrimSpace(h.ServerStatus)) {
	case "pending", "not started", "in progress", "rejected", "expired":
		// Витринное понижение, не откат состояния.
		return models.StatusUpcoming
	case "accepted":
		return models.StatusAccepted
	default:
		return models.StatusYetToCollect
	}
}

// statusRank orders the happy path; used to keep derivation monotonic.
func statusRank(status string) int {
	switch status {
	case models.StatusAccepted:
		return 1
	case models.StatusYetToCollect:
		return 2
	case models.StatusCollected:
		return 3
	case models.StatusDelivered:
		return 4
	default: // Upcoming and unknown
		return 0
	}
}
