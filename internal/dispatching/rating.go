package dispatching

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// ImplicitRating derives a 1-5 label from how a ticket was resolved.
// Faster completions rate higher; failures rate 1. Non-terminal statuses yield false.
func ImplicitRating(status domain.TicketStatus, createdAt time.Time, completedAt *time.Time) (int, bool) {
	switch status {
	case domain.TicketStatusFailed:
		return 1, true
	case domain.TicketStatusCompleted:
	default:
		return 0, false
	}
	if completedAt == nil {
		return 3, true
	}
	hours := completedAt.Sub(createdAt).Hours()
	switch {
	case hours < 4:
		return 5, true
	case hours < 24:
		return 4, true
	case hours < 72:
		return 3, true
	case hours < 168:
		return 2, true
	default:
		return 1, true
	}
}

// BuildCorpus turns resolved assignments into training records, sorted so that
// the same history always produces the same corpus.
func BuildCorpus(history []domain.AssignmentRecord) []domain.AffinityRecord {
	out := make([]domain.AffinityRecord, 0, len(history))
	for _, rec := range history {
		if rec.AgentID == "" || rec.CustomerID == "" {
			continue
		}
		rating, ok := ImplicitRating(rec.Status, rec.CreatedAt, rec.CompletedAt)
		if !ok {
			continue
		}
		out = append(out, domain.AffinityRecord{
			AgentID:    rec.AgentID,
			CustomerID: rec.CustomerID,
			Rating:     rating,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		return out[i].Rating < out[j].Rating
	})
	return out
}

// Fingerprint identifies a sorted corpus.
func Fingerprint(corpus []domain.AffinityRecord) string {
	h := sha256.New()
	for _, r := range corpus {
		h.Write([]byte(r.AgentID))
		h.Write([]byte{0})
		h.Write([]byte(r.CustomerID))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(r.Rating)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
