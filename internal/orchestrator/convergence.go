package orchestrator

import (
	"strings"
	"unicode"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// Detector scans the recent message window for organic agreement: the
// same normalized claim stated by a quorum of distinct active members.
// It never writes context itself; on a hit the orchestrator synthesizes a
// no-objection commit proposal.
//
// Window size and quorum are policy, not protocol: they gate when a
// proposal is raised, never how it resolves.
type Detector struct {
	// Window is how many recent messages to scan. Default 20.
	Window int
	// MinWords filters out trivially short claims. Default 3.
	MinWords int
}

// NewDetector returns a detector with default policy thresholds.
func NewDetector(window int) *Detector {
	if window <= 0 {
		window = 20
	}
	return &Detector{Window: window, MinWords: 3}
}

// NormalizeClaim reduces message content to a comparable form: lowercase,
// punctuation stripped, whitespace collapsed.
func NormalizeClaim(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// quorum is the agreement threshold: a majority of active members, and
// never fewer than two distinct voices.
func quorum(activeMembers int) int {
	q := activeMembers/2 + 1
	if q < 2 {
		q = 2
	}
	return q
}

// Detect returns the original content of a claim affirmed by a quorum of
// distinct active members within the window, or ok=false. Claims whose
// normalized form matches a pending proposal are skipped so an equivalent
// proposal is never raised twice.
func (d *Detector) Detect(messages []models.Message, activeMembers []models.Member, pending []models.CommitProposal) (string, bool) {
	if len(activeMembers) == 0 {
		return "", false
	}

	active := make(map[string]bool, len(activeMembers))
	for _, m := range activeMembers {
		active[m.ID] = true
	}

	pendingClaims := make(map[string]bool, len(pending))
	for _, p := range pending {
		pendingClaims[NormalizeClaim(p.Content)] = true
	}

	window := messages
	if len(window) > d.Window {
		window = window[len(window)-d.Window:]
	}

	// For each normalized claim: the distinct members who stated it and
	// the first original phrasing seen.
	voices := make(map[string]map[string]bool)
	original := make(map[string]string)
	var order []string

	for _, msg := range window {
		if msg.SenderKind != models.SenderHuman && msg.SenderKind != models.SenderAgent {
			continue
		}
		if !active[msg.SenderID] {
			continue
		}
		claim := NormalizeClaim(msg.Content)
		if claim == "" || len(strings.Fields(claim)) < d.MinWords {
			continue
		}
		if pendingClaims[claim] {
			continue
		}
		if voices[claim] == nil {
			voices[claim] = make(map[string]bool)
			original[claim] = msg.Content
			order = append(order, claim)
		}
		voices[claim][msg.SenderID] = true
	}

	need := quorum(len(activeMembers))
	for _, claim := range order {
		if len(voices[claim]) >= need {
			return original[claim], true
		}
	}
	return "", false
}
