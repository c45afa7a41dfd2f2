package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

func member(id string) models.Member {
	return models.Member{ID: id, Name: id, Kind: models.SenderAgent, IsActive: true}
}

func agentMsg(sender, content string) models.Message {
	return models.Message{SenderID: sender, SenderName: sender, SenderKind: models.SenderAgent, Content: content}
}

func TestNormalizeClaim(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Use Postgres", "use postgres"},
		{"strips punctuation", "use postgres, please!", "use postgres please"},
		{"collapses whitespace", "  use   postgres  ", "use postgres"},
		{"keeps digits", "bump to v2 by 2026", "bump to v2 by 2026"},
		{"empty", "?!...", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeClaim(tc.input))
		})
	}
}

func TestDetectQuorumOfDistinctVoices(t *testing.T) {
	d := NewDetector(20)
	members := []models.Member{member("a"), member("b"), member("c")}

	messages := []models.Message{
		agentMsg("a", "We should cache sessions in Redis"),
		agentMsg("b", "unrelated remark about deadlines"),
		agentMsg("b", "we should cache sessions in redis."),
	}

	claim, ok := d.Detect(messages, members, nil)
	assert.True(t, ok)
	assert.Equal(t, "We should cache sessions in Redis", claim, "first phrasing wins")
}

func TestDetectIgnoresRepeatsFromSameMember(t *testing.T) {
	d := NewDetector(20)
	members := []models.Member{member("a"), member("b"), member("c")}

	messages := []models.Message{
		agentMsg("a", "we should cache sessions in redis"),
		agentMsg("a", "we should cache sessions in redis"),
		agentMsg("a", "we should cache sessions in redis"),
	}

	_, ok := d.Detect(messages, members, nil)
	assert.False(t, ok)
}

func TestDetectSkipsShortClaims(t *testing.T) {
	d := NewDetector(20)
	members := []models.Member{member("a"), member("b")}

	messages := []models.Message{
		agentMsg("a", "sounds good"),
		agentMsg("b", "sounds good"),
	}

	_, ok := d.Detect(messages, members, nil)
	assert.False(t, ok, "two-word claims are below the word floor")
}

func TestDetectIgnoresInactiveAndNonMemberVoices(t *testing.T) {
	d := NewDetector(20)
	members := []models.Member{member("a"), member("b")}

	messages := []models.Message{
		agentMsg("a", "we should ship the beta on monday"),
		agentMsg("departed", "we should ship the beta on monday"),
		{SenderID: OrchestratorSender, SenderName: OrchestratorName, SenderKind: models.SenderOrchestrator, Content: "we should ship the beta on monday"},
	}

	_, ok := d.Detect(messages, members, nil)
	assert.False(t, ok)
}

func TestDetectSkipsClaimsAlreadyProposed(t *testing.T) {
	d := NewDetector(20)
	members := []models.Member{member("a"), member("b")}

	messages := []models.Message{
		agentMsg("a", "we should ship the beta on monday"),
		agentMsg("b", "We should ship the beta on Monday!"),
	}
	pending := []models.CommitProposal{
		{ID: "p1", Content: "we should ship the beta on monday", Status: models.StatusPending},
	}

	_, ok := d.Detect(messages, members, pending)
	assert.False(t, ok)
}

func TestDetectHonorsWindow(t *testing.T) {
	d := NewDetector(2)
	members := []models.Member{member("a"), member("b")}

	// The first affirmation scrolls out of the two-message window.
	messages := []models.Message{
		agentMsg("a", "we should ship the beta on monday"),
		agentMsg("b", "what about the migration plan"),
		agentMsg("b", "we should ship the beta on monday"),
	}

	_, ok := d.Detect(messages, members, nil)
	assert.False(t, ok)
}

func TestDetectLargerSquadNeedsMajority(t *testing.T) {
	d := NewDetector(20)
	members := []models.Member{member("a"), member("b"), member("c"), member("d"), member("e")}

	messages := []models.Message{
		agentMsg("a", "we should vendor the protobuf compiler"),
		agentMsg("b", "we should vendor the protobuf compiler"),
	}

	_, ok := d.Detect(messages, members, nil)
	assert.False(t, ok, "2 of 5 is below quorum")

	messages = append(messages, agentMsg("c", "we should vendor the protobuf compiler"))
	claim, ok := d.Detect(messages, members, nil)
	assert.True(t, ok)
	assert.Equal(t, "we should vendor the protobuf compiler", claim)
}
