// Package collab runs multi-agent decisions. A Coordinator opens the shared
// conversation; a Strategy turns the proposal (and any competing positions)
// into a decision with a consensus level.
package collab

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInsufficientParticipants is returned when fewer than two agents collaborate.
var ErrInsufficientParticipants = errors.New("collaboration requires at least two agents")

// ConsensusLevel is ordinal: low < medium < medium-high < high.
type ConsensusLevel string

const (
	ConsensusLow        ConsensusLevel = "low"
	ConsensusMedium     ConsensusLevel = "medium"
	ConsensusMediumHigh ConsensusLevel = "medium-high"
	ConsensusHigh       ConsensusLevel = "high"
)

var consensusRanks = map[ConsensusLevel]int{
	ConsensusLow:        0,
	ConsensusMedium:     1,
	ConsensusMediumHigh: 2,
	ConsensusHigh:       3,
}

// Rank returns the ordinal position of the level, or -1 for unknown levels.
func (c ConsensusLevel) Rank() int {
	r, ok := consensusRanks[c]
	if !ok {
		return -1
	}
	return r
}

// Validate checks the level is one of the four known values.
func (c ConsensusLevel) Validate() error {
	if c.Rank() < 0 {
		return fmt.Errorf("invalid consensus level: %q", string(c))
	}
	return nil
}

// ParseConsensusLevel parses a level case-insensitively.
func ParseConsensusLevel(s string) (ConsensusLevel, error) {
	level := ConsensusLevel(strings.ToLower(strings.TrimSpace(s)))
	if err := level.Validate(); err != nil {
		return "", err
	}
	return level, nil
}

// Record is the outcome of a collaboration. ID is the conversation id.
type Record struct {
	ID             string         `json:"id"`
	Topic          string         `json:"topic"`
	Participants   []string       `json:"participants"`
	FinalDecision  string         `json:"final_decision"`
	ConsensusLevel ConsensusLevel `json:"consensus_level"`
	Timestamp      time.Time      `json:"timestamp"`
}
