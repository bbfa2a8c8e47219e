package governance

import (
	"time"

	"consentire/pkg/domain"
)

// ProposalStatus is the lifecycle state of a governance proposal.
type ProposalStatus string

const (
	ProposalOpen     ProposalStatus = "open"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a change put to the community, e.g. a new supported purpose
// taxonomy or a policy parameter.
type Proposal struct {
	ID          string         `json:"proposalId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ProposerID  domain.UserID  `json:"proposerId"`
	Status      ProposalStatus `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	ClosesAt    time.Time      `json:"closesAt"`
}

// Vote is a single weighted ballot. One vote per voter per proposal; a
// re-vote replaces the previous ballot.
type Vote struct {
	ProposalID string        `json:"proposalId"`
	VoterID    domain.UserID `json:"voterId"`
	Support    bool          `json:"support"`
	Weight     int64         `json:"weight"`
	CastAt     time.Time     `json:"castAt"`
}

// Tally is the running count for a proposal.
type Tally struct {
	ProposalID string `json:"proposalId"`
	For        int64  `json:"for"`
	Against    int64  `json:"against"`
	Voters     int    `json:"voters"`
}
