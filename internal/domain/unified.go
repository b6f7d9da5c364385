package domain

import "encoding/json"

// MilestoneType selects the renderer and filter buckets for a unified item.
type MilestoneType string

const (
	TypeActivity    MilestoneType = "activity"
	TypeMilestone   MilestoneType = "milestone"
	TypeGrant       MilestoneType = "grant"
	TypeGrantUpdate MilestoneType = "grant_update"
	TypeImpact      MilestoneType = "impact"
	// TypeProject is not produced by the normalizer. The pending and completed
	// buckets still accept it for items tagged by older clients.
	TypeProject MilestoneType = "project"
)

// UnifiedMilestone is the common record updates, milestones, grant milestones,
// grant updates and impacts are normalized into.
type UnifiedMilestone struct {
	UID         string        `json:"uid"`
	Type        MilestoneType `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ChainID     int           `json:"chainID"`
	RefUID      string        `json:"refUID"`
	CreatedAt   string        `json:"createdAt"`
	EndsAt      *int64        `json:"endsAt,omitempty"`
	// Completed is nil for items that are not completed.
	Completed *Completion `json:"completed"`
	Attester  string      `json:"attester,omitempty"`
	Source    Source      `json:"source"`
}

// IsCompleted reports whether the item carries completion metadata.
func (m UnifiedMilestone) IsCompleted() bool { return m.Completed != nil }

// MarshalJSON renders a missing completion as false.
func (m UnifiedMilestone) MarshalJSON() ([]byte, error) {
	type alias UnifiedMilestone
	var completed any = false
	if m.Completed != nil {
		completed = m.Completed
	}
	return json.Marshal(struct {
		alias
		Completed any `json:"completed"`
	}{alias: alias(m), Completed: completed})
}

type Completion struct {
	CreatedAt string         `json:"createdAt"`
	Data      CompletionData `json:"data"`
}

type CompletionData struct {
	Reason               string        `json:"reason,omitempty"`
	ProofOfWork          string        `json:"proofOfWork,omitempty"`
	CompletionPercentage *float64      `json:"completionPercentage,omitempty"`
	Deliverables         []Deliverable `json:"deliverables,omitempty"`
}

// Source keeps the original record. Exactly one field is set.
type Source struct {
	ProjectUpdate    *ProjectUpdate        `json:"projectUpdate,omitempty"`
	ProjectMilestone *ProjectMilestone     `json:"projectMilestone,omitempty"`
	GrantMilestone   *GrantMilestoneSource `json:"grantMilestone,omitempty"`
	GrantUpdate      *GrantUpdate          `json:"grantUpdate,omitempty"`
	ProjectImpact    *ProjectImpact        `json:"projectImpact,omitempty"`
}

type GrantMilestoneSource struct {
	Milestone GrantMilestoneView `json:"milestone"`
	Grant     GrantRef           `json:"grant"`
}

// GrantMilestoneView is the grant milestone as renderers consume it.
type GrantMilestoneView struct {
	UID         string      `json:"uid"`
	ChainID     int         `json:"chainID"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	EndsAt      *int64      `json:"endsAt,omitempty"`
	Status      Status      `json:"status"`
	Completed   *Completion `json:"completed,omitempty"`
	// Verified is never nil so it always encodes as an array.
	Verified []Verification `json:"verified"`
}

type Verification struct {
	Attester string `json:"attester"`
	Reason   string `json:"reason"`
	UID      string `json:"uid"`
}
