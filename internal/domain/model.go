package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Raw indexer shapes. Field names follow the indexer's JSON; every field is
// optional on the wire, so zero values must be tolerated by consumers.

// UpdatesResponse is the indexer payload for a project's roadmap.
type UpdatesResponse struct {
	ProjectUpdates    []ProjectUpdate    `json:"projectUpdates"`
	ProjectMilestones []ProjectMilestone `json:"projectMilestones"`
	GrantMilestones   []GrantMilestone   `json:"grantMilestones"`
	GrantUpdates      []GrantUpdate      `json:"grantUpdates"`
	ProjectImpacts    []ProjectImpact    `json:"projectImpacts,omitempty"`
}

// Len returns the total number of records across all collections.
func (r UpdatesResponse) Len() int {
	return len(r.ProjectUpdates) + len(r.ProjectMilestones) + len(r.GrantMilestones) +
		len(r.GrantUpdates) + len(r.ProjectImpacts)
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusVerified  Status = "verified"
)

// IsCompleted reports whether the status counts as done. Verified implies completed.
func (s Status) IsCompleted() bool {
	switch Status(strings.ToLower(string(s))) {
	case StatusCompleted, StatusVerified:
		return true
	}
	return false
}

func (s Status) IsVerified() bool {
	return Status(strings.ToLower(string(s))) == StatusVerified
}

// ChainRef is a chain id that the indexer sends either as a JSON string or number.
type ChainRef string

func (c *ChainRef) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = ChainRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// unparseable chain ids degrade to "not chain anchored"
		*c = ""
		return nil
	}
	*c = ChainRef(n.String())
	return nil
}

// Int parses the chain id, returning 0 when it is empty or malformed.
// Integral floats such as "10.0" are accepted.
func (c ChainRef) Int() int {
	s := strings.TrimSpace(string(c))
	n, err := strconv.Atoi(s)
	if err == nil {
		return max(n, 0)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// UnixRef is a unix timestamp the indexer sends as an integer, a float or a
// numeric string. Fractions are floored; anything else decodes as 0.
type UnixRef int64

func (u *UnixRef) UnmarshalJSON(b []byte) error {
	f, ok := looseFloat(b)
	if !ok || f < math.MinInt64 || f >= math.MaxInt64 {
		*u = 0
		return nil
	}
	*u = UnixRef(math.Floor(f))
	return nil
}

// Value returns the timestamp, or 0 when u is nil.
func (u *UnixRef) Value() int64 {
	if u == nil {
		return 0
	}
	return int64(*u)
}

// looseFloat reads a JSON number or numeric string.
func looseFloat(b []byte) (float64, bool) {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// loosePercent returns nil for a missing or malformed percentage.
func loosePercent(b json.RawMessage) *float64 {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	f, ok := looseFloat(b)
	if !ok {
		return nil
	}
	return &f
}

// AttestationData is the decoded attestation body some records carry.
type AttestationData struct {
	Attester string   `json:"attester,omitempty"`
	EndsAt   *UnixRef `json:"endsAt,omitempty"`
}

type ProjectUpdate struct {
	UID         string           `json:"uid"`
	RefUID      string           `json:"refUID,omitempty"`
	ChainID     ChainRef         `json:"chainId,omitempty"`
	Recipient   string           `json:"recipient,omitempty"`
	Attester    string           `json:"attester,omitempty"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Verified    bool             `json:"verified,omitempty"`
	StartDate   string           `json:"startDate,omitempty"`
	EndDate     string           `json:"endDate,omitempty"`
	CreatedAt   string           `json:"createdAt"`
	Data        *AttestationData `json:"data,omitempty"`
}

// CompletionDetails describes how a milestone was completed.
type CompletionDetails struct {
	Description          string        `json:"description,omitempty"`
	CompletedAt          string        `json:"completedAt,omitempty"`
	CompletedBy          string        `json:"completedBy,omitempty"`
	AttestationUID       string        `json:"attestationUID,omitempty"`
	ProofOfWork          string        `json:"proofOfWork,omitempty"`
	CompletionPercentage *float64      `json:"completionPercentage,omitempty"`
	Deliverables         []Deliverable `json:"deliverables,omitempty"`
}

func (d *CompletionDetails) UnmarshalJSON(b []byte) error {
	type alias CompletionDetails
	aux := struct {
		*alias
		CompletionPercentage json.RawMessage `json:"completionPercentage,omitempty"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.CompletionPercentage = loosePercent(aux.CompletionPercentage)
	return nil
}

type Deliverable struct {
	Name        string `json:"name,omitempty"`
	Proof       string `json:"proof,omitempty"`
	Description string `json:"description,omitempty"`
}

// VerificationDetails is attached to milestones a reviewer has verified.
type VerificationDetails struct {
	Description    string `json:"description,omitempty"`
	VerifiedAt     string `json:"verifiedAt,omitempty"`
	VerifiedBy     string `json:"verifiedBy,omitempty"`
	AttestationUID string `json:"attestationUID,omitempty"`
}

type ProjectMilestone struct {
	UID               string             `json:"uid"`
	RefUID            string             `json:"refUID,omitempty"`
	ChainID           ChainRef           `json:"chainId,omitempty"`
	Recipient         string             `json:"recipient,omitempty"`
	Attester          string             `json:"attester,omitempty"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	DueDate           string             `json:"dueDate,omitempty"`
	EndsAt            *UnixRef           `json:"endsAt,omitempty"`
	Status            Status             `json:"status"`
	CreatedAt         string             `json:"createdAt"`
	CompletionDetails *CompletionDetails `json:"completionDetails,omitempty"`
	Data              *AttestationData   `json:"data,omitempty"`
}

// GrantRef is the grant a grant milestone or update belongs to.
type GrantRef struct {
	UID           string `json:"uid"`
	Title         string `json:"title,omitempty"`
	CommunityName string `json:"communityName,omitempty"`
	CommunitySlug string `json:"communitySlug,omitempty"`
}

type GrantMilestone struct {
	UID                 string               `json:"uid"`
	ProgramID           string               `json:"programId,omitempty"`
	ChainID             ChainRef             `json:"chainId"`
	Recipient           string               `json:"recipient,omitempty"`
	Attester            string               `json:"attester,omitempty"`
	Title               string               `json:"title"`
	Description         string               `json:"description"`
	DueDate             string               `json:"dueDate,omitempty"`
	EndsAt              *UnixRef             `json:"endsAt,omitempty"`
	Status              Status               `json:"status"`
	CreatedAt           string               `json:"createdAt"`
	CompletionDetails   *CompletionDetails   `json:"completionDetails,omitempty"`
	VerificationDetails *VerificationDetails `json:"verificationDetails,omitempty"`
	Grant               *GrantRef            `json:"grant,omitempty"`
	Data                *AttestationData     `json:"data,omitempty"`
}

type GrantUpdate struct {
	UID                  string           `json:"uid"`
	RefUID               string           `json:"refUID,omitempty"`
	ChainID              ChainRef         `json:"chainId,omitempty"`
	Recipient            string           `json:"recipient,omitempty"`
	Attester             string           `json:"attester,omitempty"`
	Title                string           `json:"title"`
	Text                 string           `json:"text"`
	ProofOfWork          string           `json:"proofOfWork,omitempty"`
	CompletionPercentage *float64         `json:"completionPercentage,omitempty"`
	CurrentStatus        string           `json:"currentStatus,omitempty"`
	StatusUpdatedAt      string           `json:"statusUpdatedAt,omitempty"`
	Verified             bool             `json:"verified,omitempty"`
	CreatedAt            string           `json:"createdAt"`
	Grant                *GrantRef        `json:"grant,omitempty"`
	Data                 *AttestationData `json:"data,omitempty"`
}

func (u *GrantUpdate) UnmarshalJSON(b []byte) error {
	type alias GrantUpdate
	aux := struct {
		*alias
		CompletionPercentage json.RawMessage `json:"completionPercentage,omitempty"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	u.CompletionPercentage = loosePercent(aux.CompletionPercentage)
	return nil
}

// ProjectImpact is an impact attestation reported by a project.
type ProjectImpact struct {
	UID         string           `json:"uid"`
	RefUID      string           `json:"refUID,omitempty"`
	ChainID     ChainRef         `json:"chainId,omitempty"`
	Recipient   string           `json:"recipient,omitempty"`
	Attester    string           `json:"attester,omitempty"`
	Title       string           `json:"work"`
	Description string           `json:"impact"`
	Proof       string           `json:"proof,omitempty"`
	StartedAt   *UnixRef         `json:"startedAt,omitempty"`
	CompletedAt *UnixRef         `json:"completedAt,omitempty"`
	CreatedAt   string           `json:"createdAt"`
	Data        *AttestationData `json:"data,omitempty"`
}
