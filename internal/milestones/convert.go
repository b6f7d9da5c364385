// Package milestones normalizes a project's indexer collections into a single
// roadmap list and provides the ordering and filtering applied to it.
//
// Everything here is pure: inputs are never mutated and no I/O is performed.
package milestones

import (
	"gaproadmap/internal/domain"
)

// Convert maps every record of resp to one UnifiedMilestone. The result is not
// ordered; use Sort before presenting it.
func Convert(resp domain.UpdatesResponse) []domain.UnifiedMilestone {
	out := make([]domain.UnifiedMilestone, 0, resp.Len())
	for i := range resp.ProjectUpdates {
		out = append(out, fromProjectUpdate(resp.ProjectUpdates[i]))
	}
	for i := range resp.ProjectMilestones {
		out = append(out, fromProjectMilestone(resp.ProjectMilestones[i]))
	}
	for i := range resp.GrantMilestones {
		out = append(out, fromGrantMilestone(resp.GrantMilestones[i]))
	}
	for i := range resp.GrantUpdates {
		out = append(out, fromGrantUpdate(resp.GrantUpdates[i]))
	}
	for i := range resp.ProjectImpacts {
		out = append(out, fromProjectImpact(resp.ProjectImpacts[i]))
	}
	return out
}

func fromProjectUpdate(u domain.ProjectUpdate) domain.UnifiedMilestone {
	return domain.UnifiedMilestone{
		UID:         u.UID,
		Type:        domain.TypeActivity,
		Title:       u.Title,
		Description: u.Description,
		ChainID:     u.ChainID.Int(),
		RefUID:      u.RefUID,
		CreatedAt:   u.CreatedAt,
		Attester:    ResolveAttester(u.Recipient, u.Attester, u.Data),
		Source:      domain.Source{ProjectUpdate: &u},
	}
}

func fromProjectMilestone(m domain.ProjectMilestone) domain.UnifiedMilestone {
	var completed *domain.Completion
	if m.Status.IsCompleted() {
		completed = &domain.Completion{CreatedAt: m.CreatedAt}
		if d := m.CompletionDetails; d != nil {
			completed.CreatedAt = d.CompletedAt
			completed.Data = domain.CompletionData{
				Reason:      d.Description,
				ProofOfWork: d.ProofOfWork,
			}
		}
	}
	return domain.UnifiedMilestone{
		UID:         m.UID,
		Type:        domain.TypeMilestone,
		Title:       m.Title,
		Description: m.Description,
		ChainID:     m.ChainID.Int(),
		RefUID:      m.RefUID,
		CreatedAt:   m.CreatedAt,
		EndsAt:      ResolveEndsAt(m.DueDate, m.Data, m.EndsAt),
		Completed:   completed,
		Attester:    ResolveAttester(m.Recipient, m.Attester, m.Data),
		Source:      domain.Source{ProjectMilestone: &m},
	}
}

func fromGrantMilestone(m domain.GrantMilestone) domain.UnifiedMilestone {
	chainID := m.ChainID.Int()
	endsAt := ResolveEndsAt(m.DueDate, m.Data, m.EndsAt)

	var completed *domain.Completion
	verified := []domain.Verification{}
	if m.Status.IsCompleted() {
		completed = grantCompletion(m)
		if m.Status.IsVerified() && m.VerificationDetails != nil {
			v := m.VerificationDetails
			verified = append(verified, domain.Verification{
				Attester: v.VerifiedBy,
				Reason:   v.Description,
				UID:      v.AttestationUID,
			})
		}
	}

	var grant domain.GrantRef
	if m.Grant != nil {
		grant = *m.Grant
	}

	return domain.UnifiedMilestone{
		UID:         m.UID,
		Type:        domain.TypeGrant,
		Title:       m.Title,
		Description: m.Description,
		ChainID:     chainID,
		RefUID:      grant.UID,
		CreatedAt:   m.CreatedAt,
		EndsAt:      endsAt,
		Completed:   completed,
		Attester:    ResolveAttester(m.Recipient, m.Attester, m.Data),
		Source: domain.Source{GrantMilestone: &domain.GrantMilestoneSource{
			Milestone: domain.GrantMilestoneView{
				UID:         m.UID,
				ChainID:     chainID,
				Title:       m.Title,
				Description: m.Description,
				EndsAt:      endsAt,
				Status:      m.Status,
				Completed:   completed,
				Verified:    verified,
			},
			Grant: grant,
		}},
	}
}

// grantCompletion builds the completion for a completed or verified grant
// milestone. Without completion details the verification time, then the
// record's creation time, stand in for the completion time.
func grantCompletion(m domain.GrantMilestone) *domain.Completion {
	c := &domain.Completion{CreatedAt: m.CreatedAt}
	if v := m.VerificationDetails; v != nil && v.VerifiedAt != "" {
		c.CreatedAt = v.VerifiedAt
	}
	d := m.CompletionDetails
	if d == nil {
		return c
	}
	c.CreatedAt = d.CompletedAt
	c.Data = domain.CompletionData{
		Reason:      d.Description,
		ProofOfWork: d.ProofOfWork,
	}
	if m.Status.IsVerified() {
		c.Data.CompletionPercentage = d.CompletionPercentage
		c.Data.Deliverables = d.Deliverables
	}
	return c
}

func fromGrantUpdate(u domain.GrantUpdate) domain.UnifiedMilestone {
	refUID := u.RefUID
	if refUID == "" && u.Grant != nil {
		refUID = u.Grant.UID
	}
	return domain.UnifiedMilestone{
		UID:         u.UID,
		Type:        domain.TypeGrantUpdate,
		Title:       u.Title,
		Description: u.Text,
		ChainID:     u.ChainID.Int(),
		RefUID:      refUID,
		CreatedAt:   u.CreatedAt,
		Attester:    ResolveAttester(u.Recipient, u.Attester, u.Data),
		Source:      domain.Source{GrantUpdate: &u},
	}
}

func fromProjectImpact(p domain.ProjectImpact) domain.UnifiedMilestone {
	description := p.Description
	if description == "" {
		description = p.Proof
	}
	var endsAt *int64
	if v := p.CompletedAt.Value(); v > 0 {
		s := normalizeUnix(v)
		endsAt = &s
	}
	return domain.UnifiedMilestone{
		UID:         p.UID,
		Type:        domain.TypeImpact,
		Title:       p.Title,
		Description: description,
		ChainID:     p.ChainID.Int(),
		RefUID:      p.RefUID,
		CreatedAt:   p.CreatedAt,
		EndsAt:      endsAt,
		Attester:    ResolveAttester(p.Recipient, p.Attester, p.Data),
		Source:      domain.Source{ProjectImpact: &p},
	}
}

// ResolveAttester picks the first non-empty of recipient, attester and
// data.attester.
func ResolveAttester(recipient, attester string, data *domain.AttestationData) string {
	switch {
	case recipient != "":
		return recipient
	case attester != "":
		return attester
	case data != nil:
		return data.Attester
	}
	return ""
}
