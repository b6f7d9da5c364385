package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ResourceType is the kind of entity a permission check targets.
type ResourceType string

const (
	ResourceProject   ResourceType = "project"
	ResourceGrant     ResourceType = "grant"
	ResourceMilestone ResourceType = "milestone"
	ResourceProgram   ResourceType = "program"
	ResourceCommunity ResourceType = "community"
)

var ErrInvalidPermissionRequest = errors.New("invalid permission request")

type PermissionRequest struct {
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Action       string       `json:"action"`
	ChainID      int          `json:"chainId,omitempty"`
}

func (r PermissionRequest) Validate() error {
	switch ResourceType(strings.ToLower(string(r.ResourceType))) {
	case ResourceProject, ResourceGrant, ResourceMilestone, ResourceProgram, ResourceCommunity:
	default:
		return fmt.Errorf("%w: resource type %q", ErrInvalidPermissionRequest, r.ResourceType)
	}
	if strings.TrimSpace(r.ResourceID) == "" {
		return fmt.Errorf("%w: resource id is required", ErrInvalidPermissionRequest)
	}
	if strings.TrimSpace(r.Action) == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidPermissionRequest)
	}
	return nil
}

type PermissionDecision struct {
	Request PermissionRequest `json:"request"`
	Allowed bool              `json:"allowed"`
	Reason  string            `json:"reason,omitempty"`
}
