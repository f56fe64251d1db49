package handler

import (
	"time"

	membershipmodels "taskguard/internal/membership/models"
	"taskguard/internal/organization/models"
)

type OrganizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Role        string    `json:"role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type OrganizationListResponse struct {
	Organizations []*OrganizationResponse `json:"organizations"`
	Count         int                     `json:"count"`
}

type MemberResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

type MemberListResponse struct {
	Members []*MemberResponse `json:"members"`
	Count   int               `json:"count"`
}

func toOrganizationResponse(org *models.Organization, role string) *OrganizationResponse {
	return &OrganizationResponse{
		ID:          org.ID.String(),
		Name:        org.Name,
		Description: org.Description,
		Role:        role,
		CreatedAt:   org.CreatedAt,
		UpdatedAt:   org.UpdatedAt,
	}
}

func toOrganizationListResponse(orgs []*models.WithRole) *OrganizationListResponse {
	out := make([]*OrganizationResponse, len(orgs))
	for i, o := range orgs {
		out[i] = toOrganizationResponse(&o.Organization, o.Role.String())
	}
	return &OrganizationListResponse{Organizations: out, Count: len(out)}
}

func toMembershipResponse(m *membershipmodels.Membership) *MemberResponse {
	return &MemberResponse{
		UserID:   m.UserID.String(),
		Role:     m.Role.String(),
		JoinedAt: m.JoinedAt,
	}
}

func toMemberListResponse(members []*models.Member) *MemberListResponse {
	out := make([]*MemberResponse, len(members))
	for i, m := range members {
		out[i] = &MemberResponse{
			UserID:    m.UserID.String(),
			Email:     m.Email,
			FirstName: m.FirstName,
			LastName:  m.LastName,
			Role:      m.Role.String(),
			JoinedAt:  m.JoinedAt,
		}
	}
	return &MemberListResponse{Members: out, Count: len(out)}
}
