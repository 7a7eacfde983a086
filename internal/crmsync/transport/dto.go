// Package transport defines the request/response DTOs for the lead sync
// HTTP surface.
package transport

import "conversa_backend/internal/crmsync/domain"

// UpsertLeadRequest triggers a synchronous lead upsert. Omitted fields are
// unknown and never overwrite existing CRM data.
type UpsertLeadRequest struct {
	Phone         string `json:"phone" binding:"required"`
	FullName      string `json:"fullName"`
	Email         string `json:"email" binding:"omitempty,email"`
	ChannelOrigin string `json:"channelOrigin"`
	PropertyType  string `json:"propertyType"`
	Location      string `json:"location"`
	Budget        string `json:"budget"`
	Features      string `json:"features"`
	PropertyCode  string `json:"propertyCode"`
	Transcript    string `json:"transcript"`
}

// Input converts the request to the engine's input type.
func (r UpsertLeadRequest) Input() domain.UpsertInput {
	return domain.UpsertInput{
		Phone:         r.Phone,
		FullName:      r.FullName,
		Email:         r.Email,
		ChannelOrigin: r.ChannelOrigin,
		PropertyType:  r.PropertyType,
		Location:      r.Location,
		Budget:        r.Budget,
		Features:      r.Features,
		PropertyCode:  r.PropertyCode,
		Transcript:    r.Transcript,
	}
}

type UpsertLeadResponse struct {
	Phone     string `json:"phone"`
	ContactID string `json:"contactId"`
	DealID    string `json:"dealId"`
	Created   bool   `json:"created"`
	Score     int    `json:"score"`
}

type ActivityResponse struct {
	Phone string                 `json:"phone"`
	Items []domain.ActivityEntry `json:"items"`
	Total int                    `json:"total"`
}
