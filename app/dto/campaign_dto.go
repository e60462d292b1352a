package dto

import "time"

// CreateCampaignRequest represents the request to create a campaign
type CreateCampaignRequest struct {
	CustomerID uint     `json:"-"`
	Title      string   `json:"title" validate:"required,max=255"`
	GroupIDs   []string `json:"group_ids,omitempty" validate:"omitempty,dive,required"`
}

// CreateCampaignResponse represents the response to create a campaign
type CreateCampaignResponse struct {
	Message   string `json:"message"`
	UUID      string `json:"uuid"`
	CreatedAt string `json:"created_at"`
}

// CampaignDTO represents one campaign in list responses
type CampaignDTO struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	GroupIDs  []string  `json:"group_ids,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ListCampaignsRequest represents the request to list campaigns
type ListCampaignsRequest struct {
	CustomerID uint `json:"-"`
	Page       int  `json:"page" validate:"omitempty,min=1"`
	PageSize   int  `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListCampaignsResponse represents the response to list campaigns
type ListCampaignsResponse struct {
	Message string        `json:"message"`
	Items   []CampaignDTO `json:"items"`
	Total   int64         `json:"total"`
}

// SetCampaignActiveRequest represents the request to activate or deactivate a campaign
type SetCampaignActiveRequest struct {
	UUID       string `json:"-"`
	CustomerID uint   `json:"-"`
	IsActive   bool   `json:"is_active"`
}

// SetCampaignActiveResponse represents the response to activate or deactivate a campaign
type SetCampaignActiveResponse struct {
	Message string `json:"message"`
}
