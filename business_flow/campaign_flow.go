// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/amirphl/Susanoo/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CampaignFlow handles the campaign business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error)
	SetCampaignActive(ctx context.Context, req *dto.SetCampaignActiveRequest, metadata *ClientMetadata) (*dto.SetCampaignActiveResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	customerRepo repository.CustomerRepository
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	customerRepo repository.CustomerRepository,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		customerRepo: customerRepo,
		db:           db,
	}
}

// CreateCampaign creates a campaign for grouping schedules
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	campaign := &models.Campaign{
		CustomerID: customer.ID,
		Title:      req.Title,
		GroupIDs:   pq.StringArray(req.GroupIDs),
		IsActive:   utils.ToPtr(true),
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.campaignRepo.Save(txCtx, campaign)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	return &dto.CreateCampaignResponse{
		Message:   "Campaign created successfully",
		UUID:      campaign.UUID.String(),
		CreatedAt: campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// ListCampaigns returns the customer's campaigns, newest first
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	limit, offset, err := pagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Invalid pagination", err)
	}

	filter := models.CampaignFilter{CustomerID: &customer.ID}
	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}
	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to count campaigns", err)
	}

	items := make([]dto.CampaignDTO, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, dto.CampaignDTO{
			UUID:      c.UUID.String(),
			Title:     c.Title,
			GroupIDs:  c.GroupIDs,
			IsActive:  utils.IsTrue(c.IsActive),
			CreatedAt: c.CreatedAt,
		})
	}

	return &dto.ListCampaignsResponse{
		Message: "Campaigns retrieved successfully",
		Items:   items,
		Total:   total,
	}, nil
}

// SetCampaignActive toggles a campaign. Member schedules are untouched; the
// recurrence runner suppresses them while the campaign is off.
func (s *CampaignFlowImpl) SetCampaignActive(ctx context.Context, req *dto.SetCampaignActiveRequest, metadata *ClientMetadata) (*dto.SetCampaignActiveResponse, error) {
	customer, err := getActiveCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	campaign, err := s.campaignRepo.ByUUID(ctx, req.UUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	if campaign.CustomerID != customer.ID {
		return nil, NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Campaign access denied", ErrCampaignAccessDenied)
	}

	if err := s.campaignRepo.SetActive(ctx, campaign.ID, req.IsActive); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to update campaign", err)
	}

	msg := "Campaign deactivated successfully"
	if req.IsActive {
		msg = "Campaign activated successfully"
	}
	return &dto.SetCampaignActiveResponse{Message: msg}, nil
}
