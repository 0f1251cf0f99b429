package domain

// Funnel DTOs

type FunnelDTO struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsDefault   bool       `json:"isDefault"`
	IsActive    bool       `json:"isActive"`
	CreatedBy   *int64     `json:"createdBy,omitempty"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
	Stages      []StageDTO `json:"stages,omitempty"`
}

type StageDTO struct {
	ID          int64      `json:"id"`
	FunnelID    int64      `json:"funnelId"`
	StageKey    string     `json:"stageKey"`
	Name        string     `json:"name"`
	Label       string     `json:"label,omitempty"`
	TextColor   string     `json:"textColor,omitempty"`
	BgColor     string     `json:"bgColor,omitempty"`
	BorderColor string     `json:"borderColor,omitempty"`
	OrderIndex  int        `json:"orderIndex"`
	IsSystem    bool       `json:"isSystem"`
	SemanticID  SemanticID `json:"semanticId"`
}

type StageMetricsDTO struct {
	StageID           int64   `json:"stageId"`
	StageKey          string  `json:"stageKey"`
	StageName         string  `json:"stageName"`
	OrderIndex        int     `json:"orderIndex"`
	DealsCount        int     `json:"dealsCount"`
	TotalAmount       float64 `json:"totalAmount"`
	AvgDaysInStage    float64 `json:"avgDaysInStage"`
	ConversionPercent float64 `json:"conversionPercent"`
	RefreshedAt       *string `json:"refreshedAt,omitempty"`
}

type CreateFunnelRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"isDefault"`
	IsActive    *bool  `json:"isActive,omitempty"`
}

type UpdateFunnelRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty"`
	IsDefault   *bool   `json:"isDefault,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

type CreateStageRequest struct {
	StageKey    string     `json:"stageKey" validate:"required,max=50"`
	Name        string     `json:"name" validate:"required,max=100"`
	Label       string     `json:"label,omitempty" validate:"max=100"`
	TextColor   string     `json:"textColor,omitempty" validate:"max=50"`
	BgColor     string     `json:"bgColor,omitempty" validate:"max=50"`
	BorderColor string     `json:"borderColor,omitempty" validate:"max=50"`
	OrderIndex  *int       `json:"orderIndex,omitempty"`
	SemanticID  SemanticID `json:"semanticId,omitempty" validate:"omitempty,oneof=P S F"`
}

type UpdateStageRequest struct {
	Name        *string     `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Label       *string     `json:"label,omitempty" validate:"omitempty,max=100"`
	TextColor   *string     `json:"textColor,omitempty" validate:"omitempty,max=50"`
	BgColor     *string     `json:"bgColor,omitempty" validate:"omitempty,max=50"`
	BorderColor *string     `json:"borderColor,omitempty" validate:"omitempty,max=50"`
	SemanticID  *SemanticID `json:"semanticId,omitempty" validate:"omitempty,oneof=P S F"`
}

type ReorderStagesRequest struct {
	StageIDs []int64 `json:"stageIds" validate:"required,min=1"`
}

// Deal DTOs

type StageSummaryDTO struct {
	ID         int64      `json:"id"`
	StageKey   string     `json:"stageKey"`
	Name       string     `json:"name"`
	OrderIndex int        `json:"orderIndex"`
	SemanticID SemanticID `json:"semanticId"`
}

type FunnelSummaryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type DealDTO struct {
	ID                  int64                `json:"id"`
	DealNumber          string               `json:"dealNumber"`
	Title               string               `json:"title"`
	Description         string               `json:"description,omitempty"`
	DealType            DealType             `json:"dealType"`
	FunnelID            int64                `json:"funnelId"`
	StageID             int64                `json:"stageId"`
	Amount              float64              `json:"amount"`
	Currency            string               `json:"currency"`
	IsManualAmount      bool                 `json:"isManualAmount"`
	ProbabilityPercent  int                  `json:"probabilityPercent"`
	TaxValue            float64              `json:"taxValue"`
	StartDate           *string              `json:"startDate,omitempty"`
	CloseDate           *string              `json:"closeDate,omitempty"`
	ResponsibleUserID   int64                `json:"responsibleUserId"`
	ResponsibleUserName string               `json:"responsibleUserName,omitempty"`
	CompanyID           *int64               `json:"companyId,omitempty"`
	PrimaryContactID    *int64               `json:"primaryContactId,omitempty"`
	IsClosed            bool                 `json:"isClosed"`
	IsPublic            bool                 `json:"isPublic"`
	IsNew               bool                 `json:"isNew"`
	IsRecurring         bool                 `json:"isRecurring"`
	RecurrencePattern   string               `json:"recurrencePattern,omitempty"`
	SourceID            *int64               `json:"sourceId,omitempty"`
	SourceDescription   string               `json:"sourceDescription,omitempty"`
	UTMSource           string               `json:"utmSource,omitempty"`
	UTMMedium           string               `json:"utmMedium,omitempty"`
	UTMCampaign         string               `json:"utmCampaign,omitempty"`
	CreatedBy           int64                `json:"createdBy"`
	ModifiedBy          int64                `json:"modifiedBy"`
	MovedBy             *int64               `json:"movedBy,omitempty"`
	MovedAt             *string              `json:"movedAt,omitempty"`
	ClosedAt            *string              `json:"closedAt,omitempty"`
	CreatedAt           string               `json:"createdAt"`
	UpdatedAt           string               `json:"updatedAt"`
	Stage               *StageSummaryDTO     `json:"stage,omitempty"`
	Funnel              *FunnelSummaryDTO    `json:"funnel,omitempty"`
	Products            []DealProductDTO     `json:"products,omitempty"`
	Participants        []DealParticipantDTO `json:"participants,omitempty"`
	History             []DealHistoryDTO     `json:"history,omitempty"`
}

type DealProductDTO struct {
	ID              int64   `json:"id"`
	DealID          int64   `json:"dealId"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	SKU             string  `json:"sku,omitempty"`
	Price           float64 `json:"price"`
	Quantity        float64 `json:"quantity"`
	Unit            string  `json:"unit"`
	DiscountPercent float64 `json:"discountPercent"`
	TaxPercent      float64 `json:"taxPercent"`
	LineTotal       float64 `json:"lineTotal"`
	AddedBy         int64   `json:"addedBy"`
	AddedAt         string  `json:"addedAt"`
}

type DealHistoryDTO struct {
	ID         int64      `json:"id"`
	DealID     int64      `json:"dealId"`
	FieldName  string     `json:"fieldName"`
	OldValue   *string    `json:"oldValue"`
	NewValue   *string    `json:"newValue"`
	ChangeType ChangeType `json:"changeType"`
	ChangedBy  int64      `json:"changedBy"`
	ChangedAt  string     `json:"changedAt"`
}

type DealParticipantDTO struct {
	ID              int64           `json:"id"`
	DealID          int64           `json:"dealId"`
	ContactID       *int64          `json:"contactId,omitempty"`
	UserID          *int64          `json:"userId,omitempty"`
	DisplayName     string          `json:"displayName,omitempty"`
	ParticipantType ParticipantType `json:"participantType"`
	JoinedAt        string          `json:"joinedAt"`
}

type DealFileDTO struct {
	ID              int64    `json:"id"`
	DealID          int64    `json:"dealId"`
	FileName        string   `json:"fileName"`
	FilePath        string   `json:"filePath"`
	FileSize        int64    `json:"fileSize"`
	MimeType        string   `json:"mimeType,omitempty"`
	FileType        FileType `json:"fileType"`
	VersionNumber   int      `json:"versionNumber"`
	ParentVersionID *int64   `json:"parentVersionId,omitempty"`
	IsCurrent       bool     `json:"isCurrent"`
	UploadedBy      int64    `json:"uploadedBy"`
	UploadedAt      string   `json:"uploadedAt"`
}

type DealCommentDTO struct {
	ID              int64  `json:"id"`
	DealID          int64  `json:"dealId"`
	ParentCommentID *int64 `json:"parentCommentId,omitempty"`
	AuthorID        int64  `json:"authorId"`
	Content         string `json:"content"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// CreateDealRequest creates a deal. FunnelID and StageID fall back to the
// default funnel and its first stage.
type CreateDealRequest struct {
	Title              string   `json:"title" validate:"required,max=200"`
	Description        string   `json:"description,omitempty"`
	DealType           DealType `json:"dealType,omitempty" validate:"omitempty,oneof=SALE PARTNERSHIP SERVICE CUSTOM"`
	FunnelID           *int64   `json:"funnelId,omitempty"`
	StageID            *int64   `json:"stageId,omitempty"`
	Amount             *float64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Currency           string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	IsManualAmount     bool     `json:"isManualAmount"`
	ProbabilityPercent *int     `json:"probabilityPercent,omitempty" validate:"omitempty,min=0,max=100"`
	TaxValue           *float64 `json:"taxValue,omitempty" validate:"omitempty,gte=0"`
	StartDate          string   `json:"startDate,omitempty"`
	CloseDate          string   `json:"closeDate,omitempty"`
	ResponsibleUserID  *int64   `json:"responsibleUserId,omitempty"`
	CompanyID          *int64   `json:"companyId,omitempty"`
	PrimaryContactID   *int64   `json:"primaryContactId,omitempty"`
	IsPublic           bool     `json:"isPublic"`
	IsRecurring        bool     `json:"isRecurring"`
	RecurrencePattern  string   `json:"recurrencePattern,omitempty" validate:"max=100"`
	SourceID           *int64   `json:"sourceId,omitempty"`
	SourceDescription  string   `json:"sourceDescription,omitempty"`
	UTMSource          string   `json:"utmSource,omitempty" validate:"max=100"`
	UTMMedium          string   `json:"utmMedium,omitempty" validate:"max=100"`
	UTMCampaign        string   `json:"utmCampaign,omitempty" validate:"max=100"`
}

// UpdateDealRequest is a partial update; nil fields are left untouched.
// For nullable references a value of 0 clears the reference, and an empty
// date string clears the date.
type UpdateDealRequest struct {
	Title              *string   `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description        *string   `json:"description,omitempty"`
	DealType           *DealType `json:"dealType,omitempty" validate:"omitempty,oneof=SALE PARTNERSHIP SERVICE CUSTOM"`
	FunnelID           *int64    `json:"funnelId,omitempty"`
	StageID            *int64    `json:"stageId,omitempty"`
	Amount             *float64  `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Currency           *string   `json:"currency,omitempty" validate:"omitempty,len=3"`
	ProbabilityPercent *int      `json:"probabilityPercent,omitempty" validate:"omitempty,min=0,max=100"`
	IsManualAmount     *bool     `json:"isManualAmount,omitempty"`
	TaxValue           *float64  `json:"taxValue,omitempty" validate:"omitempty,gte=0"`
	StartDate          *string   `json:"startDate,omitempty"`
	CloseDate          *string   `json:"closeDate,omitempty"`
	CompanyID          *int64    `json:"companyId,omitempty"`
	PrimaryContactID   *int64    `json:"primaryContactId,omitempty"`
	ResponsibleUserID  *int64    `json:"responsibleUserId,omitempty" validate:"omitempty,gt=0"`
	IsClosed           *bool     `json:"isClosed,omitempty"`
	IsPublic           *bool     `json:"isPublic,omitempty"`
	IsNew              *bool     `json:"isNew,omitempty"`
	IsRecurring        *bool     `json:"isRecurring,omitempty"`
	RecurrencePattern  *string   `json:"recurrencePattern,omitempty" validate:"omitempty,max=100"`
	SourceID           *int64    `json:"sourceId,omitempty"`
	SourceDescription  *string   `json:"sourceDescription,omitempty"`
	UTMSource          *string   `json:"utmSource,omitempty" validate:"omitempty,max=100"`
	UTMMedium          *string   `json:"utmMedium,omitempty" validate:"omitempty,max=100"`
	UTMCampaign        *string   `json:"utmCampaign,omitempty" validate:"omitempty,max=100"`
}

type MoveDealRequest struct {
	StageID int64 `json:"stageId" validate:"required,gt=0"`
}

type AddDealProductRequest struct {
	Name            string  `json:"name" validate:"required,max=200"`
	Description     string  `json:"description,omitempty"`
	SKU             string  `json:"sku,omitempty" validate:"max=100"`
	Price           float64 `json:"price" validate:"gte=0"`
	Quantity        float64 `json:"quantity" validate:"gt=0"`
	Unit            string  `json:"unit,omitempty" validate:"max=20"`
	DiscountPercent float64 `json:"discountPercent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"taxPercent" validate:"gte=0,lte=999.99"`
}

type AddParticipantRequest struct {
	ContactID       *int64          `json:"contactId,omitempty"`
	UserID          *int64          `json:"userId,omitempty"`
	ParticipantType ParticipantType `json:"participantType,omitempty" validate:"omitempty,oneof=PARTICIPANT OBSERVER APPROVER"`
}

type AddDealFileRequest struct {
	FileName string   `json:"fileName" validate:"required,max=255"`
	FilePath string   `json:"filePath" validate:"required,max=500"`
	FileSize int64    `json:"fileSize" validate:"gte=0"`
	MimeType string   `json:"mimeType,omitempty" validate:"max=100"`
	FileType FileType `json:"fileType,omitempty" validate:"omitempty,oneof=QUOTE INVOICE CONTRACT SPECIFICATION OTHER"`
}

type AddDealCommentRequest struct {
	Content         string `json:"content" validate:"required"`
	ParentCommentID *int64 `json:"parentCommentId,omitempty"`
}

// DealFilters narrows deal listings
type DealFilters struct {
	FunnelID          *int64
	StageID           *int64
	ResponsibleUserID *int64
	IsClosed          *bool
	Search            string
}

// PaginatedResponse wraps list endpoints
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}
