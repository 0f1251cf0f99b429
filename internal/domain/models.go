package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SemanticID classifies a stage as in progress, success or failure
type SemanticID string

const (
	SemanticInProgress SemanticID = "P"
	SemanticSuccess    SemanticID = "S"
	SemanticFailure    SemanticID = "F"
)

// IsValid checks if the semantic id is one of the closed set
func (s SemanticID) IsValid() bool {
	switch s {
	case SemanticInProgress, SemanticSuccess, SemanticFailure:
		return true
	}
	return false
}

// ChangeType is the kind of a history entry
type ChangeType string

const (
	ChangeTypeCreate      ChangeType = "CREATE"
	ChangeTypeUpdate      ChangeType = "UPDATE"
	ChangeTypeDelete      ChangeType = "DELETE"
	ChangeTypeStageChange ChangeType = "STAGE_CHANGE"
	ChangeTypeFileAdded   ChangeType = "FILE_ADDED"
)

// ParticipantType is the role of a participant on a deal
type ParticipantType string

const (
	ParticipantTypeParticipant ParticipantType = "PARTICIPANT"
	ParticipantTypeObserver    ParticipantType = "OBSERVER"
	ParticipantTypeApprover    ParticipantType = "APPROVER"
)

// IsValid checks if the participant type is known
func (p ParticipantType) IsValid() bool {
	switch p {
	case ParticipantTypeParticipant, ParticipantTypeObserver, ParticipantTypeApprover:
		return true
	}
	return false
}

// FileType categorizes documents attached to a deal
type FileType string

const (
	FileTypeQuote         FileType = "QUOTE"
	FileTypeInvoice       FileType = "INVOICE"
	FileTypeContract      FileType = "CONTRACT"
	FileTypeSpecification FileType = "SPECIFICATION"
	FileTypeOther         FileType = "OTHER"
)

func (f FileType) IsValid() bool {
	switch f {
	case FileTypeQuote, FileTypeInvoice, FileTypeContract, FileTypeSpecification, FileTypeOther:
		return true
	}
	return false
}

// DealType is the commercial kind of a deal
type DealType string

const (
	DealTypeSale        DealType = "SALE"
	DealTypePartnership DealType = "PARTNERSHIP"
	DealTypeService     DealType = "SERVICE"
	DealTypeCustom      DealType = "CUSTOM"
)

func (d DealType) IsValid() bool {
	switch d {
	case DealTypeSale, DealTypePartnership, DealTypeService, DealTypeCustom:
		return true
	}
	return false
}

// Defaults applied when a deal or product omits them
const (
	DefaultCurrency    = "RUB"
	DefaultProbability = 50
	DefaultUnit        = "шт"
)

// ErrHistoryImmutable is returned when something tries to rewrite a history row
var ErrHistoryImmutable = errors.New("deal history entries are immutable")

// PipelineSettings is the single configuration row of the pipeline.
// DefaultFunnelID is the authoritative default funnel pointer.
type PipelineSettings struct {
	ID              int64  `gorm:"primaryKey;autoIncrement:false"`
	DefaultFunnelID *int64 `gorm:"column:default_funnel_id"`
	UpdatedAt       time.Time
}

// PipelineSettingsID is the primary key of the only settings row
const PipelineSettingsID int64 = 1

func (PipelineSettings) TableName() string {
	return "pipeline_settings"
}

// Funnel is a named pipeline of ordered stages.
// IsDefault mirrors PipelineSettings.DefaultFunnelID and is written in the same transaction.
type Funnel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"type:varchar(200);not null;uniqueIndex"`
	Description string `gorm:"type:text"`
	IsDefault   bool   `gorm:"not null"`
	IsActive    bool   `gorm:"not null"`
	CreatedBy   *int64 `gorm:"column:created_by"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stage is one ordered step of a funnel
type Stage struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	FunnelID    int64      `gorm:"not null;uniqueIndex:idx_deal_stages_funnel_key;uniqueIndex:idx_deal_stages_funnel_order"`
	StageKey    string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_deal_stages_funnel_key"`
	Name        string     `gorm:"type:varchar(100);not null"`
	Label       string     `gorm:"type:varchar(100)"`
	TextColor   string     `gorm:"type:varchar(50)"`
	BgColor     string     `gorm:"type:varchar(50)"`
	BorderColor string     `gorm:"type:varchar(50)"`
	OrderIndex  int        `gorm:"not null;uniqueIndex:idx_deal_stages_funnel_order"`
	IsSystem    bool       `gorm:"not null"`
	SemanticID  SemanticID `gorm:"type:varchar(1);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Stage) TableName() string {
	return "deal_stages"
}

// StageMetrics is a recomputable aggregate cache for one stage
type StageMetrics struct {
	ID                int64           `gorm:"primaryKey;autoIncrement"`
	StageID           int64           `gorm:"not null;uniqueIndex"`
	DealsCount        int             `gorm:"not null"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	AvgDaysInStage    float64         `gorm:"not null"`
	ConversionPercent float64         `gorm:"not null"`
	RefreshedAt       *time.Time
}

func (StageMetrics) TableName() string {
	return "stage_metrics"
}

// Deal is a trackable opportunity placed on one stage of one funnel
type Deal struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement"`
	DealNumber         string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Title              string          `gorm:"type:varchar(200);not null"`
	Description        string          `gorm:"type:text"`
	DealType           DealType        `gorm:"type:varchar(20);not null"`
	FunnelID           int64           `gorm:"not null;index"`
	StageID            int64           `gorm:"not null;index"`
	Amount             decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Currency           string          `gorm:"type:varchar(3);not null"`
	IsManualAmount     bool            `gorm:"not null"`
	ProbabilityPercent int             `gorm:"not null"`
	TaxValue           decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	StartDate          *time.Time      `gorm:"type:date"`
	CloseDate          *time.Time      `gorm:"type:date"`
	ResponsibleUserID  int64           `gorm:"not null;index"`
	CompanyID          *int64
	PrimaryContactID   *int64
	IsClosed           bool `gorm:"not null"`
	IsPublic           bool `gorm:"not null"`
	IsNew              bool `gorm:"not null"`
	IsRecurring        bool `gorm:"not null"`
	RecurrencePattern  string `gorm:"type:varchar(100)"`
	SourceID           *int64
	SourceDescription  string `gorm:"type:text"`
	UTMSource          string `gorm:"type:varchar(100);column:utm_source"`
	UTMMedium          string `gorm:"type:varchar(100);column:utm_medium"`
	UTMCampaign        string `gorm:"type:varchar(100);column:utm_campaign"`
	CreatedBy          int64  `gorm:"not null"`
	ModifiedBy         int64  `gorm:"not null"`
	MovedBy            *int64
	MovedAt            *time.Time
	ClosedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DealProduct is a priced line item of a deal
type DealProduct struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	DealID          int64           `gorm:"not null;index"`
	Name            string          `gorm:"type:varchar(200);not null"`
	Description     string          `gorm:"type:text"`
	SKU             string          `gorm:"type:varchar(100);column:sku"`
	Price           decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Quantity        decimal.Decimal `gorm:"type:decimal(15,3);not null"`
	Unit            string          `gorm:"type:varchar(20);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	TaxPercent      decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	LineTotal       decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	AddedBy         int64           `gorm:"not null"`
	AddedAt         time.Time       `gorm:"not null"`
}

// DealHistoryEntry is an immutable record of one change to a deal
type DealHistoryEntry struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	DealID     int64      `gorm:"not null;index"`
	FieldName  string     `gorm:"type:varchar(100);not null"`
	OldValue   *string    `gorm:"type:text"`
	NewValue   *string    `gorm:"type:text"`
	ChangeType ChangeType `gorm:"type:varchar(20);not null"`
	ChangedBy  int64      `gorm:"not null"`
	ChangedAt  time.Time  `gorm:"not null;index"`
}

func (DealHistoryEntry) TableName() string {
	return "deal_history"
}

// BeforeUpdate keeps the history log append-only
func (DealHistoryEntry) BeforeUpdate(*gorm.DB) error {
	return ErrHistoryImmutable
}

// DealParticipant links a contact or a user to a deal.
// NULLs never collide in the unique indexes, so each index only bites for its own kind.
type DealParticipant struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	DealID          int64           `gorm:"not null;uniqueIndex:idx_deal_participants_contact;uniqueIndex:idx_deal_participants_user"`
	ContactID       *int64          `gorm:"uniqueIndex:idx_deal_participants_contact"`
	UserID          *int64          `gorm:"uniqueIndex:idx_deal_participants_user"`
	ParticipantType ParticipantType `gorm:"type:varchar(20);not null"`
	JoinedAt        time.Time       `gorm:"not null"`
}

// DealFile is metadata about a document attached to a deal.
// Quotes are versioned through ParentVersionID.
type DealFile struct {
	ID              int64    `gorm:"primaryKey;autoIncrement"`
	DealID          int64    `gorm:"not null;index"`
	FileName        string   `gorm:"type:varchar(255);not null"`
	FilePath        string   `gorm:"type:varchar(500);not null"`
	FileSize        int64    `gorm:"not null"`
	MimeType        string   `gorm:"type:varchar(100)"`
	FileType        FileType `gorm:"type:varchar(20);not null"`
	VersionNumber   int      `gorm:"not null"`
	ParentVersionID *int64
	IsCurrent       bool      `gorm:"not null"`
	IsDeleted       bool      `gorm:"not null"`
	UploadedBy      int64     `gorm:"not null"`
	UploadedAt      time.Time `gorm:"not null"`
}

// DealComment is a (possibly threaded) note on a deal
type DealComment struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	DealID          int64  `gorm:"not null;index"`
	ParentCommentID *int64 `gorm:"index"`
	AuthorID        int64  `gorm:"not null"`
	Content         string `gorm:"type:text;not null"`
	IsDeleted       bool   `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NumberSequence tracks the last allocated number per prefix
type NumberSequence struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Prefix     string `gorm:"type:varchar(20);not null;uniqueIndex"`
	LastNumber int64  `gorm:"not null"`
	UpdatedAt  time.Time
}

// User is a read-only directory entry
type User struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	DisplayName string `gorm:"type:varchar(200);not null"`
	Email       string `gorm:"type:varchar(255)"`
	IsActive    bool   `gorm:"not null"`
}

// Contact is a read-only directory entry
type Contact struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	FirstName string `gorm:"type:varchar(100);not null"`
	LastName  string `gorm:"type:varchar(100)"`
	Email     string `gorm:"type:varchar(255)"`
	Phone     string `gorm:"type:varchar(50)"`
}

// FullName returns the contact's display name
func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
