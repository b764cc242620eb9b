package models

import "time"

type TierID string

const (
	TierStarter TierID = "starter"
	TierPro     TierID = "pro"
	TierUltra   TierID = "ultra"
	TierMax     TierID = "max"
)

type GenerationStatus string

const (
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type PaymentStatus string

const (
	PaymentCreated         PaymentStatus = "created"
	PaymentPaid            PaymentStatus = "paid"
	PaymentFailed          PaymentStatus = "failed"
	PaymentRefundInitiated PaymentStatus = "refund_initiated"
	PaymentRefunded        PaymentStatus = "refunded"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type User struct {
	ID        int64
	Email     string
	APIToken  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSelections is the snapshot of what the user picked for a batch.
// Custom* fields are free-text overrides honoured only on the top tier.
type UserSelections struct {
	PetType          string   `json:"pet_type"`
	Breed            string   `json:"breed,omitempty"`
	PetName          string   `json:"pet_name,omitempty"`
	StyleID          string   `json:"style_id"`
	BackgroundID     string   `json:"background_id"`
	AccessoryIDs     []string `json:"accessory_ids,omitempty"`
	CustomStyle      string   `json:"custom_style,omitempty"`
	CustomBackground string   `json:"custom_background,omitempty"`
	CustomAccessory  string   `json:"custom_accessory,omitempty"`
}

// GenerationJob is one provider submission inside a request. Owned by exactly
// one GenerationRequest, never shared.
type GenerationJob struct {
	JobID           string    `json:"job_id"`
	Prompt          string    `json:"prompt"`
	Status          JobStatus `json:"status"`
	ReferenceImages []string  `json:"reference_images"`
	ImageURL        string    `json:"image_url,omitempty"`
}

type GenerationRequest struct {
	ID             string
	UserID         int64
	SubscriptionID int64
	Selections     UserSelections
	Status         GenerationStatus
	Jobs           []GenerationJob
	ImageURLs      []string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PaymentMetadata is the reconciliation audit trail kept on a payment.
// SubscriptionID, once set, is never overwritten; it is the idempotency guard
// against duplicate subscription creation from replayed webhooks.
type PaymentMetadata struct {
	SubscriptionID       int64          `json:"subscription_id,omitempty"`
	PlanSnapshot         *Plan          `json:"plan_snapshot,omitempty"`
	GenerationAllocation map[string]int `json:"generation_allocation,omitempty"`
	ProviderMethod       string         `json:"provider_method,omitempty"`
	SyncedAt             *time.Time     `json:"synced_at,omitempty"`
	FailureReason        string         `json:"failure_reason,omitempty"`
	RawFailurePayload    string         `json:"raw_failure_payload,omitempty"`
}

type Payment struct {
	ID                int64
	OrderID           string
	UserID            int64
	PlanID            int64
	Currency          string
	Amount            int
	Status            PaymentStatus
	ProviderPaymentID string
	Metadata          PaymentMetadata
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Subscription struct {
	ID              int64
	UserID          int64
	PlanID          int64
	Tier            TierID
	ImagesTotal     int
	ImagesRemaining int
	Status          SubscriptionStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Plan is the purchasable commerce row for a tier. Resource parameters for a
// tier (resolution, steps, ...) live in the plan resolver, not here.
type Plan struct {
	ID              int64     `json:"id"`
	Tier            TierID    `json:"tier"`
	Title           string    `json:"title"`
	Currency        string    `json:"currency"`
	PriceMinorUnits int       `json:"price_minor_units"`
	ImagesTotal     int       `json:"images_total"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}
