package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collections owned by the upstream system of record.
const (
	CollectionUsers         = "registered_users"
	CollectionBilling       = "billing_records"
	CollectionConfigurators = "configurators"
)

// Document field names shared by the pipelines.
const (
	FieldTenant            = "white_label_company_name"
	FieldCreatedAt         = "created_at"
	FieldCompanyName       = "company_name"
	FieldTrialMode         = "trial_mode"
	FieldLimitResetDate    = "latest_monthly_conversation_limit_reset_date"
	FieldConversationCount = "current_monthly_conversation_count"
	FieldConversationLimit = "current_monthly_conversation_limit"
	FieldIsActive          = "is_active"
	FieldClientPrice       = "client_price"
	FieldProviderPrice     = "our_price"
	FieldPlanLimit         = "conversation_limit"
	FieldAssignableUsers   = "available_users"
	FieldUserEmail         = "current_user_email"
)

// RegisteredUser is one end customer of a tenant. Pointer fields are optional in the store.
type RegisteredUser struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Tenant            string             `bson:"white_label_company_name"`
	CreatedAt         *time.Time         `bson:"created_at,omitempty"`
	TrialMode         bool               `bson:"trial_mode"`
	LimitResetDate    *time.Time         `bson:"latest_monthly_conversation_limit_reset_date"`
	ConversationCount *int64             `bson:"current_monthly_conversation_count,omitempty"`
	ConversationLimit *int64             `bson:"current_monthly_conversation_limit,omitempty"`
	CompanyName       string             `bson:"company_name"`
	Email             string             `bson:"email,omitempty"`
	PhoneNumber       string             `bson:"phone_number,omitempty"`
}

// BillingRecord is one billed relationship for a client company under a tenant.
type BillingRecord struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Tenant            string             `bson:"white_label_company_name"`
	CompanyName       string             `bson:"company_name"`
	CreatedAt         time.Time          `bson:"created_at"`
	IsActive          bool               `bson:"is_active"`
	ClientPrice       float64            `bson:"client_price"`
	ProviderPrice     float64            `bson:"our_price"`
	ConversationLimit int64              `bson:"conversation_limit"`
}

// Configurator is one team-member account under a tenant.
type Configurator struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Tenant           string             `bson:"white_label_company_name"`
	AssignableUsers  []string           `bson:"available_users,omitempty"`
	CurrentUserEmail string             `bson:"current_user_email"`
}
