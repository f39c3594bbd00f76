package models

import (
	"encoding/json"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/google/uuid"
)

// EdgeRecordModel holds the columns shared by all synchronized records
type EdgeRecordModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedTime int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func rawInfo(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// AssetModel is the persistence model for assets
type AssetModel struct {
	EdgeRecordModel
	CustomerID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Name           string    `gorm:"type:varchar(255);not null"`
	Type           string    `gorm:"type:varchar(255);not null"`
	Label          string    `gorm:"type:varchar(255);not null"`
	AdditionalInfo string    `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (AssetModel) TableName() string {
	return "assets"
}

// ToDomain converts the model to a domain Asset
func (m *AssetModel) ToDomain() *edge.Asset {
	return &edge.Asset{
		ID:             m.ID,
		TenantID:       m.TenantID,
		CustomerID:     m.CustomerID,
		CreatedTime:    m.CreatedTime,
		Name:           m.Name,
		Type:           m.Type,
		Label:          m.Label,
		AdditionalInfo: rawInfo(m.AdditionalInfo),
	}
}

// AssetModelFromDomain creates a model from a domain Asset
func AssetModelFromDomain(a *edge.Asset) *AssetModel {
	return &AssetModel{
		EdgeRecordModel: EdgeRecordModel{ID: a.ID, TenantID: a.TenantID, CreatedTime: a.CreatedTime},
		CustomerID:      a.CustomerID,
		Name:            a.Name,
		Type:            a.Type,
		Label:           a.Label,
		AdditionalInfo:  string(a.AdditionalInfo),
	}
}

// CustomerModel is the persistence model for customers
type CustomerModel struct {
	EdgeRecordModel
	Title          string `gorm:"type:varchar(255);not null"`
	Country        string `gorm:"type:varchar(100)"`
	State          string `gorm:"type:varchar(100)"`
	City           string `gorm:"type:varchar(100)"`
	Address        string `gorm:"type:varchar(255)"`
	Address2       string `gorm:"type:varchar(255)"`
	Zip            string `gorm:"type:varchar(32)"`
	Phone          string `gorm:"type:varchar(64)"`
	Email          string `gorm:"type:varchar(255)"`
	AdditionalInfo string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the model to a domain Customer
func (m *CustomerModel) ToDomain() *edge.Customer {
	return &edge.Customer{
		ID:             m.ID,
		TenantID:       m.TenantID,
		CreatedTime:    m.CreatedTime,
		Title:          m.Title,
		Country:        m.Country,
		State:          m.State,
		City:           m.City,
		Address:        m.Address,
		Address2:       m.Address2,
		Zip:            m.Zip,
		Phone:          m.Phone,
		Email:          m.Email,
		AdditionalInfo: rawInfo(m.AdditionalInfo),
	}
}

// CustomerModelFromDomain creates a model from a domain Customer
func CustomerModelFromDomain(c *edge.Customer) *CustomerModel {
	return &CustomerModel{
		EdgeRecordModel: EdgeRecordModel{ID: c.ID, TenantID: c.TenantID, CreatedTime: c.CreatedTime},
		Title:           c.Title,
		Country:         c.Country,
		State:           c.State,
		City:            c.City,
		Address:         c.Address,
		Address2:        c.Address2,
		Zip:             c.Zip,
		Phone:           c.Phone,
		Email:           c.Email,
		AdditionalInfo:  string(c.AdditionalInfo),
	}
}

// EntityViewModel is the persistence model for entity views.
// An unbound view stores empty EntityType and a nil EntityID.
type EntityViewModel struct {
	EdgeRecordModel
	CustomerID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name           string     `gorm:"type:varchar(255);not null"`
	Type           string     `gorm:"type:varchar(255);not null"`
	EntityType     string     `gorm:"type:varchar(32)"`
	EntityID       *uuid.UUID `gorm:"type:uuid;index"`
	AdditionalInfo string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (EntityViewModel) TableName() string {
	return "entity_views"
}

// ToDomain converts the model to a domain EntityView
func (m *EntityViewModel) ToDomain() *edge.EntityView {
	v := &edge.EntityView{
		ID:             m.ID,
		TenantID:       m.TenantID,
		CustomerID:     m.CustomerID,
		CreatedTime:    m.CreatedTime,
		Name:           m.Name,
		Type:           m.Type,
		AdditionalInfo: rawInfo(m.AdditionalInfo),
	}
	if m.EntityID != nil && m.EntityType != "" {
		ref := edge.NewEntityID(edge.EntityType(m.EntityType), *m.EntityID)
		v.Entity = &ref
	}
	return v
}

// EntityViewModelFromDomain creates a model from a domain EntityView
func EntityViewModelFromDomain(v *edge.EntityView) *EntityViewModel {
	m := &EntityViewModel{
		EdgeRecordModel: EdgeRecordModel{ID: v.ID, TenantID: v.TenantID, CreatedTime: v.CreatedTime},
		CustomerID:      v.CustomerID,
		Name:            v.Name,
		Type:            v.Type,
		AdditionalInfo:  string(v.AdditionalInfo),
	}
	if v.Entity != nil {
		id := v.Entity.ID
		m.EntityType = string(v.Entity.Type)
		m.EntityID = &id
	}
	return m
}

// UserModel is the persistence model for users
type UserModel struct {
	EdgeRecordModel
	CustomerID     uuid.UUID `gorm:"type:uuid;not null;index"`
	Email          string    `gorm:"type:varchar(255);not null"`
	Authority      string    `gorm:"type:varchar(32);not null"`
	FirstName      string    `gorm:"type:varchar(255)"`
	LastName       string    `gorm:"type:varchar(255)"`
	AdditionalInfo string    `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the model to a domain User
func (m *UserModel) ToDomain() *edge.User {
	return &edge.User{
		ID:             m.ID,
		TenantID:       m.TenantID,
		CustomerID:     m.CustomerID,
		CreatedTime:    m.CreatedTime,
		Email:          m.Email,
		Authority:      edge.Authority(m.Authority),
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		AdditionalInfo: rawInfo(m.AdditionalInfo),
	}
}

// UserModelFromDomain creates a model from a domain User
func UserModelFromDomain(u *edge.User) *UserModel {
	return &UserModel{
		EdgeRecordModel: EdgeRecordModel{ID: u.ID, TenantID: u.TenantID, CreatedTime: u.CreatedTime},
		CustomerID:      u.CustomerID,
		Email:           u.Email,
		Authority:       string(u.Authority),
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		AdditionalInfo:  string(u.AdditionalInfo),
	}
}

// UserCredentialsModel is the persistence model for user credentials
type UserCredentialsModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Enabled       bool      `gorm:"not null"`
	Password      string    `gorm:"type:varchar(255)"`
	ActivateToken string    `gorm:"type:varchar(255);index"`
	ResetToken    string    `gorm:"type:varchar(255)"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UserCredentialsModel) TableName() string {
	return "user_credentials"
}

// ToDomain converts the model to domain UserCredentials
func (m *UserCredentialsModel) ToDomain() *edge.UserCredentials {
	return &edge.UserCredentials{
		ID:            m.ID,
		UserID:        m.UserID,
		Enabled:       m.Enabled,
		Password:      m.Password,
		ActivateToken: m.ActivateToken,
		ResetToken:    m.ResetToken,
	}
}

// UserCredentialsModelFromDomain creates a model from domain UserCredentials
func UserCredentialsModelFromDomain(tenantID uuid.UUID, c *edge.UserCredentials) *UserCredentialsModel {
	return &UserCredentialsModel{
		ID:            c.ID,
		TenantID:      tenantID,
		UserID:        c.UserID,
		Enabled:       c.Enabled,
		Password:      c.Password,
		ActivateToken: c.ActivateToken,
		ResetToken:    c.ResetToken,
	}
}
