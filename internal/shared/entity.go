package shared

import "time"

// DefaultCompanyID is the single company this deployment books into.
const DefaultCompanyID int64 = 1

// Identity carries the surrogate key of a persisted entity.
type Identity struct {
	ID int64 `json:"id"`
}

// AuditInfo records who created and last touched an entity.
type AuditInfo struct {
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy string     `json:"created_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	UpdatedBy string     `json:"updated_by,omitempty"`
}

// Stamp initialises creation fields.
func (a *AuditInfo) Stamp(by string, at time.Time) {
	a.CreatedAt = at
	a.CreatedBy = by
}

// Touch records a modification.
func (a *AuditInfo) Touch(by string, at time.Time) {
	a.UpdatedAt = &at
	a.UpdatedBy = by
}

// SoftDelete marks an entity as deleted without removing its row.
type SoftDelete struct {
	IsDeleted bool       `json:"is_deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

// MarkDeleted flags the entity as deleted.
func (s *SoftDelete) MarkDeleted(by string, at time.Time) {
	s.IsDeleted = true
	s.DeletedAt = &at
	s.DeletedBy = by
}

// CompanyScope ties an entity to a company.
type CompanyScope struct {
	CompanyID int64 `json:"company_id"`
}

// Versioned carries the optimistic concurrency token of a mutable entity.
type Versioned struct {
	Version int64 `json:"version"`
}

// Advance bumps the token after a successful mutation.
func (v *Versioned) Advance() {
	v.Version++
}
