package domain

import (
	"context"

	"github.com/smallbiznis/purchasesync/internal/ident"
)

// Raw reference records as read from their tables. Empty identifier strings
// mean the field was absent.

type Supplier struct {
	ID             string
	Name           *string
	SupplierTypeID string
	Source         *string
	AreaOfficeID   string
	Code           *string
}

type CollectionPoint struct {
	ID           string
	Name         *string
	AreaOfficeID string
	PlantID      string
	IsMCC        *bool
	Latitude     *float64
	Longitude    *float64
}

type AreaOffice struct {
	ID   string
	Name *string
}

type SupplierType struct {
	ID          string
	Name        *string
	Description *string
}

// Repository loads full snapshots of the reference tables.
type Repository interface {
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	ListCollectionPoints(ctx context.Context) ([]CollectionPoint, error)
	ListAreaOffices(ctx context.Context) ([]AreaOffice, error)
	ListSupplierTypes(ctx context.Context) ([]SupplierType, error)
}

type SupplierRef struct {
	Name           *string
	Source         *string
	Code           *string
	SupplierTypeID *ident.ID
	AreaOfficeID   *ident.ID
}

type CollectionPointRef struct {
	Name         *string
	AreaOfficeID *ident.ID
	PlantID      *ident.ID
	IsMCC        *bool
	Latitude     *float64
	Longitude    *float64
}

type AreaOfficeRef struct {
	Name *string
}

type SupplierTypeRef struct {
	Name        *string
	Description *string
}

// Snapshot is an immutable, keyed view of every reference table for one run.
type Snapshot struct {
	Suppliers        map[ident.ID]SupplierRef
	CollectionPoints map[ident.ID]CollectionPointRef
	AreaOffices      map[ident.ID]AreaOfficeRef
	SupplierTypes    map[ident.ID]SupplierTypeRef

	// Skipped counts reference rows dropped for a missing or malformed key.
	Skipped int
}

func (s *Snapshot) Supplier(id *ident.ID) (SupplierRef, bool) {
	if s == nil || id == nil {
		return SupplierRef{}, false
	}
	ref, ok := s.Suppliers[*id]
	return ref, ok
}

func (s *Snapshot) CollectionPoint(id *ident.ID) (CollectionPointRef, bool) {
	if s == nil || id == nil {
		return CollectionPointRef{}, false
	}
	ref, ok := s.CollectionPoints[*id]
	return ref, ok
}

func (s *Snapshot) AreaOffice(id *ident.ID) (AreaOfficeRef, bool) {
	if s == nil || id == nil {
		return AreaOfficeRef{}, false
	}
	ref, ok := s.AreaOffices[*id]
	return ref, ok
}

func (s *Snapshot) SupplierType(id *ident.ID) (SupplierTypeRef, bool) {
	if s == nil || id == nil {
		return SupplierTypeRef{}, false
	}
	ref, ok := s.SupplierTypes[*id]
	return ref, ok
}
