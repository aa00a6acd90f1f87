package service

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/purchasesync/internal/dimension/domain"
	"github.com/smallbiznis/purchasesync/internal/ident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	supplierA = "65a1f0c2e4b0a1b2c3d4e5a1"
	typeMilk  = "65a1f0c2e4b0a1b2c3d4e5b1"
	officeN   = "65a1f0c2e4b0a1b2c3d4e5c1"
	pointX    = "65a1f0c2e4b0a1b2c3d4e5d1"
	plantP    = "65a1f0c2e4b0a1b2c3d4e5e1"
)

func strPtr(s string) *string { return &s }

type fakeRepo struct {
	suppliers []domain.Supplier
	points    []domain.CollectionPoint
	offices   []domain.AreaOffice
	types     []domain.SupplierType
	err       error
}

func (f *fakeRepo) ListSuppliers(context.Context) ([]domain.Supplier, error) {
	return f.suppliers, f.err
}

func (f *fakeRepo) ListCollectionPoints(context.Context) ([]domain.CollectionPoint, error) {
	return f.points, nil
}

func (f *fakeRepo) ListAreaOffices(context.Context) ([]domain.AreaOffice, error) {
	return f.offices, nil
}

func (f *fakeRepo) ListSupplierTypes(context.Context) ([]domain.SupplierType, error) {
	return f.types, nil
}

func TestBuildNormalizesAndKeepsFirstDuplicate(t *testing.T) {
	snap := Build(zap.NewNop(),
		[]domain.Supplier{
			{ID: supplierA, Name: strPtr("first"), SupplierTypeID: typeMilk, AreaOfficeID: "garbage"},
			{ID: supplierA, Name: strPtr("second")},
			{ID: "not-an-id", Name: strPtr("broken")},
		},
		[]domain.CollectionPoint{{ID: pointX, AreaOfficeID: officeN, PlantID: plantP}},
		[]domain.AreaOffice{{ID: officeN, Name: strPtr("North")}},
		[]domain.SupplierType{{ID: typeMilk, Name: strPtr("Farmer")}},
	)

	require.Len(t, snap.Suppliers, 1)
	assert.Equal(t, 1, snap.Skipped)

	ref, ok := snap.Supplier(ident.Ptr(supplierA))
	require.True(t, ok)
	assert.Equal(t, "first", *ref.Name)
	assert.Nil(t, ref.AreaOfficeID)
	assert.True(t, ident.Equal(ident.Ptr(typeMilk), ref.SupplierTypeID))

	point, ok := snap.CollectionPoint(ident.Ptr(pointX))
	require.True(t, ok)
	assert.True(t, ident.Equal(ident.Ptr(plantP), point.PlantID))

	_, ok = snap.AreaOffice(nil)
	assert.False(t, ok)
}

func TestLoadPropagatesRepositoryErrors(t *testing.T) {
	svc := New(Params{Log: zap.NewNop(), Repo: &fakeRepo{err: errors.New("connection refused")}})
	_, err := svc.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load suppliers")
}

func TestLoad(t *testing.T) {
	svc := New(Params{Log: zap.NewNop(), Repo: &fakeRepo{
		suppliers: []domain.Supplier{{ID: supplierA}},
		offices:   []domain.AreaOffice{{ID: officeN, Name: strPtr("North")}},
	}})
	snap, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Suppliers, 1)
	assert.Len(t, snap.AreaOffices, 1)
	assert.Empty(t, snap.CollectionPoints)
}
