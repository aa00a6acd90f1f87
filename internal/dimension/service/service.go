package service

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/smallbiznis/purchasesync/internal/dimension/domain"
	"github.com/smallbiznis/purchasesync/internal/ident"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) *Service {
	return &Service{
		log:  p.Log.Named("dimension.service"),
		repo: p.Repo,
	}
}

// Load reads all four reference tables concurrently and keys them by
// canonical identifier.
func (s *Service) Load(ctx context.Context) (*domain.Snapshot, error) {
	var (
		suppliers     []domain.Supplier
		points        []domain.CollectionPoint
		offices       []domain.AreaOffice
		supplierTypes []domain.SupplierType
	)

	pool := pond.NewPool(4)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	group.SubmitErr(func() (err error) {
		suppliers, err = s.repo.ListSuppliers(groupCtx)
		return wrap("suppliers", err)
	})
	group.SubmitErr(func() (err error) {
		points, err = s.repo.ListCollectionPoints(groupCtx)
		return wrap("collection points", err)
	})
	group.SubmitErr(func() (err error) {
		offices, err = s.repo.ListAreaOffices(groupCtx)
		return wrap("area offices", err)
	})
	group.SubmitErr(func() (err error) {
		supplierTypes, err = s.repo.ListSupplierTypes(groupCtx)
		return wrap("supplier types", err)
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	snapshot := Build(s.log, suppliers, points, offices, supplierTypes)
	s.log.Info("dimension.snapshot.loaded",
		zap.Int("suppliers", len(snapshot.Suppliers)),
		zap.Int("collection_points", len(snapshot.CollectionPoints)),
		zap.Int("area_offices", len(snapshot.AreaOffices)),
		zap.Int("supplier_types", len(snapshot.SupplierTypes)),
		zap.Int("skipped", snapshot.Skipped),
	)
	return snapshot, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// Build normalizes raw reference rows. Rows without a valid key are skipped;
// when a key repeats, the first row wins. Malformed foreign keys inside a row
// become nil.
func Build(log *zap.Logger, suppliers []domain.Supplier, points []domain.CollectionPoint, offices []domain.AreaOffice, supplierTypes []domain.SupplierType) *domain.Snapshot {
	if log == nil {
		log = zap.NewNop()
	}
	snap := &domain.Snapshot{
		Suppliers:        make(map[ident.ID]domain.SupplierRef, len(suppliers)),
		CollectionPoints: make(map[ident.ID]domain.CollectionPointRef, len(points)),
		AreaOffices:      make(map[ident.ID]domain.AreaOfficeRef, len(offices)),
		SupplierTypes:    make(map[ident.ID]domain.SupplierTypeRef, len(supplierTypes)),
	}
	n := normalizer{log: log}

	for _, row := range suppliers {
		id, ok := n.key("supplier", row.ID)
		if !ok {
			snap.Skipped++
			continue
		}
		if _, dup := snap.Suppliers[id]; dup {
			continue
		}
		snap.Suppliers[id] = domain.SupplierRef{
			Name:           row.Name,
			Source:         row.Source,
			Code:           row.Code,
			SupplierTypeID: n.ref("supplier.supplier_type_id", row.SupplierTypeID),
			AreaOfficeID:   n.ref("supplier.area_office_id", row.AreaOfficeID),
		}
	}

	for _, row := range points {
		id, ok := n.key("collection_point", row.ID)
		if !ok {
			snap.Skipped++
			continue
		}
		if _, dup := snap.CollectionPoints[id]; dup {
			continue
		}
		snap.CollectionPoints[id] = domain.CollectionPointRef{
			Name:         row.Name,
			AreaOfficeID: n.ref("collection_point.area_office_id", row.AreaOfficeID),
			PlantID:      n.ref("collection_point.plant_id", row.PlantID),
			IsMCC:        row.IsMCC,
			Latitude:     row.Latitude,
			Longitude:    row.Longitude,
		}
	}

	for _, row := range offices {
		id, ok := n.key("area_office", row.ID)
		if !ok {
			snap.Skipped++
			continue
		}
		if _, dup := snap.AreaOffices[id]; dup {
			continue
		}
		snap.AreaOffices[id] = domain.AreaOfficeRef{Name: row.Name}
	}

	for _, row := range supplierTypes {
		id, ok := n.key("supplier_type", row.ID)
		if !ok {
			snap.Skipped++
			continue
		}
		if _, dup := snap.SupplierTypes[id]; dup {
			continue
		}
		snap.SupplierTypes[id] = domain.SupplierTypeRef{Name: row.Name, Description: row.Description}
	}

	return snap
}

type normalizer struct {
	log *zap.Logger
}

func (n normalizer) key(table, raw string) (ident.ID, bool) {
	id, err := ident.Parse(raw)
	if err != nil || id == nil {
		n.log.Debug("dimension.row.skipped", zap.String("table", table), zap.String("raw", raw), zap.Error(err))
		return ident.ID{}, false
	}
	return *id, true
}

func (n normalizer) ref(field, raw string) *ident.ID {
	id, err := ident.Parse(raw)
	if err != nil {
		n.log.Debug("dimension.reference.invalid", zap.String("field", field), zap.String("raw", raw), zap.Error(err))
		return nil
	}
	return id
}
