package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/ident"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const attachChunkSize = 512

type Params struct {
	fx.In

	Log    *zap.Logger
	Repo   domain.RuleRepository
	Holder *config.SyncConfigHolder
}

type Service struct {
	log    *zap.Logger
	repo   domain.RuleRepository
	holder *config.SyncConfigHolder
}

func New(p Params) *Service {
	return &Service{
		log:    p.Log.Named("pricing.service"),
		repo:   p.Repo,
		holder: p.Holder,
	}
}

// Summary tallies price outcomes for one attach pass.
type Summary struct {
	Existing   int
	Current    int
	Archived   int
	Unresolved map[domain.Reason]int
}

func (s Summary) UnresolvedTotal() int {
	total := 0
	for _, n := range s.Unresolved {
		total += n
	}
	return total
}

// LoadBook snapshots both rule tables.
func (s *Service) LoadBook(ctx context.Context) (*Book, error) {
	current, err := s.repo.ListActive(ctx, domain.TableCurrent)
	if err != nil {
		return nil, fmt.Errorf("load current prices: %w", err)
	}
	archived, err := s.repo.ListActive(ctx, domain.TableArchived)
	if err != nil {
		return nil, fmt.Errorf("load archived prices: %w", err)
	}

	book := NewBook(s.log, current, archived)
	s.log.Info("pricing.book.loaded",
		zap.Int("current", book.Size(domain.TableCurrent)),
		zap.Int("archived", book.Size(domain.TableArchived)),
		zap.Int("dropped", book.Dropped),
	)
	return book, nil
}

// QueryFor builds the pricing view of an enriched purchase.
func QueryFor(rec *purchasedomain.EnrichedPurchase) domain.Query {
	return domain.Query{
		Price:           rec.Price,
		BookedAt:        rec.BookedAt,
		SupplierType:    rec.SupplierTypeID,
		AreaOffice:      rec.AreaOfficeID,
		Supplier:        rec.SupplierID,
		CollectionPoint: rec.CollectionPointID,
		Plant:           plantOf(rec),
	}
}

func plantOf(rec *purchasedomain.EnrichedPurchase) *ident.ID {
	if rec.PlantID != nil {
		return rec.PlantID
	}
	return rec.RoutedPlantID
}

// Attach resolves every record in parallel. Each task owns a disjoint slice
// of records and writes only to those.
func (s *Service) Attach(ctx context.Context, book *Book, records []*purchasedomain.EnrichedPurchase) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}
	workers := s.holder.Get().PriceWorkers
	if workers < 1 {
		workers = 1
	}

	pool := pond.NewPool(workers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for start := 0; start < len(records); start += attachChunkSize {
		chunk := records[start:min(start+attachChunkSize, len(records))]
		group.SubmitErr(func() error {
			for _, rec := range chunk {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				assign(rec, book.Resolve(QueryFor(rec)))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, pond.ErrGroupStopped) {
			return Summary{}, ctxErr
		}
		return Summary{}, err
	}

	return summarize(records), nil
}

func assign(rec *purchasedomain.EnrichedPurchase, out domain.Outcome) {
	rec.Price = out.Price
	rec.PriceSource = string(out.Source)
	rec.PriceReason = string(out.Reason)
	rec.PriceRuleWEF = out.WEF
}

func summarize(records []*purchasedomain.EnrichedPurchase) Summary {
	sum := Summary{Unresolved: make(map[domain.Reason]int)}
	for _, rec := range records {
		if reason := domain.Reason(rec.PriceReason); reason != domain.ReasonNone {
			sum.Unresolved[reason]++
			continue
		}
		switch domain.Source(rec.PriceSource) {
		case domain.SourceExisting:
			sum.Existing++
		case domain.SourceCurrent:
			sum.Current++
		case domain.SourceArchived:
			sum.Archived++
		}
	}
	return sum
}
