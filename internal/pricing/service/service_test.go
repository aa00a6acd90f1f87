package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/ident"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRules struct {
	byTable map[domain.Table][]domain.RuleRecord
	err     error
}

func (f *fakeRules) ListActive(_ context.Context, table domain.Table) ([]domain.RuleRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byTable[table], nil
}

func newTestService(repo domain.RuleRepository, workers int) *Service {
	cfg := config.DefaultSyncConfig()
	cfg.PriceWorkers = workers
	return New(Params{
		Log:    zap.NewNop(),
		Repo:   repo,
		Holder: config.NewStaticSyncConfigHolder(cfg),
	})
}

func enriched(id string, booked string) *purchasedomain.EnrichedPurchase {
	return &purchasedomain.EnrichedPurchase{
		ID:                ident.MustParse(id),
		BookedAt:          dayPtr(booked),
		SupplierTypeID:    ident.Ptr(t1),
		AreaOfficeID:      ident.Ptr(ao1),
		SupplierID:        ident.Ptr(s1),
		CollectionPointID: ident.Ptr(cp1),
	}
}

func TestAttachResolvesAndSummarizes(t *testing.T) {
	repo := &fakeRules{byTable: map[domain.Table][]domain.RuleRecord{
		domain.TableCurrent: {
			rule("r1", t1, "2024-03-01", "32.5", withOffice(ao1)),
		},
		domain.TableArchived: {
			rule("a1", t2, "2024-02-01", "40", withOffice(ao2)),
		},
	}}
	svc := newTestService(repo, 4)

	book, err := svc.LoadBook(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, book.Size(domain.TableCurrent))
	assert.Equal(t, 1, book.Size(domain.TableArchived))

	withPrice := enriched("65a1f0c2e4b0a1b2c3d4f001", "2024-03-10")
	withPrice.Price = price("31")
	withPrice.PriceBeforeAttach = price("31")

	current := enriched("65a1f0c2e4b0a1b2c3d4f002", "2024-03-10")

	archived := enriched("65a1f0c2e4b0a1b2c3d4f003", "2024-03-10")
	archived.AreaOfficeID = ident.Ptr(ao2)
	archived.SupplierTypeID = ident.Ptr(t2)

	tooEarly := enriched("65a1f0c2e4b0a1b2c3d4f004", "2024-01-10")

	records := []*purchasedomain.EnrichedPurchase{withPrice, current, archived, tooEarly}
	summary, err := svc.Attach(context.Background(), book, records)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Existing)
	assert.Equal(t, 1, summary.Current)
	assert.Equal(t, 1, summary.Archived)
	assert.Equal(t, 1, summary.UnresolvedTotal())
	assert.Equal(t, 1, summary.Unresolved[domain.ReasonNoAreaOfficeRuleForDate])

	assert.Equal(t, "existing", withPrice.PriceSource)
	assert.Nil(t, withPrice.PriceRuleWEF)
	assert.Equal(t, "32.5", current.Price.String())
	assert.Equal(t, "current", current.PriceSource)
	require.NotNil(t, current.PriceRuleWEF)
	assert.True(t, day("2024-03-01").Equal(*current.PriceRuleWEF))
	assert.Equal(t, "archived", archived.PriceSource)
	assert.Nil(t, tooEarly.Price)
	assert.Equal(t, string(domain.ReasonNoAreaOfficeRuleForDate), tooEarly.PriceReason)
}

func TestAttachIsDeterministicAcrossWorkerCounts(t *testing.T) {
	repo := &fakeRules{byTable: map[domain.Table][]domain.RuleRecord{
		domain.TableCurrent: {
			rule("d", t1, "2024-03-01", "30", withOffice(ao1)),
			rule("b", t1, "2024-03-01", "33", withOffice(ao1), withSupplier(s1)),
		},
	}}

	build := func() []*purchasedomain.EnrichedPurchase {
		base := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		out := make([]*purchasedomain.EnrichedPurchase, 0, 2000)
		for i := 0; i < 2000; i++ {
			rec := enriched("65a1f0c2e4b0a1b2c3d4f001", "2024-03-10")
			id := ident.ID{}
			id[11] = byte(i)
			id[10] = byte(i >> 8)
			rec.ID = id
			booked := base.AddDate(0, 0, i%20)
			rec.BookedAt = &booked
			if i%3 == 0 {
				rec.SupplierID = ident.Ptr(s2)
			}
			out = append(out, rec)
		}
		return out
	}

	serial := build()
	parallel := build()

	_, err := newTestService(repo, 1).Attach(context.Background(), mustBook(t, repo), serial)
	require.NoError(t, err)
	_, err = newTestService(repo, 16).Attach(context.Background(), mustBook(t, repo), parallel)
	require.NoError(t, err)

	for i := range serial {
		require.Equal(t, serial[i].Price.String(), parallel[i].Price.String(), "record %d", i)
		require.Equal(t, serial[i].PriceSource, parallel[i].PriceSource)
	}
	assert.Equal(t, "30", serial[0].Price.String())
	assert.Equal(t, "33", serial[1].Price.String())
}

func TestAttachHonorsCancellation(t *testing.T) {
	repo := &fakeRules{}
	svc := newTestService(repo, 2)
	book := mustBook(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Attach(ctx, book, []*purchasedomain.EnrichedPurchase{enriched("65a1f0c2e4b0a1b2c3d4f001", "2024-03-10")})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadBookPropagatesRepositoryError(t *testing.T) {
	svc := newTestService(&fakeRules{err: errors.New("connection refused")}, 1)
	_, err := svc.LoadBook(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load current prices")
}

func mustBook(t *testing.T, repo domain.RuleRepository) *Book {
	t.Helper()
	book, err := newTestService(repo, 1).LoadBook(context.Background())
	if err != nil {
		t.Fatalf("load book: %v", err)
	}
	return book
}

func TestQueryForUsesRoutedPlantWhenPurchaseHasNone(t *testing.T) {
	rec := &purchasedomain.EnrichedPurchase{RoutedPlantID: ident.Ptr(p1)}
	q := QueryFor(rec)
	require.NotNil(t, q.Plant)
	assert.Equal(t, p1, q.Plant.Hex())

	own := ident.Ptr("65a1f0c2e4b0a1b2c3d4e002")
	rec.PlantID = own
	assert.Equal(t, own, QueryFor(rec).Plant)
}
