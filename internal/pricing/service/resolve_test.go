package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/ident"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	ao1 = "65a1f0c2e4b0a1b2c3d4a001"
	ao2 = "65a1f0c2e4b0a1b2c3d4a002"
	t1  = "65a1f0c2e4b0a1b2c3d4b001"
	t2  = "65a1f0c2e4b0a1b2c3d4b002"
	s1  = "65a1f0c2e4b0a1b2c3d4c001"
	s2  = "65a1f0c2e4b0a1b2c3d4c002"
	cp1 = "65a1f0c2e4b0a1b2c3d4d001"
	p1  = "65a1f0c2e4b0a1b2c3d4e001"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type ruleOpt func(*domain.RuleRecord)

func withSupplier(id string) ruleOpt { return func(r *domain.RuleRecord) { r.Supplier = id } }
func withPoint(id string) ruleOpt    { return func(r *domain.RuleRecord) { r.CollectionPoint = id } }
func withOffice(id string) ruleOpt   { return func(r *domain.RuleRecord) { r.AreaOffice = id } }
func withNoPrice() ruleOpt           { return func(r *domain.RuleRecord) { r.Price = nil } }

func rule(id, sourceType, wef, amount string, opts ...ruleOpt) domain.RuleRecord {
	r := domain.RuleRecord{
		ID:         id,
		SourceType: sourceType,
		WEF:        dayPtr(wef),
		Price:      price(amount),
		Status:     domain.StatusActive,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func aoQuery(booked string) domain.Query {
	return domain.Query{
		BookedAt:        dayPtr(booked),
		SupplierType:    ident.Ptr(t1),
		AreaOffice:      ident.Ptr(ao1),
		Supplier:        ident.Ptr(s1),
		CollectionPoint: ident.Ptr(cp1),
	}
}

func assertPrice(t *testing.T, out domain.Outcome, want string, source domain.Source) {
	t.Helper()
	require.True(t, out.Resolved(), "expected resolved outcome, got reason %q", out.Reason)
	assert.True(t, decimal.RequireFromString(want).Equal(*out.Price), "price %s != %s", out.Price, want)
	assert.Equal(t, source, out.Source)
}

func TestSupplierScopedRuleBeatsWildcardAtSameDate(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("r1", t1, "2024-03-01", "32.5", withOffice(ao1)),
		rule("r2", t1, "2024-03-01", "33.0", withOffice(ao1), withSupplier(s1)),
	}, nil)

	out := book.Resolve(aoQuery("2024-03-10"))
	assertPrice(t, out, "33.0", domain.SourceCurrent)
	require.NotNil(t, out.WEF)
	assert.True(t, day("2024-03-01").Equal(*out.WEF))
}

func TestArchivedTableUsedWhenCurrentHasNothingForOffice(t *testing.T) {
	book := NewBook(zap.NewNop(),
		[]domain.RuleRecord{rule("c1", t1, "2024-01-01", "99", withOffice(ao2))},
		[]domain.RuleRecord{rule("a1", t1, "2024-02-01", "30.0", withOffice(ao1))},
	)

	assertPrice(t, book.Resolve(aoQuery("2024-03-10")), "30.0", domain.SourceArchived)
}

func TestPlantCascadeFallsBackToArchived(t *testing.T) {
	book := NewBook(zap.NewNop(),
		[]domain.RuleRecord{rule("c1", t1, "2024-01-01", "35")},
		[]domain.RuleRecord{rule("a1", t2, "2024-04-01", "40.0")},
	)

	out := book.Resolve(domain.Query{
		BookedAt:     dayPtr("2024-05-01"),
		SupplierType: ident.Ptr(t2),
		Supplier:     ident.Ptr(s1),
		Plant:        ident.Ptr(p1),
	})
	assertPrice(t, out, "40.0", domain.SourceArchived)
}

func TestPlantCascadePrefersExactSupplierThenNewestWildcard(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("w-old", t2, "2024-01-01", "38"),
		rule("w-new", t2, "2024-04-01", "41"),
		rule("exact-old", t2, "2024-02-01", "39", withSupplier(s1)),
		rule("other", t2, "2024-04-15", "50", withSupplier(s2)),
	}, nil)

	q := domain.Query{BookedAt: dayPtr("2024-05-01"), SupplierType: ident.Ptr(t2), Supplier: ident.Ptr(s1), Plant: ident.Ptr(p1)}
	assertPrice(t, book.Resolve(q), "39", domain.SourceCurrent)

	q.Supplier = ident.Ptr("65a1f0c2e4b0a1b2c3d4c0ff")
	assertPrice(t, book.Resolve(q), "41", domain.SourceCurrent)
}

func TestPlantCascadeUnresolved(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{rule("c1", t1, "2024-01-01", "35")}, nil)

	out := book.Resolve(domain.Query{BookedAt: dayPtr("2024-05-01"), SupplierType: ident.Ptr(t2), Plant: ident.Ptr(p1)})
	assert.False(t, out.Resolved())
	assert.Equal(t, domain.ReasonNoPlantRule, out.Reason)
	assert.Nil(t, out.Price)
}

func TestExistingPriceShortCircuits(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("r1", t1, "2024-03-01", "33.0", withOffice(ao1), withSupplier(s1)),
	}, nil)

	q := aoQuery("2024-03-10")
	q.Price = price("-12.75")
	assertPrice(t, book.Resolve(q), "-12.75", domain.SourceExisting)

	q.Price = price("0")
	assertPrice(t, book.Resolve(q), "33.0", domain.SourceCurrent)
}

func TestFutureRuleIsNeverSelected(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("future", t1, "2024-03-11", "50", withOffice(ao1)),
	}, nil)

	out := book.Resolve(aoQuery("2024-03-10"))
	assert.Equal(t, domain.ReasonNoAreaOfficeRuleForDate, out.Reason)

	sameDay := book.Resolve(aoQuery("2024-03-11"))
	assertPrice(t, sameDay, "50", domain.SourceCurrent)
}

func TestFullySpecificRuleWinsOverEveryPattern(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("d", t1, "2024-03-01", "30", withOffice(ao1)),
		rule("c", t1, "2024-03-01", "31", withOffice(ao1), withPoint(cp1)),
		rule("b", t1, "2024-03-01", "32", withOffice(ao1), withSupplier(s1)),
		rule("a", t1, "2024-03-01", "34", withOffice(ao1), withSupplier(s1), withPoint(cp1)),
	}, nil)

	assertPrice(t, book.Resolve(aoQuery("2024-03-10")), "34", domain.SourceCurrent)

	q := aoQuery("2024-03-10")
	q.Supplier = ident.Ptr(s2)
	assertPrice(t, book.Resolve(q), "31", domain.SourceCurrent)
}

func TestPinnedDateDoesNotReachBackForMoreSpecificRules(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("old-specific", t1, "2024-01-01", "35", withOffice(ao1), withSupplier(s1), withPoint(cp1)),
		rule("new-other-type", t2, "2024-03-01", "20", withOffice(ao1)),
	}, nil)

	out := book.Resolve(aoQuery("2024-03-10"))
	assert.Equal(t, domain.ReasonNoScopedRuleAtPinnedDate, out.Reason)
}

func TestWildcardRuleDoesNotMatchArbitraryCollectionPointAsSpecific(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("other-point", t1, "2024-03-01", "31", withOffice(ao1), withPoint("65a1f0c2e4b0a1b2c3d4d0ff")),
	}, nil)

	out := book.Resolve(aoQuery("2024-03-10"))
	assert.Equal(t, domain.ReasonNoScopedRuleAtPinnedDate, out.Reason)
}

func TestUnresolvableInputs(t *testing.T) {
	book := NewBook(zap.NewNop(), []domain.RuleRecord{
		rule("no-price", t1, "2024-03-01", "0", withOffice(ao1), withNoPrice()),
	}, nil)

	q := aoQuery("2024-03-10")
	q.BookedAt = nil
	assert.Equal(t, domain.ReasonUnresolvedOther, book.Resolve(q).Reason)

	out := book.Resolve(aoQuery("2024-03-10"))
	assert.Equal(t, domain.ReasonUnresolvedOther, out.Reason)
	assert.Nil(t, out.Price)
	assert.NotNil(t, out.WEF)

	q = aoQuery("2024-03-10")
	q.AreaOffice = nil
	assert.Equal(t, domain.ReasonNoAreaOfficeRuleForDate, book.Resolve(q).Reason)
}

func TestNewBookDropsIneligibleRules(t *testing.T) {
	inactive := rule("inactive", t1, "2024-03-01", "10", withOffice(ao1))
	inactive.Status = 0
	noDate := rule("no-date", t1, "2024-03-01", "10", withOffice(ao1))
	noDate.WEF = nil
	badScope := rule("bad-scope", t1, "2024-03-01", "10", withOffice(ao1), withSupplier("nonsense"))
	noType := rule("no-type", "", "2024-03-01", "10", withOffice(ao1))

	core, logs := observer.New(zap.WarnLevel)
	book := NewBook(zap.New(core), []domain.RuleRecord{inactive, noDate, badScope, noType}, nil)
	assert.Equal(t, 4, book.Dropped)

	dropped := logs.FilterMessage("pricing.rule.dropped")
	require.Equal(t, 4, dropped.Len())
	reasons := make(map[string]string)
	for _, entry := range dropped.All() {
		fields := entry.ContextMap()
		reasons[fields["rule_id"].(string)] = fields["reason"].(string)
	}
	assert.Equal(t, map[string]string{
		"inactive":  "inactive",
		"no-date":   "missing_wef",
		"bad-scope": "invalid_scope",
		"no-type":   "invalid_source_type",
	}, reasons)
	assert.Equal(t, 0, book.Size(domain.TableCurrent))
	assert.Equal(t, domain.ReasonNoAreaOfficeRuleForDate, book.Resolve(aoQuery("2024-03-10")).Reason)
}
