package service

import (
	"slices"

	"github.com/smallbiznis/purchasesync/internal/ident"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	"go.uber.org/zap"
)

// Book is an immutable in-memory index of the eligible rules of both tables.
// It is shared read-only by every resolution worker.
type Book struct {
	current  *index
	archived *index

	// Dropped counts stored rules that can never be eligible.
	Dropped int
}

type index struct {
	table        domain.Table
	size         int
	byAreaOffice map[ident.ID][]*domain.Rule
	bySourceType map[ident.ID][]*domain.Rule
}

// Size reports the number of indexed rules in a table.
func (b *Book) Size(table domain.Table) int {
	if b == nil {
		return 0
	}
	if table == domain.TableArchived {
		return b.archived.size
	}
	return b.current.size
}

// NewBook indexes rule records. Inactive rules, rules without an effective
// date or source type, and rules with a malformed scope identifier are
// dropped; a malformed scope must not silently widen into a wildcard.
func NewBook(log *zap.Logger, current, archived []domain.RuleRecord) *Book {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Book{}
	var dropped int
	b.current, dropped = buildIndex(log, domain.TableCurrent, current)
	b.Dropped += dropped
	b.archived, dropped = buildIndex(log, domain.TableArchived, archived)
	b.Dropped += dropped
	return b
}

func buildIndex(log *zap.Logger, table domain.Table, records []domain.RuleRecord) (*index, int) {
	idx := &index{
		table:        table,
		byAreaOffice: make(map[ident.ID][]*domain.Rule),
		bySourceType: make(map[ident.ID][]*domain.Rule),
	}
	dropped := 0
	for _, rec := range records {
		rule, reason := toRule(table, rec)
		if rule == nil {
			dropped++
			log.Warn("pricing.rule.dropped",
				zap.String("table", string(table)),
				zap.String("rule_id", rec.ID),
				zap.String("reason", reason),
			)
			continue
		}
		idx.size++
		idx.bySourceType[*rule.Scope.SourceType] = append(idx.bySourceType[*rule.Scope.SourceType], rule)
		if rule.Scope.AreaOffice != nil {
			idx.byAreaOffice[*rule.Scope.AreaOffice] = append(idx.byAreaOffice[*rule.Scope.AreaOffice], rule)
		}
	}

	newestFirst := func(a, b *domain.Rule) int { return b.WEF.Compare(a.WEF) }
	for _, rules := range idx.byAreaOffice {
		slices.SortStableFunc(rules, newestFirst)
	}
	for _, rules := range idx.bySourceType {
		slices.SortStableFunc(rules, newestFirst)
	}
	return idx, dropped
}

const (
	dropInactive          = "inactive"
	dropMissingWEF        = "missing_wef"
	dropInvalidSourceType = "invalid_source_type"
	dropInvalidScope      = "invalid_scope"
)

// toRule returns the indexed rule, or nil and the reason it was dropped.
func toRule(table domain.Table, rec domain.RuleRecord) (*domain.Rule, string) {
	if rec.Status != domain.StatusActive {
		return nil, dropInactive
	}
	if rec.WEF == nil {
		return nil, dropMissingWEF
	}
	sourceType, err := ident.Parse(rec.SourceType)
	if err != nil || sourceType == nil {
		return nil, dropInvalidSourceType
	}

	scope := domain.Scope{SourceType: sourceType}
	for _, f := range []struct {
		raw string
		dst **ident.ID
	}{
		{rec.AreaOffice, &scope.AreaOffice},
		{rec.Supplier, &scope.Supplier},
		{rec.CollectionPoint, &scope.CollectionPoint},
		{rec.Plant, &scope.Plant},
	} {
		id, err := ident.Parse(f.raw)
		if err != nil {
			return nil, dropInvalidScope
		}
		*f.dst = id
	}

	return &domain.Rule{
		ID:    rec.ID,
		Scope: scope,
		WEF:   rec.WEF.UTC(),
		Price: rec.Price,
		Table: table,
	}, ""
}
