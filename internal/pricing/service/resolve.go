package service

import (
	"time"

	"github.com/smallbiznis/purchasesync/internal/ident"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
)

// Resolve prices one purchase. It never fails: every path ends in either a
// price or a typed unresolved reason.
func (b *Book) Resolve(q domain.Query) domain.Outcome {
	if usable(q) {
		return domain.Outcome{Price: q.Price, Source: domain.SourceExisting}
	}
	if q.BookedAt == nil {
		return domain.Unresolved(domain.ReasonUnresolvedOther)
	}
	if q.Plant != nil {
		return b.resolvePlant(q)
	}
	return b.resolveAreaOffice(q)
}

// usable treats a missing or zero captured price as absent.
func usable(q domain.Query) bool {
	return q.Price != nil && !q.Price.IsZero()
}

// resolvePlant picks the newest rule for the supplier type, preferring one
// scoped to the purchase's supplier over a supplier wildcard. The archived
// table is consulted only when the current table has no match at all.
func (b *Book) resolvePlant(q domain.Query) domain.Outcome {
	if q.SupplierType == nil {
		return domain.Unresolved(domain.ReasonNoPlantRule)
	}
	booked := *q.BookedAt
	for _, idx := range []*index{b.current, b.archived} {
		var wildcard *domain.Rule
		for _, rule := range idx.bySourceType[*q.SupplierType] {
			if rule.WEF.After(booked) {
				continue
			}
			if ident.Same(rule.Scope.Supplier, q.Supplier) {
				return apply(rule)
			}
			if rule.Scope.Supplier == nil && wildcard == nil {
				wildcard = rule
			}
		}
		if wildcard != nil {
			return apply(wildcard)
		}
	}
	return domain.Unresolved(domain.ReasonNoPlantRule)
}

type pattern struct {
	supplier        *ident.ID
	collectionPoint *ident.ID
}

// resolveAreaOffice pins the newest effective date among the area office's
// rules, falling back to the archived table as a whole when the current one
// has nothing in force, then tries the four supplier/collection point
// patterns from most to least specific at that date.
func (b *Book) resolveAreaOffice(q domain.Query) domain.Outcome {
	if q.AreaOffice == nil {
		return domain.Unresolved(domain.ReasonNoAreaOfficeRuleForDate)
	}
	booked := *q.BookedAt

	pool := eligible(b.current.byAreaOffice[*q.AreaOffice], booked)
	if len(pool) == 0 {
		pool = eligible(b.archived.byAreaOffice[*q.AreaOffice], booked)
	}
	if len(pool) == 0 {
		return domain.Unresolved(domain.ReasonNoAreaOfficeRuleForDate)
	}

	pinned := pool[0].WEF
	atPinned := pool
	for i, rule := range pool {
		if !rule.WEF.Equal(pinned) {
			atPinned = pool[:i]
			break
		}
	}

	patterns := [4]pattern{
		{q.Supplier, q.CollectionPoint},
		{q.Supplier, nil},
		{nil, q.CollectionPoint},
		{nil, nil},
	}
	for _, p := range patterns {
		for _, rule := range atPinned {
			if !ident.Same(rule.Scope.SourceType, q.SupplierType) {
				continue
			}
			if ident.Equal(rule.Scope.Supplier, p.supplier) && ident.Equal(rule.Scope.CollectionPoint, p.collectionPoint) {
				return apply(rule)
			}
		}
	}
	return domain.Unresolved(domain.ReasonNoScopedRuleAtPinnedDate)
}

// eligible drops rules that take effect after booked. rules are sorted
// newest first, so the ones in force form a suffix.
func eligible(rules []*domain.Rule, booked time.Time) []*domain.Rule {
	for i, rule := range rules {
		if !rule.WEF.After(booked) {
			return rules[i:]
		}
	}
	return nil
}

func apply(rule *domain.Rule) domain.Outcome {
	wef := rule.WEF
	out := domain.Outcome{Source: domain.SourceFor(rule.Table), WEF: &wef}
	if rule.Price == nil {
		out.Reason = domain.ReasonUnresolvedOther
		return out
	}
	out.Price = rule.Price
	return out
}
