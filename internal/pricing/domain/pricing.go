package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/ident"
)

// Table names the two disjoint rule tables, queried current first.
type Table string

const (
	TableCurrent  Table = "current"
	TableArchived Table = "archived"
)

// StatusActive is the only rule status eligible for resolution.
const StatusActive = 1

// Source says where a record's final price came from.
type Source string

const (
	SourceNone     Source = ""
	SourceExisting Source = "existing"
	SourceCurrent  Source = "current"
	SourceArchived Source = "archived"
)

func SourceFor(t Table) Source {
	if t == TableArchived {
		return SourceArchived
	}
	return SourceCurrent
}

// Reason explains an unresolved price. The empty reason means resolved.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonNoPlantRule              Reason = "no_plant_rule"
	ReasonNoAreaOfficeRuleForDate  Reason = "no_area_office_rule_for_date"
	ReasonNoScopedRuleAtPinnedDate Reason = "no_scoped_rule_at_pinned_date"
	ReasonUnresolvedOther          Reason = "unresolved_other"
)

// Reasons lists every unresolved outcome, for reporting.
var Reasons = []Reason{
	ReasonNoPlantRule,
	ReasonNoAreaOfficeRuleForDate,
	ReasonNoScopedRuleAtPinnedDate,
	ReasonUnresolvedOther,
}

// Scope is the dimension key of a rule. SourceType is required; a nil
// optional dimension is a wildcard.
type Scope struct {
	SourceType      *ident.ID
	AreaOffice      *ident.ID
	Supplier        *ident.ID
	CollectionPoint *ident.ID
	Plant           *ident.ID
}

type Rule struct {
	ID    string
	Scope Scope
	WEF   time.Time
	Price *decimal.Decimal
	Table Table
}

// RuleRecord is a rule as stored. Identifier fields are raw text.
type RuleRecord struct {
	ID              string
	SourceType      string
	AreaOffice      string
	Supplier        string
	CollectionPoint string
	Plant           string
	WEF             *time.Time
	Price           *decimal.Decimal
	Status          int
}

// Query is the pricing view of one enriched purchase.
type Query struct {
	Price           *decimal.Decimal
	BookedAt        *time.Time
	SupplierType    *ident.ID
	AreaOffice      *ident.ID
	Supplier        *ident.ID
	CollectionPoint *ident.ID
	Plant           *ident.ID
}

// Outcome is a resolved price or a typed reason it could not be resolved.
type Outcome struct {
	Price  *decimal.Decimal
	Source Source
	Reason Reason
	WEF    *time.Time
}

func (o Outcome) Resolved() bool {
	return o.Reason == ReasonNone && o.Price != nil
}

func Unresolved(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

// RuleRepository lists active rules with an effective date from one table.
type RuleRepository interface {
	ListActive(ctx context.Context, table Table) ([]RuleRecord, error)
}
