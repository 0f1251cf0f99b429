package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/domain"
)

const dateLayout = "2006-01-02"

// fieldChange is one whitelisted deal column whose value differs from the
// stored row. Field doubles as column name and history field name.
type fieldChange struct {
	field    string
	oldValue *string
	newValue *string
	value    interface{}
}

// dealDiff collects typed field changes. Each helper takes the stored value
// and the requested value (nil means "not requested").
type dealDiff struct {
	changes []fieldChange
}

func (d *dealDiff) add(field string, oldValue, newValue *string, value interface{}) {
	d.changes = append(d.changes, fieldChange{field: field, oldValue: oldValue, newValue: newValue, value: value})
}

func (d *dealDiff) has(field string) bool {
	for _, c := range d.changes {
		if c.field == field {
			return true
		}
	}
	return false
}

func (d *dealDiff) text(field, current string, next *string) {
	if next == nil || *next == current {
		return
	}
	d.add(field, strPtr(current), strPtr(*next), *next)
}

func (d *dealDiff) integer(field string, current int, next *int) {
	if next == nil || *next == current {
		return
	}
	d.add(field, strPtr(strconv.Itoa(current)), strPtr(strconv.Itoa(*next)), *next)
}

func (d *dealDiff) boolean(field string, current bool, next *bool) {
	if next == nil || *next == current {
		return
	}
	d.add(field, strPtr(strconv.FormatBool(current)), strPtr(strconv.FormatBool(*next)), *next)
}

func (d *dealDiff) id(field string, current int64, next *int64) {
	if next == nil || *next == current {
		return
	}
	d.add(field, idString(current), idString(*next), *next)
}

// optionalID treats a requested 0 as clearing the reference
func (d *dealDiff) optionalID(field string, current *int64, next *int64) {
	if next == nil {
		return
	}
	var want *int64
	if *next != 0 {
		want = next
	}
	if equalIDs(current, want) {
		return
	}
	d.add(field, optionalIDString(current), optionalIDString(want), want)
}

func (d *dealDiff) money(field string, current decimal.Decimal, next *decimal.Decimal) {
	if next == nil || next.Equal(current) {
		return
	}
	d.add(field, strPtr(current.StringFixed(2)), strPtr(next.StringFixed(2)), *next)
}

func (d *dealDiff) date(field string, current *time.Time, next dateUpdate) {
	if !next.set || equalDates(current, next.value) {
		return
	}
	d.add(field, dateString(current), dateString(next.value), next.value)
}

// dateUpdate is a parsed optional date request: set=false means untouched,
// set=true with a nil value clears the date
type dateUpdate struct {
	set   bool
	value *time.Time
}

// parseDateUpdate parses an ISO-8601 calendar date. An empty string clears.
func parseDateUpdate(raw *string) (dateUpdate, error) {
	if raw == nil {
		return dateUpdate{}, nil
	}
	value, err := parseDate(*raw)
	if err != nil {
		return dateUpdate{}, err
	}
	return dateUpdate{set: true, value: value}, nil
}

// parseDate accepts YYYY-MM-DD, or a full RFC 3339 timestamp which is
// truncated to its date. Empty input yields nil.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339, raw)
		if tsErr != nil {
			return nil, ErrInvalidDate
		}
		t = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return &t, nil
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return strPtr(t.Format(dateLayout))
}

func equalDates(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(dateLayout) == b.Format(dateLayout)
}

func equalIDs(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func optionalIDString(id *int64) *string {
	if id == nil {
		return nil
	}
	return idString(*id)
}

func optionalMoney(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v).Round(2)
	return &d
}

// diffDeal compares the whitelisted mutable fields of req with deal.
// Funnel, stage and amount are resolved by the caller since they depend on
// other rows.
func diffDeal(deal *domain.Deal, req *domain.UpdateDealRequest, startDate, closeDate dateUpdate) *dealDiff {
	d := &dealDiff{}

	d.text("title", deal.Title, trimmed(req.Title))
	d.text("description", deal.Description, req.Description)
	if req.DealType != nil {
		d.text("deal_type", string(deal.DealType), (*string)(req.DealType))
	}
	d.text("currency", deal.Currency, req.Currency)
	d.integer("probability_percent", deal.ProbabilityPercent, req.ProbabilityPercent)
	d.boolean("is_manual_amount", deal.IsManualAmount, req.IsManualAmount)
	d.money("tax_value", deal.TaxValue, optionalMoney(req.TaxValue))
	d.date("start_date", deal.StartDate, startDate)
	d.date("close_date", deal.CloseDate, closeDate)
	d.optionalID("company_id", deal.CompanyID, req.CompanyID)
	d.optionalID("primary_contact_id", deal.PrimaryContactID, req.PrimaryContactID)
	d.id("responsible_user_id", deal.ResponsibleUserID, req.ResponsibleUserID)
	d.boolean("is_closed", deal.IsClosed, req.IsClosed)
	d.boolean("is_public", deal.IsPublic, req.IsPublic)
	d.boolean("is_new", deal.IsNew, req.IsNew)
	d.boolean("is_recurring", deal.IsRecurring, req.IsRecurring)
	d.text("recurrence_pattern", deal.RecurrencePattern, req.RecurrencePattern)
	d.optionalID("source_id", deal.SourceID, req.SourceID)
	d.text("source_description", deal.SourceDescription, req.SourceDescription)
	d.text("utm_source", deal.UTMSource, req.UTMSource)
	d.text("utm_medium", deal.UTMMedium, req.UTMMedium)
	d.text("utm_campaign", deal.UTMCampaign, req.UTMCampaign)

	return d
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
