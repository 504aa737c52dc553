// Package ledger implements filtered, paginated and optionally grouped reads
// over the movement ledger.
package ledger

import (
	"math"
	"strconv"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/movement"
)

// Pagination defaults.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Filter holds the AND-combined movement filters. Zero values mean "not filtered".
type Filter struct {
	ProductID    *id.ID
	VariantID    *id.ID
	MovementType *entity.MovementType
	Location     string
	PerformedBy  string

	// StartDate and EndDate are inclusive bounds on created_at.
	StartDate *time.Time
	EndDate   *time.Time

	IncludeSystemMovements bool
	GroupRelated           bool
}

// Types returns the movement types the filter admits. restricted is false when
// every type is admitted; an empty restricted set admits nothing.
func (f Filter) Types() (types []entity.MovementType, restricted bool) {
	if f.MovementType != nil {
		if !f.IncludeSystemMovements && !movement.IsBusinessMovement(*f.MovementType) {
			return []entity.MovementType{}, true
		}
		return []entity.MovementType{*f.MovementType}, true
	}
	if !f.IncludeSystemMovements {
		return movement.BusinessTypes(), true
	}
	return nil, false
}

// Matches reports whether m passes every filter. Storage drivers that filter
// in memory use it; the SQL driver builds the equivalent WHERE clause.
func (f Filter) Matches(m *entity.MovementRecord) bool {
	if f.ProductID != nil && m.ProductID != *f.ProductID {
		return false
	}
	if f.VariantID != nil && !id.Equal(m.VariantID, f.VariantID) {
		return false
	}
	if types, restricted := f.Types(); restricted && !containsType(types, m.MovementType) {
		return false
	}
	if f.Location != "" && !m.TouchesLocation(f.Location) {
		return false
	}
	if f.PerformedBy != "" && m.PerformedBy != f.PerformedBy {
		return false
	}
	if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && m.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

// Applied lists the filters that are set, keyed by their query parameter names.
func (f Filter) Applied() map[string]any {
	applied := map[string]any{
		"include_system_movements": f.IncludeSystemMovements,
		"group_related":            f.GroupRelated,
	}
	if f.ProductID != nil {
		applied["product_id"] = f.ProductID.String()
	}
	if f.VariantID != nil {
		applied["variant_id"] = f.VariantID.String()
	}
	if f.MovementType != nil {
		applied["movement_type"] = string(*f.MovementType)
	}
	if f.Location != "" {
		applied["location"] = f.Location
	}
	if f.PerformedBy != "" {
		applied["performed_by"] = f.PerformedBy
	}
	if f.StartDate != nil {
		applied["start_date"] = f.StartDate.Format(time.RFC3339)
	}
	if f.EndDate != nil {
		applied["end_date"] = f.EndDate.Format(time.RFC3339)
	}
	return applied
}

func containsType(types []entity.MovementType, t entity.MovementType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseFilter builds a Filter from query parameters.
// Malformed values fail with InvalidQuery; absent or empty values are ignored.
// Date-only values are interpreted in loc (UTC when nil); a date-only end_date
// covers the whole day.
func ParseFilter(params map[string]string, loc *time.Location) (Filter, error) {
	if loc == nil {
		loc = time.UTC
	}
	var f Filter

	if v := strings.TrimSpace(params["product_id"]); v != "" {
		pid, err := id.Parse(v)
		if err != nil {
			return f, apperror.NewInvalidQuery("product_id", "product_id must be a UUID").WithCause(err)
		}
		f.ProductID = &pid
	}
	if v := strings.TrimSpace(params["variant_id"]); v != "" {
		vid, err := id.Parse(v)
		if err != nil {
			return f, apperror.NewInvalidQuery("variant_id", "variant_id must be a UUID").WithCause(err)
		}
		f.VariantID = &vid
	}
	if v := strings.TrimSpace(params["movement_type"]); v != "" {
		mt := entity.MovementType(v)
		if !mt.IsKnown() {
			return f, apperror.NewInvalidQuery("movement_type", "unknown movement_type "+strconv.Quote(v))
		}
		f.MovementType = &mt
	}
	f.Location = strings.TrimSpace(params["location"])
	f.PerformedBy = strings.TrimSpace(params["performed_by"])

	if v := strings.TrimSpace(params["start_date"]); v != "" {
		start, _, err := parseDate(v, loc)
		if err != nil {
			return f, apperror.NewInvalidQuery("start_date", "start_date must be YYYY-MM-DD or RFC 3339").WithCause(err)
		}
		f.StartDate = &start
	}
	if v := strings.TrimSpace(params["end_date"]); v != "" {
		end, dateOnly, err := parseDate(v, loc)
		if err != nil {
			return f, apperror.NewInvalidQuery("end_date", "end_date must be YYYY-MM-DD or RFC 3339").WithCause(err)
		}
		if dateOnly {
			end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		f.EndDate = &end
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return f, apperror.NewInvalidQuery("start_date", "start_date must not be after end_date")
	}

	var err error
	if f.IncludeSystemMovements, err = parseBool(params, "include_system_movements"); err != nil {
		return f, err
	}
	if f.GroupRelated, err = parseBool(params, "group_related"); err != nil {
		return f, err
	}
	return f, nil
}

func parseDate(v string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	if t, err = time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, v)
	return t, false, err
}

func parseBool(params map[string]string, key string) (bool, error) {
	v := strings.TrimSpace(params[key])
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperror.NewInvalidQuery(key, key+" must be a boolean").WithCause(err)
	}
	return b, nil
}

// PageRequest selects one page; Page is 1-based.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize applies defaults and clamps the page size.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ParsePageRequest reads page and page_size parameters.
func ParsePageRequest(params map[string]string) (PageRequest, error) {
	var p PageRequest
	for key, dst := range map[string]*int{"page": &p.Page, "page_size": &p.PageSize} {
		v := strings.TrimSpace(params[key])
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, apperror.NewInvalidQuery(key, key+" must be a non-negative integer")
		}
		*dst = n
	}
	p = p.Normalize()
	if p.Page-1 > math.MaxInt/p.PageSize {
		return p, apperror.NewInvalidQuery("page", "page is out of range")
	}
	return p, nil
}
