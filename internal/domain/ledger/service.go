package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/movement"
)

// Entry is a movement decorated for reporting.
type Entry struct {
	entity.MovementRecord

	Category      movement.Category      `json:"category"`
	BadgeColor    movement.Color         `json:"badge_color"`
	QuantityClass movement.QuantityClass `json:"quantity_class"`
	DisplayTime   string                 `json:"display_time"`
	Reference     *movement.Reference    `json:"reference"`
}

// Row is one result line. Grouped rows show their latest movement and list every
// member oldest first in Related; ungrouped rows have no Related.
type Row struct {
	Entry

	GroupID *id.ID  `json:"group_id,omitempty"`
	Related []Entry `json:"related,omitempty"`
}

// Page is one page of query results.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPage[T any](items []T, req PageRequest, total int64) *Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	return &Page[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalItems: total,
		TotalPages: pages,
		HasNext:    req.Page < pages,
	}
}

// Service is the movement query engine. It only reads.
type Service struct {
	txm      tx.ReadOnlyManager
	repo     Repository
	location *time.Location
	refs     *movement.ReferenceParser
}

// Option configures the Service.
type Option func(*Service)

// WithDisplayLocation renders display times in loc.
func WithDisplayLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithReferenceParser replaces the default notes parser.
func WithReferenceParser(p *movement.ReferenceParser) Option {
	return func(s *Service) { s.refs = p }
}

// NewService creates the query engine.
func NewService(txm tx.ReadOnlyManager, repo Repository, opts ...Option) *Service {
	s := &Service{
		txm:      txm,
		repo:     repo,
		location: time.UTC,
		refs:     movement.NewReferenceParser(movement.WalkInExtractor, movement.ReasonExtractor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the display time zone.
func (s *Service) Location() *time.Location { return s.location }

// Query returns one page of movements matching f. A page never holds more than
// req.PageSize rows.
func (s *Service) Query(ctx context.Context, f Filter, req PageRequest) (*Page[Row], error) {
	req = req.Normalize()
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return nil, apperror.NewInvalidQuery("start_date", "start_date must not be after end_date")
	}

	if types, restricted := f.Types(); restricted && len(types) == 0 {
		return newPage[Row](nil, req, 0), nil
	}

	var page *Page[Row]
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if f.GroupRelated {
			page, err = s.queryGrouped(ctx, f, req)
		} else {
			page, err = s.queryRaw(ctx, f, req)
		}
		return err
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return page, nil
}

func (s *Service) queryRaw(ctx context.Context, f Filter, req PageRequest) (*Page[Row], error) {
	total, err := s.repo.CountMovements(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count movements: %w", err)
	}
	if total == 0 || req.Offset() < 0 || int64(req.Offset()) >= total {
		return newPage[Row](nil, req, total), nil
	}

	movements, err := s.repo.ListMovements(ctx, f, req.PageSize, req.Offset())
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	if len(movements) > req.PageSize {
		movements = movements[:req.PageSize]
	}

	rows := make([]Row, 0, len(movements))
	for i := range movements {
		rows = append(rows, Row{Entry: s.Decorate(movements[i])})
	}
	return newPage(rows, req, total), nil
}

func (s *Service) queryGrouped(ctx context.Context, f Filter, req PageRequest) (*Page[Row], error) {
	total, err := s.repo.CountGroups(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count groups: %w", err)
	}
	if total == 0 || req.Offset() < 0 || int64(req.Offset()) >= total {
		return newPage[Row](nil, req, total), nil
	}

	groupIDs, err := s.repo.ListGroupIDs(ctx, f, req.PageSize, req.Offset())
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if len(groupIDs) > req.PageSize {
		groupIDs = groupIDs[:req.PageSize]
	}

	members, err := s.repo.ListGroupMembers(ctx, f, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	byGroup := make(map[id.ID][]entity.MovementRecord, len(groupIDs))
	for _, m := range members {
		gid := GroupID(&m)
		byGroup[gid] = append(byGroup[gid], m)
	}

	rows := make([]Row, 0, len(groupIDs))
	for _, gid := range groupIDs {
		if group := byGroup[gid]; len(group) > 0 {
			rows = append(rows, s.groupRow(gid, group))
		}
	}
	return newPage(rows, req, total), nil
}

// groupRow collapses the movements of one group into a row led by its latest member.
func (s *Service) groupRow(gid id.ID, group []entity.MovementRecord) Row {
	sort.Slice(group, func(i, j int) bool { return lessChronological(&group[i], &group[j]) })

	related := make([]Entry, 0, len(group))
	var ref *movement.Reference
	for _, m := range group {
		e := s.Decorate(m)
		if ref == nil {
			ref = e.Reference
		}
		related = append(related, e)
	}

	lead := related[len(related)-1]
	if lead.Reference == nil {
		lead.Reference = ref
	}
	row := Row{Entry: lead, GroupID: &gid}
	if len(related) > 1 {
		row.Related = related
	}
	return row
}

// Decorate adds classification and presentation fields to m.
func (s *Service) Decorate(m entity.MovementRecord) Entry {
	return Entry{
		MovementRecord: m,
		Category:       movement.CategoryOf(m.MovementType),
		BadgeColor:     movement.BadgeColor(m.MovementType),
		QuantityClass:  movement.QuantityColorClass(m.Quantity),
		DisplayTime:    movement.FormatTimestamp(m.CreatedAt, s.location),
		Reference:      s.refs.Parse(m.Notes),
	}
}

// lessChronological orders by created_at then id, ascending.
func lessChronological(a, b *entity.MovementRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// LessRecent reports whether a sorts before b in result order (created_at DESC, id DESC).
func LessRecent(a, b *entity.MovementRecord) bool {
	return lessChronological(b, a)
}
