package iq

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

const DefaultPageSize = 50

// SearchFilters narrow the room listing. Numeric filters arrive as text,
// the way they do in a submitted form.
type SearchFilters struct {
	Names                    []string `json:"names,omitempty"`
	ExactMatch               bool     `json:"exact_match,omitempty"`
	Subject                  string   `json:"subject,omitempty"`
	MinUsers                 string   `json:"min_users,omitempty"`
	MaxCapacity              string   `json:"max_capacity,omitempty"`
	IncludePasswordProtected *bool    `json:"include_password_protected,omitempty"`
}

// Paging selects a window of the sorted result. After is an offset into
// it, as returned in SearchResult.Last: the index of the first item not
// yet seen.
type Paging struct {
	After string `json:"after,omitempty"`
	Max   int    `json:"max,omitempty"`
}

type SearchRequest struct {
	Filters SearchFilters `json:"filters"`
	Paging  Paging        `json:"paging"`
}

type SearchResult struct {
	Rooms []domain.RoomInfo `json:"rooms"`
	First string            `json:"first,omitempty"`
	Last  string            `json:"last,omitempty"`
	Count int               `json:"count"`
}

// SearchHandler looks rooms of one service up by name, subject and size.
type SearchHandler struct {
	Service *core.Service
	cache   *expirable.LRU[string, []domain.RoomInfo]
}

// NewSearchHandler caches sorted results per filter set for ttl when
// cacheSize > 0.
func NewSearchHandler(svc *core.Service, cacheSize int, ttl time.Duration) *SearchHandler {
	h := &SearchHandler{Service: svc}
	if cacheSize > 0 {
		h.cache = expirable.NewLRU[string, []domain.RoomInfo](cacheSize, nil, ttl)
	}
	return h
}

type searchQuery struct {
	names       []string
	exact       bool
	subject     string
	minUsers    int
	maxCapacity int
	withPass    bool
}

func parseFilters(f SearchFilters) (searchQuery, error) {
	q := searchQuery{exact: f.ExactMatch, withPass: true}
	for _, n := range f.Names {
		if n = strings.TrimSpace(n); n != "" {
			q.names = append(q.names, strings.ToLower(n))
		}
	}
	q.subject = strings.ToLower(strings.TrimSpace(f.Subject))
	var err error
	if s := strings.TrimSpace(f.MinUsers); s != "" {
		if q.minUsers, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("%w: min users %q", domain.ErrBadRequest, s)
		}
	}
	if s := strings.TrimSpace(f.MaxCapacity); s != "" {
		if q.maxCapacity, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("%w: max capacity %q", domain.ErrBadRequest, s)
		}
	}
	if f.IncludePasswordProtected != nil {
		q.withPass = *f.IncludePasswordProtected
	}
	return q, nil
}

func (q searchQuery) key() string {
	return fmt.Sprintf("%q|%t|%q|%d|%d|%t", q.names, q.exact, q.subject, q.minUsers, q.maxCapacity, q.withPass)
}

func (q searchQuery) match(r domain.RoomInfo) bool {
	if len(q.names) > 0 {
		name := strings.ToLower(roomTitle(r))
		hit := false
		for _, n := range q.names {
			if (q.exact && name == n) || (!q.exact && strings.Contains(name, n)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if q.subject != "" && !strings.Contains(strings.ToLower(r.Subject), q.subject) {
		return false
	}
	if q.minUsers > 0 && r.Occupants < q.minUsers {
		return false
	}
	if q.maxCapacity > 0 && (r.MaxUsers <= 0 || r.MaxUsers > q.maxCapacity) {
		return false
	}
	if !q.withPass && r.PasswordProtected {
		return false
	}
	return true
}

// roomTitle is the natural name, or the room name when none is set.
func roomTitle(r domain.RoomInfo) string {
	if r.NaturalName != "" {
		return r.NaturalName
	}
	return string(r.Name)
}

func (h *SearchHandler) visible(r domain.RoomInfo) bool {
	return r.Public && (!r.Locked || h.Service.DiscoverLocked())
}

// Search returns the rooms matching the filters sorted by occupant count,
// busiest first, ties broken by room address.
func (h *SearchHandler) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	q, err := parseFilters(req.Filters)
	if err != nil {
		return SearchResult{}, err
	}
	all, err := h.matching(q)
	if err != nil {
		return SearchResult{}, err
	}
	return page(all, req.Paging)
}

func (h *SearchHandler) matching(q searchQuery) ([]domain.RoomInfo, error) {
	key := q.key()
	if h.cache != nil {
		if rooms, ok := h.cache.Get(key); ok {
			return rooms, nil
		}
	}
	var rooms []domain.RoomInfo
	for _, r := range h.Service.Rooms() {
		info := r.Info()
		if h.visible(info) && q.match(info) {
			rooms = append(rooms, info)
		}
	}
	slices.SortFunc(rooms, func(a, b domain.RoomInfo) int {
		if c := cmp.Compare(b.Occupants, a.Occupants); c != 0 {
			return c
		}
		return cmp.Compare(a.JID, b.JID)
	})
	if h.cache != nil {
		h.cache.Add(key, rooms)
	}
	log.Debug().Str("module", "iq.search").Int("matches", len(rooms)).Msg("room search")
	return rooms, nil
}

func page(all []domain.RoomInfo, p Paging) (SearchResult, error) {
	offset := 0
	if p.After != "" {
		n, err := strconv.Atoi(p.After)
		if err != nil || n < 0 || n > len(all) {
			return SearchResult{}, fmt.Errorf("%w: cursor %q", domain.ErrItemNotFound, p.After)
		}
		offset = n
	}
	size := p.Max
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, len(all)-offset)
	end := offset + size
	res := SearchResult{Rooms: slices.Clone(all[offset:end]), Count: len(all)}
	if end > offset {
		res.First = strconv.Itoa(offset)
		res.Last = strconv.Itoa(end)
	}
	return res, nil
}
