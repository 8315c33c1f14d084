package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/storage"
)

// Keys in the long-lived store.
const (
	KeyWorkHours = "workHours"
	KeySavedView = "savedViews"
	KeyColors    = "colors"
	KeyMinGap    = "minGapMinutes"
)

// DefaultMinGapMinutes is the shortest free slot worth showing.
const DefaultMinGapMinutes = 30

// ErrViewNotFound is returned when no saved view matches.
var ErrViewNotFound = errors.New("saved view not found")

// SavedView is a named combination of date, granularity and display options.
// A nil MinGapMinutes or WorkHours means the stored preference applies.
type SavedView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Date          string     `json:"date,omitempty"`
	View          string     `json:"view"`
	Details       bool       `json:"details"`
	MinGapMinutes *int       `json:"minGapMinutes,omitempty"`
	WorkHours     *WorkHours `json:"workHours,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Colors maps each provider to its display color.
type Colors map[provider.Source]string

// DefaultColors returns the built-in provider colors.
func DefaultColors() Colors {
	return Colors{
		provider.Microsoft: "#0078D4",
		provider.Google:    "#34A853",
	}
}

var colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{6}|[0-9]{1,3})$`)

// ValidColor reports whether c is a hex color or an ANSI 256 color index.
func ValidColor(c string) bool {
	return colorPattern.MatchString(c)
}

// Store reads and writes user preferences as JSON values. Malformed or
// unreadable values fall back to defaults and are only logged.
type Store struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a preferences store over the given key-value store.
func New(store storage.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		store:  store,
		logger: logging.WithOperation(logger, "prefs"),
		now:    time.Now,
	}
}

// WorkHours returns the configured work hours, or the default.
func (s *Store) WorkHours(ctx context.Context) WorkHours {
	wh := DefaultWorkHours()
	if !s.load(ctx, KeyWorkHours, &wh) {
		return DefaultWorkHours()
	}
	return wh.Normalize()
}

// SetWorkHours stores normalized work hours.
func (s *Store) SetWorkHours(ctx context.Context, wh WorkHours) error {
	return s.save(ctx, KeyWorkHours, wh.Normalize())
}

// MinGapMinutes returns the minimum free slot length.
func (s *Store) MinGapMinutes(ctx context.Context) int {
	n := DefaultMinGapMinutes
	if !s.load(ctx, KeyMinGap, &n) || n < 0 {
		return DefaultMinGapMinutes
	}
	return n
}

// SetMinGapMinutes stores the minimum free slot length.
func (s *Store) SetMinGapMinutes(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("minimum gap must not be negative, got %d", n)
	}
	return s.save(ctx, KeyMinGap, n)
}

// Colors returns the provider colors, filling gaps with defaults.
func (s *Store) Colors(ctx context.Context) Colors {
	out := DefaultColors()
	var stored Colors
	if !s.load(ctx, KeyColors, &stored) {
		return out
	}
	for src, c := range stored {
		if ValidColor(c) {
			out[src] = c
		}
	}
	return out
}

// SetColor stores one provider's display color.
func (s *Store) SetColor(ctx context.Context, src provider.Source, color string) error {
	if !ValidColor(color) {
		return fmt.Errorf("invalid color %q: want #RRGGBB or an ANSI color number", color)
	}
	colors := s.Colors(ctx)
	colors[src] = color
	return s.save(ctx, KeyColors, colors)
}

// SavedViews returns all saved views ordered by name.
func (s *Store) SavedViews(ctx context.Context) []SavedView {
	var views []SavedView
	if !s.load(ctx, KeySavedView, &views) {
		return nil
	}
	sort.SliceStable(views, func(i, j int) bool {
		return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
	})
	return views
}

// FindView returns the view with the given ID or name (case-insensitive).
func (s *Store) FindView(ctx context.Context, ref string) (SavedView, error) {
	for _, v := range s.SavedViews(ctx) {
		if matches(v, ref) {
			return v, nil
		}
	}
	return SavedView{}, fmt.Errorf("%w: %q", ErrViewNotFound, ref)
}

// SaveView validates and stores a view. A view whose name already exists
// replaces it and keeps the existing ID.
func (s *Store) SaveView(ctx context.Context, v SavedView) (SavedView, error) {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return SavedView{}, errors.New("saved view needs a name")
	}
	g, err := period.ParseGranularity(v.View)
	if err != nil {
		return SavedView{}, err
	}
	v.View = string(g)
	if v.Date != "" {
		if _, err := time.Parse(period.DateLayout, v.Date); err != nil {
			return SavedView{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", v.Date)
		}
	}
	if v.MinGapMinutes != nil && *v.MinGapMinutes < 0 {
		return SavedView{}, fmt.Errorf("minimum gap must not be negative, got %d", *v.MinGapMinutes)
	}
	if v.WorkHours != nil {
		wh := v.WorkHours.Normalize()
		v.WorkHours = &wh
	}

	views := s.SavedViews(ctx)
	replaced := false
	for i := range views {
		if strings.EqualFold(views[i].Name, v.Name) {
			v.ID = views[i].ID
			v.CreatedAt = views[i].CreatedAt
			views[i] = v
			replaced = true
			break
		}
	}
	if !replaced {
		v.ID = uuid.NewString()
		v.CreatedAt = s.now().UTC()
		views = append(views, v)
	}

	if err := s.save(ctx, KeySavedView, views); err != nil {
		return SavedView{}, err
	}
	return v, nil
}

// DeleteView removes the view with the given ID or name.
func (s *Store) DeleteView(ctx context.Context, ref string) error {
	views := s.SavedViews(ctx)
	kept := views[:0]
	found := false
	for _, v := range views {
		if !found && matches(v, ref) {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrViewNotFound, ref)
	}
	return s.save(ctx, KeySavedView, kept)
}

func matches(v SavedView, ref string) bool {
	ref = strings.TrimSpace(ref)
	return v.ID == ref || strings.EqualFold(v.Name, ref)
}

// load decodes the value under key into dst. It reports false when the key
// is absent or the stored value cannot be used.
func (s *Store) load(ctx context.Context, key string, dst any) bool {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Warn("reading preference failed, using default", slog.String("key", key), logging.Err(err))
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn("malformed preference, using default", slog.String("key", key), logging.Err(err))
		return false
	}
	return true
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
