package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/cespare/xxhash/v2"
)

// PushIntent makes intent the current intent and appends it to the bounded history,
// dropping the oldest entries beyond domain.MaxIntentHistory.
func (m *Manager) PushIntent(c *domain.ConversationContext, intent domain.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if intent.Timestamp.IsZero() {
		intent.Timestamp = m.now()
	}
	c.IntentHistory = append(c.IntentHistory, intent)
	if over := len(c.IntentHistory) - domain.MaxIntentHistory; over > 0 {
		c.IntentHistory = append([]domain.Intent(nil), c.IntentHistory[over:]...)
	}
	current := intent
	c.CurrentIntent = &current
}

// History returns a copy of the intent history, oldest first.
func (m *Manager) History(c *domain.ConversationContext) []domain.Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Intent, len(c.IntentHistory))
	copy(out, c.IntentHistory)
	return out
}

// CacheKey returns the canonical JSON encoding of params and its hash.
// encoding/json writes map keys sorted, so equal maps always share a key.
func CacheKey(params map[string]any) (string, uint64, error) {
	if params == nil {
		params = map[string]any{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode tool params: %w", err)
	}
	return string(b), xxhash.Sum64(b), nil
}

// CacheToolResult stores data as the latest result of tool, replacing any older
// entry. The entry expires after domain.CacheTTL(tool).
func (m *Manager) CacheToolResult(c *domain.ConversationContext, tool string, params map[string]any, data any) error {
	key, hash, err := CacheKey(params)
	if err != nil {
		return err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c.RecentToolResults == nil {
		c.RecentToolResults = make(map[string]domain.CachedToolResult)
	}
	c.RecentToolResults[tool] = domain.CachedToolResult{
		ToolName:   tool,
		Params:     key,
		ParamsHash: hash,
		Data:       data,
		CachedAt:   now,
		ExpiresAt:  now.Add(domain.CacheTTL(tool)),
	}
	return nil
}

// CachedToolResult returns the cached data of tool when it was produced by
// identical params and has not expired. Expired entries are deleted on read.
func (m *Manager) CachedToolResult(c *domain.ConversationContext, tool string, params map[string]any) (any, bool) {
	key, hash, err := CacheKey(params)
	if err != nil {
		return nil, false
	}

	data, hit := m.lookup(c, tool, func(e domain.CachedToolResult) bool {
		return e.ParamsHash == hash && e.Params == key
	})
	m.metrics.CacheLookup(tool, hit)
	return data, hit
}

// LatestResult returns the unexpired cached data of tool regardless of its params.
func (m *Manager) LatestResult(c *domain.ConversationContext, tool string) (any, bool) {
	return m.lookup(c, tool, func(domain.CachedToolResult) bool { return true })
}

func (m *Manager) lookup(c *domain.ConversationContext, tool string, match func(domain.CachedToolResult) bool) (any, bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := c.RecentToolResults[tool]
	if !ok {
		return nil, false
	}
	if now.After(entry.ExpiresAt) {
		delete(c.RecentToolResults, tool)
		return nil, false
	}
	if !match(entry) {
		return nil, false
	}
	return entry.Data, true
}

// RecordMentions remembers the trips or places shown to the user so later turns
// can refer to them. A new result replaces the previous list of its kind.
// It returns the number of entities recorded.
func (m *Manager) RecordMentions(c *domain.ConversationContext, tool string, data any) int {
	var (
		kind  string
		items []map[string]any
	)
	switch tool {
	case domain.ToolFindTrips:
		kind, items = domain.EntityTrip, listOf(data, "trips", "connections", "results")
	case domain.ToolFindStopPlacesByName, domain.ToolFindPlaces:
		kind, items = domain.EntityPlace, listOf(data, "places", "stopPlaces", "results")
	default:
		return 0
	}
	if len(items) == 0 {
		return 0
	}
	if len(items) > domain.MaxMentionedEntities {
		items = items[:domain.MaxMentionedEntities]
	}

	now := m.now()
	entities := make([]domain.MentionedEntity, len(items))
	for i, item := range items {
		entities[i] = domain.MentionedEntity{
			Type:           kind,
			Name:           entityName(kind, item),
			Data:           item,
			MentionedAt:    now,
			ReferenceIndex: i + 1,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == domain.EntityTrip {
		c.MentionedTrips = entities
	} else {
		c.MentionedPlaces = entities
	}
	return len(entities)
}

// Mentions returns copies of the mentioned trips and places.
func (m *Manager) Mentions(c *domain.ConversationContext) (trips, places []domain.MentionedEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trips = append([]domain.MentionedEntity(nil), c.MentionedTrips...)
	places = append([]domain.MentionedEntity(nil), c.MentionedPlaces...)
	return trips, places
}

// UpdateLocation sets the origin and destination anchors. Empty names keep the current value.
func (m *Manager) UpdateLocation(c *domain.ConversationContext, origin, destination string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if origin != "" {
		c.Location.Origin = &domain.Place{Name: origin}
	}
	if destination != "" {
		c.Location.Destination = &domain.Place{Name: destination}
	}
}

// UpdateTime sets the temporal anchors. Zero fields keep the current value.
func (m *Manager) UpdateTime(c *domain.ConversationContext, departure *time.Time, arriveBy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if departure == nil {
		return
	}
	t := *departure
	if arriveBy {
		c.Time.Arrival = &t
		c.Time.Departure = nil
	} else {
		c.Time.Departure = &t
		c.Time.Arrival = nil
	}
	c.Time.ArriveBy = arriveBy
}

// MergePreferences folds prefs into the session preferences.
func (m *Manager) MergePreferences(c *domain.ConversationContext, prefs domain.Preferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Preferences.Merge(prefs)
}

// Preferences returns a copy of the session preferences.
func (m *Manager) Preferences(c *domain.ConversationContext) domain.Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Preferences{TravelStyle: c.Preferences.TravelStyle}
	p.Merge(c.Preferences)
	return p
}

func listOf(data any, keys ...string) []map[string]any {
	switch v := data.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return v
	case map[string]any:
		for _, k := range keys {
			if nested, ok := v[k]; ok {
				return listOf(nested)
			}
		}
	}
	return nil
}

func entityName(kind string, item map[string]any) string {
	str := func(k string) string {
		s, _ := item[k].(string)
		return s
	}
	if kind == domain.EntityTrip {
		from, to := str("origin"), str("destination")
		if from != "" && to != "" {
			name := from + " → " + to
			if dep, err := time.Parse(time.RFC3339, str("departure")); err == nil {
				name += " " + dep.Format("15:04")
			}
			return name
		}
		return str("id")
	}
	if n := str("name"); n != "" {
		return n
	}
	return str("id")
}
