package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// WorldPerson is one simulated person in an upstream day report.
type WorldPerson struct {
	Name        string             `json:"name"`
	BaseCity    string             `json:"base_city"`
	Occupation  string             `json:"occupation"`
	Traits      []string           `json:"traits"`
	CashUSD     float64            `json:"cash_usd"`
	EquitiesUSD float64            `json:"equities_usd"`
	Tokens      map[string]float64 `json:"tokens"`
}

// WorldDay is the day report the simulation hands over when a day ends.
type WorldDay struct {
	Date      string                 `json:"date"`
	People    map[string]WorldPerson `json:"people"`
	CoinPrice *float64               `json:"coin_price"`
	Metrics   map[string]float64     `json:"metrics"`
	Journal   []string               `json:"journal"`
}

// WorldFeed exposes day reports to the scheduler. ok=false means the
// feed has nothing for that date.
type WorldFeed interface {
	DayReport(ctx context.Context, date string) (day WorldDay, ok bool, err error)
}

// Bridge translates upstream day reports into entities and tick
// requests. It caches person ids so a person keeps one identity across
// days even if renamed upstream.
type Bridge struct {
	store      Store
	pipeline   *TickPipeline
	feed       WorldFeed
	coinSymbol string

	personIDs  map[string]string
	globalID   string
	securityID string
}

// NewBridge registers the static world and security entities before any
// tick runs.
func NewBridge(ctx context.Context, store Store, pipeline *TickPipeline, feed WorldFeed, coinSymbol string) (*Bridge, error) {
	b := &Bridge{
		store:      store,
		pipeline:   pipeline,
		feed:       feed,
		coinSymbol: coinSymbol,
		personIDs:  map[string]string{},
		globalID:   BusinessID("simulation_world"),
		securityID: SecurityID(coinSymbol),
	}
	if _, err := store.UpsertEntity(ctx, EntityUpsert{ID: b.globalID, Kind: "business", Name: "Simulation World"}); err != nil {
		return nil, fmt.Errorf("bridge: upsert world entity: %w", err)
	}
	if _, err := store.UpsertEntity(ctx, EntityUpsert{ID: b.securityID, Kind: "security", Name: coinSymbol}); err != nil {
		return nil, fmt.Errorf("bridge: upsert security entity: %w", err)
	}
	return b, nil
}

// BuildTick satisfies TickSource for the daily scheduler.
func (b *Bridge) BuildTick(ctx context.Context, date string) (TickRequest, bool, error) {
	if b.feed == nil {
		return TickRequest{}, false, nil
	}
	day, ok, err := b.feed.DayReport(ctx, date)
	if err != nil {
		return TickRequest{}, false, fmt.Errorf("bridge: day report %s: %w", date, err)
	}
	if !ok {
		return TickRequest{}, false, nil
	}
	req, err := b.tickRequest(ctx, day)
	if err != nil {
		return TickRequest{}, false, err
	}
	return req, true, nil
}

// OnDayComplete syncs one finished day straight into memory.
func (b *Bridge) OnDayComplete(ctx context.Context, day WorldDay) (TickResult, error) {
	req, err := b.tickRequest(ctx, day)
	if err != nil {
		return TickResult{}, err
	}
	return b.pipeline.Run(ctx, req)
}

func (b *Bridge) tickRequest(ctx context.Context, day WorldDay) (TickRequest, error) {
	if err := b.syncPeople(ctx, day); err != nil {
		return TickRequest{}, err
	}

	var entities []EntityState
	var totalCash, totalEquities, totalTokens float64

	for _, key := range sortedKeys(day.People) {
		person := day.People[key]
		state := map[string]float64{
			"cash_usd":     round2(person.CashUSD),
			"equities_usd": round2(person.EquitiesUSD),
		}
		totalCash += person.CashUSD
		totalEquities += person.EquitiesUSD
		for _, symbol := range sortedKeys(person.Tokens) {
			units := person.Tokens[symbol]
			state["token_"+symbol+"_units"] = round4(units)
			if symbol == b.coinSymbol {
				totalTokens += units
			}
		}
		entities = append(entities, EntityState{
			Date:     day.Date,
			EntityID: b.personIDs[key],
			State:    state,
		})
	}

	securityState := map[string]float64{"circulating_units": round4(totalTokens)}
	if day.CoinPrice != nil {
		securityState["price_usd"] = round6(*day.CoinPrice)
	}
	entities = append(entities, EntityState{
		Date:     day.Date,
		EntityID: b.securityID,
		State:    securityState,
	})

	global := map[string]any{
		"people_count":       float64(len(day.People)),
		"total_cash_usd":     round2(totalCash),
		"total_equities_usd": round2(totalEquities),
		"total_token_units":  round4(totalTokens),
	}
	if day.CoinPrice != nil {
		global[strings.ToLower(b.coinSymbol)+"_price_usd"] = round6(*day.CoinPrice)
	}
	for _, key := range sortedKeys(day.Metrics) {
		global["metric_"+key] = day.Metrics[key]
	}

	// Only the last few journal lines become events; older entries were
	// already ticked on their own day.
	tail := day.Journal
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}

	return TickRequest{
		Date:          day.Date,
		Entities:      entities,
		Global:        DailyState{Date: day.Date, Global: global},
		Events:        b.journalEvents(day.Date, tail),
		CorrelationID: "sim-" + day.Date,
	}, nil
}

func (b *Bridge) syncPeople(ctx context.Context, day WorldDay) error {
	for _, key := range sortedKeys(day.People) {
		person := day.People[key]
		memoryID, cached := b.personIDs[key]
		if !cached {
			name := person.Name
			if name == "" {
				name = key
			}
			memoryID = PersonID(name)
			b.personIDs[key] = memoryID
		}
		_, err := b.store.UpsertEntity(ctx, EntityUpsert{
			ID:   memoryID,
			Kind: "person",
			Name: person.Name,
			Meta: map[string]any{
				"base_city":  person.BaseCity,
				"traits":     person.Traits,
				"occupation": person.Occupation,
			},
		})
		if err != nil {
			return fmt.Errorf("bridge: upsert person %s: %w", key, err)
		}
	}
	return nil
}

// journalEvents timestamps journal lines in the simulated evening, five
// minutes apart, all linked to the world entity.
func (b *Bridge) journalEvents(date string, lines []string) []EventInput {
	base, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil
	}
	base = time.Date(base.Year(), base.Month(), base.Day(), 21, 0, 0, 0, time.UTC)
	var events []EventInput
	for i, line := range lines {
		if line == "" {
			continue
		}
		events = append(events, EventInput{
			TS:      base.Add(time.Duration(i*5) * time.Minute),
			ActorID: b.globalID,
			Type:    "journal",
			Payload: map[string]any{"entry": line},
			Links:   []string{b.globalID},
		})
	}
	return events
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
