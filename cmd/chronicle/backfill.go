package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/worldsim/chronicle/pkg/memory"
)

// parseBackfillCSV groups metric rows into one tick per day, each row
// also becoming a transaction event linked to its entity.
func parseBackfillCSV(path string) ([]memory.TickRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"date", "entity_id"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv missing %q column", required)
		}
	}
	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	perDayStates := map[string]map[string]map[string]float64{}
	perDayEvents := map[string][]memory.EventInput{}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		date := field(record, "date")
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("line %d: bad date %q", line, date)
		}
		entityID := field(record, "entity_id")
		if entityID == "" {
			return nil, fmt.Errorf("line %d: missing entity_id", line)
		}
		metric := field(record, "metric")
		if metric == "" {
			metric = "value"
		}
		value := 0.0
		if raw := field(record, "value"); raw != "" {
			value, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad value %q", line, raw)
			}
		}

		ts, err := rowTimestamp(field(record, "ts"), date)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		eventType := field(record, "type")
		if eventType == "" {
			eventType = "txn"
		}

		if perDayStates[date] == nil {
			perDayStates[date] = map[string]map[string]float64{}
		}
		if perDayStates[date][entityID] == nil {
			perDayStates[date][entityID] = map[string]float64{}
		}
		perDayStates[date][entityID][metric] = value

		perDayEvents[date] = append(perDayEvents[date], memory.EventInput{
			TS:      ts,
			ActorID: field(record, "actor_id"),
			Type:    eventType,
			Payload: map[string]any{"metric": metric, "value": value},
			Links:   []string{entityID},
		})
	}

	dates := make([]string, 0, len(perDayStates))
	for date := range perDayStates {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	requests := make([]memory.TickRequest, 0, len(dates))
	for _, date := range dates {
		entityIDs := make([]string, 0, len(perDayStates[date]))
		for id := range perDayStates[date] {
			entityIDs = append(entityIDs, id)
		}
		sort.Strings(entityIDs)

		states := make([]memory.EntityState, 0, len(entityIDs))
		for _, id := range entityIDs {
			states = append(states, memory.EntityState{
				Date:     date,
				EntityID: id,
				State:    perDayStates[date][id],
			})
		}
		requests = append(requests, memory.TickRequest{
			Date:     date,
			Entities: states,
			Global: memory.DailyState{
				Date: date,
				Global: map[string]any{
					"entities":     float64(len(states)),
					"total_events": float64(len(perDayEvents[date])),
				},
			},
			Events: perDayEvents[date],
		})
	}
	return requests, nil
}

func rowTimestamp(raw, date string) (time.Time, error) {
	if raw == "" {
		raw = date + "T00:00:00"
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad ts %q", raw)
}
