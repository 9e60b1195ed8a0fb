// Package orchestrator is C3: it owns the mapping exch_id -> {running?,
// endpoint?, pod_name?} and drives pod lifecycle from the exchange calendar
// (spec §4.3).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"simcore/pkg/dbgateway"
)

// CalendarSource supplies the set of exchanges C3 schedules pods for.
type CalendarSource interface {
	Exchanges(ctx context.Context) ([]dbgateway.Exchange, error)
}

// manifestFile is the on-disk shape for dev/test calendar seeding, loaded
// once at startup and upserted into the DatabaseGateway so the control loop
// always reads from the same CalendarSource in every environment.
type manifestFile struct {
	Exchanges []manifestExchange `yaml:"exchanges"`
}

type manifestExchange struct {
	ExchID    string   `yaml:"exch_id"`
	Timezone  string   `yaml:"timezone"`
	PreOpen   string   `yaml:"pre_open"`
	Open      string   `yaml:"open"`
	Close     string   `yaml:"close"`
	PostClose string   `yaml:"post_close"`
	Symbols   []string `yaml:"symbols"`
}

// LoadManifest reads a YAML exchange-calendar manifest and upserts every
// entry into db, so the running process and its CalendarSource agree.
func LoadManifest(ctx context.Context, db dbgateway.DatabaseGateway, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read calendar manifest: %w", err)
	}
	var file manifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse calendar manifest: %w", err)
	}
	for _, e := range file.Exchanges {
		ex := dbgateway.Exchange{
			ExchID: e.ExchID, Timezone: e.Timezone, PreOpen: e.PreOpen,
			Open: e.Open, Close: e.Close, PostClose: e.PostClose, Symbols: e.Symbols,
		}
		if err := db.MarketData().UpsertExchange(ctx, ex); err != nil {
			return fmt.Errorf("upsert exchange %s: %w", e.ExchID, err)
		}
	}
	return nil
}

// shouldBeRunning computes pre_open <= now_in_exchange_tz <= post_close
// (§4.3 step 2). Times are "HH:MM" local to the exchange's IANA timezone.
func shouldBeRunning(e dbgateway.Exchange, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return false, fmt.Errorf("load timezone %s: %w", e.Timezone, err)
	}
	local := now.In(loc)

	preOpen, err := parseClock(local, e.PreOpen)
	if err != nil {
		return false, err
	}
	postClose, err := parseClock(local, e.PostClose)
	if err != nil {
		return false, err
	}
	return !local.Before(preOpen) && !local.After(postClose), nil
}

func parseClock(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", hhmm, day.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
