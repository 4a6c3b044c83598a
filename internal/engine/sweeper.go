package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"funnel-backend/internal/store"
)

// Sweeper periodically ticks every user that has a funnel position, so
// TIMEOUT and TIME transitions fire without any inbound event. Users are
// scanned in keyset batches to keep memory flat on large tables.
type Sweeper struct {
	store     *store.Store
	engine    *FunnelEngine
	interval  time.Duration
	batchSize int
	ticker    *time.Ticker
	done      chan struct{}
}

func NewSweeper(s *store.Store, engine *FunnelEngine, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Sweeper{store: s, engine: engine, interval: interval, batchSize: batchSize}
}

// Start begins the background sweep loop.
func (sw *Sweeper) Start() {
	sw.ticker = time.NewTicker(sw.interval)
	sw.done = make(chan struct{})
	go sw.run()
	log.Printf("Funnel sweeper started (%s interval)", sw.interval)
}

// Stop halts the sweep loop.
func (sw *Sweeper) Stop() {
	if sw.ticker != nil {
		sw.ticker.Stop()
	}
	if sw.done != nil {
		close(sw.done)
	}
}

func (sw *Sweeper) run() {
	for {
		select {
		case <-sw.done:
			return
		case <-sw.ticker.C:
			sw.Sweep(context.Background())
		}
	}
}

// Sweep runs one full pass over all funnel users. Exported so admin
// tooling and tests can trigger a pass on demand.
func (sw *Sweeper) Sweep(ctx context.Context) {
	version := sw.engine.registry.ActiveVersion()
	if version == nil {
		return
	}

	var cursor string
	ticked, transitioned := 0, 0
	for {
		if ctx.Err() != nil {
			return
		}

		pb := sw.store.Dialect.NewParamBuilder()
		query := fmt.Sprintf(`SELECT user_id FROM _user_funnel_states
			WHERE version_id = %s AND user_id > %s
			ORDER BY user_id
			LIMIT %d`,
			pb.Add(version.ID), pb.Add(cursor), sw.batchSize)
		rows, err := store.QueryRows(ctx, sw.store.DB, query, pb.Params()...)
		if err != nil {
			log.Printf("ERROR: funnel sweep query failed: %v", err)
			return
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			userID := fmt.Sprintf("%v", row["user_id"])
			cursor = userID

			result, err := sw.engine.Tick(ctx, userID, "")
			if err != nil {
				log.Printf("ERROR: sweep tick failed for user %s: %v", userID, err)
				continue
			}
			ticked++
			if result.Transitioned {
				transitioned++
			}
		}

		if len(rows) < sw.batchSize {
			break
		}
	}

	if transitioned > 0 {
		log.Printf("Funnel sweep: %d users ticked, %d transitioned", ticked, transitioned)
	}
}
