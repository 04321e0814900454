// orbitdeck-sim drives the curation engine offline from local TLE files,
// printing the selected population each tick. Useful for eyeballing selection
// and tier behaviour without a live catalog or a renderer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/orbitdeck/catalog"
	"github.com/signalsfoundry/orbitdeck/config"
	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/engine"
	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
	"github.com/signalsfoundry/orbitdeck/timectrl"
)

func main() {
	dataDir := flag.String("data", "configs", "directory holding <category>.tle files")
	categories := flag.String("categories", "sample", "comma-separated categories to load")
	duration := flag.Duration("duration", 30*time.Second, "total simulated duration")
	tick := flag.Duration("tick", 1*time.Second, "frame tick interval")
	maxCount := flag.Int("max-count", 25, "selection size cap")
	flag.Parse()

	cfg := config.Default()
	cfg.Selection.MaxCount = *maxCount

	log := logging.New(logging.Config{Level: "warn", Format: "text"})
	store := catalog.NewStore(catalog.NewFileProvider(*dataDir), catalog.WithLogger(log))

	eng := engine.New(store, core.NewSGP4Propagator(), engine.Config{
		Criteria: cfg.Criteria(),
		Weights:  cfg.ScoreWeights(),
		Budget:   cfg.RenderBudget(),
	}, engine.WithLogger(log))

	var cats []model.Category
	for _, c := range strings.Split(*categories, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, model.Category(c))
		}
	}

	ctx := context.Background()
	if err := eng.RefreshCatalog(ctx, cats); err != nil {
		fmt.Fprintf(os.Stderr, "catalog load: %v\n", err)
		os.Exit(1)
	}

	status := eng.Status()
	fmt.Printf("Loaded catalog: %d selected entities (degraded=%v)\n",
		status.SelectedCount, status.Degraded)

	unsubscribe := eng.OnUpdate(func(diff model.EntityDiff) {
		if len(diff.Added) > 0 || len(diff.Removed) > 0 {
			fmt.Printf("  diff: +%d -%d ~%d\n",
				len(diff.Added), len(diff.Removed), len(diff.Updated))
		}
	})
	defer unsubscribe()

	start := time.Now().UTC()
	clock := timectrl.NewFrameClock(start, *tick, timectrl.Accelerated)
	clock.AddListener(func(frame time.Time) {
		eng.Tick(frame)
		printFrame(frame, eng.Entities())
	})

	fmt.Printf("Running: duration=%s tick=%s\n", *duration, *tick)
	<-clock.Run(*duration)
	fmt.Println("Done.")
}

func printFrame(frame time.Time, entities []model.SelectedEntity) {
	perTier := make(map[model.LODTier]int, len(model.Tiers))
	for _, e := range entities {
		perTier[e.Tier]++
	}

	fmt.Printf("[%s] hero=%d high=%d medium=%d low=%d\n",
		frame.Format(time.RFC3339),
		perTier[model.TierHero], perTier[model.TierHigh],
		perTier[model.TierMedium], perTier[model.TierLow],
	)
	for _, e := range entities {
		if e.Tier != model.TierHero {
			continue
		}
		fmt.Printf("  %-8s %-24s @ (%8.1f, %8.1f, %8.1f) km score=%.3f\n",
			e.CatalogID, e.Name, e.Position.X, e.Position.Y, e.Position.Z, e.PriorityScore)
	}
}
