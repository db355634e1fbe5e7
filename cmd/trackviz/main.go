// Trackviz renders charts and summary statistics for a recorded gate
// session. With no -session flag it picks the most recent session.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kestrel-robotics/gatekeeper/internal/db"
	"github.com/kestrel-robotics/gatekeeper/internal/report"
	"github.com/kestrel-robotics/gatekeeper/internal/security"
	"github.com/kestrel-robotics/gatekeeper/internal/units"
)

var (
	dbFile      = flag.String("db", "gatekeeper.db", "SQLite database path")
	sessionID   = flag.String("session", "", "Session ID to chart (default: most recent)")
	outputDir   = flag.String("out", "plots", "Output directory for PNG charts")
	thresholdCM = flag.Int("threshold", 100, "Distance threshold line to draw (cm)")
	unit        = flag.String("units", units.CM, "Distance units for the summary: "+units.GetValidUnitsString())
	asJSON      = flag.Bool("json", false, "Print the summary as JSON")
)

func main() {
	flag.Parse()

	if !units.IsValid(*unit) {
		log.Fatalf("invalid units %q: expected one of %s", *unit, units.GetValidUnitsString())
	}

	if err := security.ValidateExportPath(*outputDir); err != nil {
		log.Fatalf("invalid output directory: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	id := *sessionID
	if id == "" {
		sessions, err := database.Sessions()
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("no recorded sessions")
		}
		id = sessions[0].ID
	}

	frames, err := database.Frames(id)
	if err != nil {
		log.Fatalf("failed to load frames: %v", err)
	}
	if len(frames) == 0 {
		log.Fatalf("session %s has no recorded frames", id)
	}

	summary := report.Summarize(frames)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatalf("failed to encode summary: %v", err)
		}
	} else {
		printSummary(summary, *unit)
	}

	if err := report.RenderSessionPlots(frames, *thresholdCM, *outputDir); err != nil {
		log.Fatalf("failed to render plots: %v", err)
	}
	log.Printf("wrote charts to %s", *outputDir)
}

func printSummary(s report.Summary, unit string) {
	fmt.Printf("session %s: frames %d-%d (%d total)\n", s.SessionID, s.FirstFrame, s.LastFrame, s.FrameCount)
	fmt.Printf("  marker detected:  %d frames\n", s.MarkerFrames)
	fmt.Printf("  continue allowed: %d frames (%.1f%%)\n", s.ContinueFrames, s.ContinueRatio*100)
	fmt.Printf("  longest stop run: %d frames\n", s.LongestStopRun)
	if s.DistanceSamples == 0 {
		fmt.Println("  no distance readings recorded")
		return
	}
	conv := func(cm float64) float64 { return units.ConvertDistance(cm, unit) }
	fmt.Printf("  distance (%s): mean %.1f, stddev %.1f, min %.1f, max %.1f, p50 %.1f, p95 %.1f (%d samples)\n",
		unit, conv(s.DistanceMeanCM), conv(s.DistanceStdDev), conv(s.DistanceMinCM),
		conv(s.DistanceMaxCM), conv(s.DistanceP50CM), conv(s.DistanceP95CM), s.DistanceSamples)
}
