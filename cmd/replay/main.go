// =============================================================================
// PULSE - REPLAY
// =============================================================================
// This standalone tool inspects journal bundles recorded by the engine server:
// - Lists the bundles under a journal root
// - Summarizes one bundle: event counts by kind, tick span, frame cadence,
//   artefact sizes
//
// USAGE:
//   go run ./cmd/replay -root journal              # list bundles
//   go run ./cmd/replay -dir journal/<bundle>      # summarize one bundle
// =============================================================================
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pulse/internal/journal"
)

func main() {
	root := flag.String("root", "journal", "journal root containing bundles")
	dir := flag.String("dir", "", "one bundle directory to summarize")
	flag.Parse()

	if *dir == "" {
		if err := listBundles(*root); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := summarize(*dir); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func listBundles(root string) error {
	dirs, err := journal.ListBundles(root)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		fmt.Printf("No bundles under %s\n", root)
		return nil
	}

	for _, d := range dirs {
		m, err := journal.ReadManifest(d)
		if err != nil {
			fmt.Printf("%s (unreadable manifest: %v)\n", d, err)
			continue
		}
		fmt.Println(d)
		fmt.Printf("  label: %s  created: %s  frame interval: %dms\n",
			m.Label, m.CreatedAt, m.FrameIntervalMs)
	}
	return nil
}

func summarize(dir string) error {
	m, err := journal.ReadManifest(dir)
	if err != nil {
		return err
	}

	fmt.Printf("Bundle: %s\n", dir)
	fmt.Printf("  label:   %s\n", m.Label)
	fmt.Printf("  created: %s\n", m.CreatedAt)
	fmt.Printf("  schema:  v%d\n", m.Version)
	fmt.Println()

	events, err := journal.ReadEvents(dir)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	printEvents(events)

	frames, err := journal.ReadFrames(dir)
	if err != nil {
		return fmt.Errorf("read frames: %w", err)
	}
	printFrames(frames, m.FrameIntervalMs)

	fmt.Println("Artefacts:")
	for _, name := range []string{"manifest.json", m.EventsPath, m.FramesPath} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			fmt.Printf("  %-18s missing\n", name)
			continue
		}
		fmt.Printf("  %-18s %s\n", name, humanBytes(info.Size()))
	}
	return nil
}

func printEvents(events []journal.Event) {
	if len(events) == 0 {
		fmt.Println("Events: none")
		fmt.Println()
		return
	}

	counts := make(map[string]int)
	minTick, maxTick := events[0].Tick, events[0].Tick
	for _, e := range events {
		counts[e.Kind]++
		if e.Tick < minTick {
			minTick = e.Tick
		}
		if e.Tick > maxTick {
			maxTick = e.Tick
		}
	}

	first := time.Unix(0, events[0].Timestamp).UTC()
	last := time.Unix(0, events[len(events)-1].Timestamp).UTC()

	fmt.Printf("Events: %d total, ticks %d..%d, span %s\n",
		len(events), minTick, maxTick, last.Sub(first).Round(time.Millisecond))

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  %-14s %d\n", kind, counts[kind])
	}
	fmt.Println()
}

func printFrames(frames []journal.FrameRecord, intervalMs int) {
	if len(frames) == 0 {
		fmt.Println("Frames: none")
		fmt.Println()
		return
	}

	var minGap, maxGap, sumGap time.Duration
	for i := 1; i < len(frames); i++ {
		gap := frames[i].CapturedAt.Sub(frames[i-1].CapturedAt)
		if i == 1 || gap < minGap {
			minGap = gap
		}
		if gap > maxGap {
			maxGap = gap
		}
		sumGap += gap
	}

	fmt.Printf("Frames: %d kept, seq %d..%d, configured interval %dms\n",
		len(frames), frames[0].Seq, frames[len(frames)-1].Seq, intervalMs)
	if len(frames) > 1 {
		avgGap := sumGap / time.Duration(len(frames)-1)
		fmt.Printf("  capture gap avg %s (min %s, max %s)\n",
			avgGap.Round(time.Millisecond), minGap.Round(time.Millisecond), maxGap.Round(time.Millisecond))
	}
	fmt.Printf("  frame payload %s each\n", humanBytes(int64(len(frames[0].Pixels))))
	fmt.Println()
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
