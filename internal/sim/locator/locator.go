// Package locator ranks nearby containers for an observer and describes where
// each one is relative to the observer's facing.
package locator

import (
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"

	"containerflow.ai/internal/sim/flow"
)

// verticalCue is the height difference beyond which a result gets an up or
// down suffix.
const verticalCue = 5.0

// IsContainer reports whether a group id names a storage container.
func IsContainer(group string) bool {
	return strings.HasPrefix(group, "Container") ||
		strings.Contains(group, "GoldenContainer") ||
		group == "canister" ||
		strings.Contains(group, "ContainerAqualis") ||
		strings.Contains(group, "ContainerToxic") ||
		strings.Contains(group, "StarformContainer")
}

func IsGolden(group string) bool { return strings.Contains(group, "Golden") }

// Observer is the point of view a scan is made from. Yaw is in degrees,
// clockwise from +Z when seen from above.
type Observer struct {
	Pos flow.Vec3
	Yaw float64
}

type Options struct {
	MaxDistance float64 // <= 0 means unlimited
	GoldenOnly  bool
}

type Result struct {
	ID        int64
	Group     string
	Pos       flow.Vec3
	Distance  float64
	Golden    bool
	Direction string
}

// Stats counts what a scan saw before distance and golden filtering.
type Stats struct {
	Scanned    int
	Containers int
}

// Scan returns the containers around obs, closest first (ties by id).
func Scan(src iter.Seq[flow.Entity], obs Observer, opts Options) ([]Result, Stats) {
	var out []Result
	var st Stats
	for e := range src {
		st.Scanned++
		if e == nil || !e.Alive() {
			continue
		}
		group := e.Group()
		if group == "" || !IsContainer(group) {
			continue
		}
		st.Containers++
		golden := IsGolden(group)
		if opts.GoldenOnly && !golden {
			continue
		}
		pos, ok := e.Position()
		if !ok {
			continue
		}
		d := obs.Pos.Dist(pos)
		if opts.MaxDistance > 0 && d > opts.MaxDistance {
			continue
		}
		out = append(out, Result{
			ID:        e.ID(),
			Group:     group,
			Pos:       pos,
			Distance:  d,
			Golden:    golden,
			Direction: Direction(obs, pos),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	return out, st
}

var arrows = [8]string{"⬆", "↗", "➡", "↘", "⬇", "↙", "⬅", "↖"}

// Direction is an 8-way arrow for target relative to the observer's facing,
// with a vertical suffix when the height difference exceeds verticalCue.
func Direction(obs Observer, target flow.Vec3) string {
	arrow := arrows[sector(RelativeAngle(obs, target))]
	dy := target.Y - obs.Pos.Y
	switch {
	case dy > verticalCue:
		arrow += "⬆"
	case dy < -verticalCue:
		arrow += "⬇"
	}
	return arrow
}

// RelativeAngle is the signed horizontal angle in degrees from the observer's
// facing to target, in [-180, 180). Positive is to the right.
func RelativeAngle(obs Observer, target flow.Vec3) float64 {
	d := target.Sub(obs.Pos)
	if d.X == 0 && d.Z == 0 {
		return 0
	}
	heading := math.Atan2(d.X, d.Z) * 180 / math.Pi
	return normalize(heading - obs.Yaw)
}

func normalize(a float64) float64 {
	a = math.Mod(a+180, 360)
	if a < 0 {
		a += 360
	}
	return a - 180
}

// sector maps an angle in [-180, 180) to 0..7 with 45 degree sectors centered
// on forward.
func sector(angle float64) int {
	s := int(math.Floor((angle + 22.5) / 45))
	return ((s % 8) + 8) % 8
}

// Format renders the top results as plain text, one container per line.
func Format(results []Result, st Stats, top int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d containers (%d container objects of %d scanned)\n", len(results), st.Containers, st.Scanned)
	if top <= 0 || top > len(results) {
		top = len(results)
	}
	for _, r := range results[:top] {
		prefix := ""
		if r.Golden {
			prefix = "[GOLDEN] "
		}
		fmt.Fprintf(&b, "  %s %s%s #%d - %.1fm\n", r.Direction, prefix, r.Group, r.ID, r.Distance)
	}
	return b.String()
}
