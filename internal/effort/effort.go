// Package effort keeps the running total of remediation effort across runs.
package effort

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// DefaultFloor is the minimum effort credited for one fix.
const DefaultFloor = 5 * time.Minute

type state struct {
	TotalEffortMinutes int `json:"totalEffortMinutes"`
}

// Accumulator adds per-fix effort to a persisted total. It assumes a single
// writer; concurrent pipeline instances may lose updates.
type Accumulator struct {
	path  string
	floor time.Duration
}

// New returns an Accumulator persisting to path. A floor <= 0 uses DefaultFloor.
func New(path string, floor time.Duration) *Accumulator {
	if floor <= 0 {
		floor = DefaultFloor
	}
	return &Accumulator{path: path, floor: floor}
}

// Total returns the persisted total in minutes. A missing file is zero.
func (a *Accumulator) Total() (int, error) {
	var st state
	if err := pipeline.ReadJSON(a.path, &st); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("load effort: %w", err)
	}
	return st.TotalEffortMinutes, nil
}

// Record credits d (raised to the floor when zero) and returns the new total.
func (a *Accumulator) Record(d time.Duration) (int, error) {
	minutes := Minutes(d)
	if d <= 0 {
		minutes = Minutes(a.floor)
	}

	total, err := a.Total()
	if err != nil {
		return 0, err
	}
	total += minutes
	if err := pipeline.WriteJSON(a.path, state{TotalEffortMinutes: total}); err != nil {
		return 0, fmt.Errorf("save effort: %w", err)
	}
	return total, nil
}

// Minutes converts d to whole minutes, rounding up partial minutes.
func Minutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

var effortPart = regexp.MustCompile(`(\d+)\s*(d|h|min)`)

// Parse converts a tracker effort string such as "5min", "1h30min" or "2d"
// into a duration. One day is eight working hours. Empty or unrecognised
// input is zero.
func Parse(s string) time.Duration {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	var total time.Duration
	for _, m := range effortPart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch m[2] {
		case "d":
			total += time.Duration(n) * 8 * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "min":
			total += time.Duration(n) * time.Minute
		}
	}
	return total
}
