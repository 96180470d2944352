package datatypes

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type Outcome string

var (
	OutcomeDirect Outcome = "direct"
	OutcomeMirror Outcome = "mirror"
	OutcomeFailed Outcome = "failed"
	OutcomeBypass Outcome = "bypass"
)

// RaceStats counts race outcomes per origin host
// It protects these for multi threaded access
type RaceStats struct {
	counters cmap.ConcurrentMap[string, uint64]
}

type OutcomeCount struct {
	Host    string
	Outcome Outcome
	Count   uint64
}

func NewRaceStats() *RaceStats {
	return &RaceStats{
		counters: cmap.New[uint64](),
	}
}

func (me *RaceStats) Record(host string, outcome Outcome) {
	if me == nil {
		return
	}

	me.counters.Upsert(host+" "+string(outcome), 1, func(exist bool, valueInMap, newValue uint64) uint64 {
		if exist {
			return valueInMap + newValue
		}

		return newValue
	})
}

func (me *RaceStats) Count(host string, outcome Outcome) uint64 {
	count, _ := me.counters.Get(host + " " + string(outcome))
	return count
}

// ForEach visits the counters ordered by host and outcome.
func (me *RaceStats) ForEach(f func(OutcomeCount)) {
	items := me.counters.Items()

	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		host, outcome := splitKey(key)
		f(OutcomeCount{Host: host, Outcome: Outcome(outcome), Count: items[key]})
	}
}

func splitKey(key string) (string, string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ' ' {
			return key[:i], key[i+1:]
		}
	}

	return key, ""
}
