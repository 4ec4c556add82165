package tasks

import (
	"github.com/lysyi3m/site-watch/app/database"
	"github.com/lysyi3m/site-watch/app/site"
)

type DiffMode string

const (
	// DiffCount reports max(0, current-previous) new items and never
	// computes changed or removed items.
	DiffCount DiffMode = "count"
	// DiffIdentity compares item keys and fingerprints with the previous
	// result.
	DiffIdentity DiffMode = "identity"
)

func ParseDiffMode(s string) DiffMode {
	if DiffMode(s) == DiffIdentity {
		return DiffIdentity
	}
	return DiffCount
}

type Diff struct {
	New     int
	Changed int
	Removed int
}

func itemKeys(items []site.Item) map[string]string {
	keys := make(map[string]string, len(items))
	for _, item := range items {
		keys[item.Key()] = item.Fingerprint()
	}
	return keys
}

func countDiff(previous *database.ScrapeResult, current int) Diff {
	baseline := 0
	if previous != nil {
		baseline = previous.ItemsFound
	}
	return Diff{New: max(0, current-baseline)}
}

func identityDiff(previous, current map[string]string) Diff {
	var d Diff
	for key, fingerprint := range current {
		old, ok := previous[key]
		switch {
		case !ok:
			d.New++
		case old != fingerprint:
			d.Changed++
		}
	}
	for key := range previous {
		if _, ok := current[key]; !ok {
			d.Removed++
		}
	}
	return d
}

func computeDiff(mode DiffMode, previous *database.ScrapeResult, items []site.Item, keys map[string]string) Diff {
	if mode != DiffIdentity {
		return countDiff(previous, len(items))
	}
	if previous == nil {
		return Diff{New: len(keys)}
	}
	// Results written before identity diffing was enabled carry no keys.
	if previous.Status == database.ResultSuccess && previous.ItemsFound > 0 && len(previous.ItemKeys) == 0 {
		return countDiff(previous, len(items))
	}
	return identityDiff(previous.ItemKeys, keys)
}
