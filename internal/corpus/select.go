package corpus

import "github.com/chatmod/chatmod/pkg/utils"

// SelectRelevant picks the in-context examples for a prompt. Three stages in
// fixed precedence, each only running while the context is not saturated:
// examples tagged with the primary situation, then examples sharing a token
// with the message, then everything. A cap of 0 means no limit; the uncapped
// default favors recall over token budget.
func SelectRelevant(all []Example, message, primarySituation string, cap int) []Example {
	if len(all) == 0 {
		return nil
	}

	var (
		selected []Example
		used     = make(map[int]struct{})
	)

	full := func() bool {
		return cap > 0 && len(selected) >= cap
	}

	// Stage 1: situation tag match
	for i := range all {
		if full() {
			break
		}

		if all[i].HasSituation(primarySituation) {
			selected = append(selected, all[i])
			used[i] = struct{}{}
		}
	}

	// Stage 2: keyword overlap with the current message
	for i := range all {
		if full() {
			break
		}

		if _, ok := used[i]; ok {
			continue
		}

		if utils.SharesToken(all[i].CustomerMessage, message) {
			selected = append(selected, all[i])
			used[i] = struct{}{}
		}
	}

	// Stage 3: nothing matched, take everything available
	if len(selected) == 0 {
		for i := range all {
			if full() {
				break
			}

			selected = append(selected, all[i])
		}
	}

	return selected
}
