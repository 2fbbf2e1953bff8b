package domain

import "sort"

// GroupSessions groups raw order rows into session aggregates. It is
// the single canonical grouping used by both the poll path and the
// incremental projection, replacing the per-call-site variants that
// used to drift apart.
//
// Orders are processed in ascending (created_at, id) order regardless
// of input order, so replaying the same multiset always yields the
// same aggregates. After grouping, each outlet's sessions are numbered
// 1..n by ascending latest-order time, and the flattened result is
// returned newest session first.
func GroupSessions(orders []Order) []Session {
	sorted := make([]Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	index := make(map[SessionKey]int)
	sessions := make([]Session, 0, len(sorted))
	for _, o := range sorted {
		if o.SessionID == "" {
			o.SessionID = SyntheticSessionID(o)
		}
		k := SessionKey{SessionID: o.SessionID, OutletSlug: o.OutletSlug}
		if i, ok := index[k]; ok {
			sessions[i].AddOrder(o)
			continue
		}
		index[k] = len(sessions)
		sessions = append(sessions, NewSession(o))
	}

	numberPerOutlet(sessions)

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LatestOrderTime.After(sessions[j].LatestOrderTime)
	})
	return sessions
}

// numberPerOutlet assigns each outlet's sessions a 1-based display
// number by ascending latest-order time.
func numberPerOutlet(sessions []Session) {
	byOutlet := make(map[string][]*Session)
	for i := range sessions {
		slug := sessions[i].OutletSlug
		byOutlet[slug] = append(byOutlet[slug], &sessions[i])
	}
	for _, group := range byOutlet {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].LatestOrderTime.Before(group[j].LatestOrderTime)
		})
		for i, s := range group {
			s.OrderNumber = i + 1
		}
	}
}
