package photo

const (
	// BurstGapMillis is the capture-time gap that starts a new cluster.
	BurstGapMillis int64 = 2000

	// MinBurstSize is the smallest cluster that counts as a burst.
	// Clusters of three or fewer photos are noise.
	MinBurstSize = 4
)

// Clusters splits chronologically sorted photos into runs where each photo was taken
// less than BurstGapMillis after the previous one.
func Clusters(sorted []Photo) [][]Photo {
	if len(sorted) == 0 {
		return nil
	}

	var groups [][]Photo
	current := []Photo{sorted[0]}
	for _, p := range sorted[1:] {
		prev := current[len(current)-1]
		if p.DateTaken-prev.DateTaken < BurstGapMillis {
			current = append(current, p)
			continue
		}
		groups = append(groups, current)
		current = []Photo{p}
	}
	return append(groups, current)
}

// Bursts returns the clusters of sorted that are large enough to be bursts.
func Bursts(sorted []Photo) [][]Photo {
	var bursts [][]Photo
	for _, group := range Clusters(sorted) {
		if len(group) >= MinBurstSize {
			bursts = append(bursts, group)
		}
	}
	return bursts
}

// BurstSession concatenates the bursts of sorted in chronological order and truncates the
// result to limit photos. The last burst may be cut off part way through.
func BurstSession(sorted []Photo, limit int) []Photo {
	if limit <= 0 {
		return nil
	}

	session := make([]Photo, 0, limit)
	for _, burst := range Bursts(sorted) {
		for _, p := range burst {
			if len(session) >= limit {
				return session
			}
			session = append(session, p)
		}
	}
	return session
}
