package model

// RankingEntry is one row of the leaderboard
type RankingEntry struct {
	UserID   UserID
	Username string
	Counter  int64
}

// RankingSnapshot is the ordered top-N view of players by counter value
type RankingSnapshot []RankingEntry

// Find returns the entry for the given user, if present
func (s RankingSnapshot) Find(id UserID) (RankingEntry, bool) {
	for _, e := range s {
		if e.UserID == id {
			return e, true
		}
	}
	return RankingEntry{}, false
}
