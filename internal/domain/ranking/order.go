package ranking

import (
	"math"
	"sort"
	"tle_zone_contest/internal/domain/model"
)

const scoreEpsilon = 1e-9

// compareKeys orders two rows by the mode's (primary, secondary) key only.
// Negative means a ranks strictly better than b; zero means they share a rank.
func compareKeys(mode model.ContestMode, a, b *model.RankingRow) int {
	if mode == model.ModeOI {
		if d := a.TotalScore - b.TotalScore; math.Abs(d) > scoreEpsilon {
			if d > 0 {
				return -1
			}
			return 1
		}
		return lastAccept(a) - lastAccept(b)
	}
	if a.SolvedCount != b.SolvedCount {
		return b.SolvedCount - a.SolvedCount
	}
	return a.TotalPenalty - b.TotalPenalty
}

func lastAccept(r *model.RankingRow) int {
	if r.LastAccept == nil {
		return 0
	}
	return *r.LastAccept
}

// SortAndRank sorts rows in place and assigns standard competition ranks:
// rows with equal keys share a rank and the next distinct key gets
// 1 + the number of rows strictly ahead of it. User id breaks display ties.
func SortAndRank(mode model.ContestMode, rows []model.RankingRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := compareKeys(mode, &rows[i], &rows[j]); c != 0 {
			return c < 0
		}
		return rows[i].UserID < rows[j].UserID
	})
	for i := range rows {
		if i > 0 && compareKeys(mode, &rows[i-1], &rows[i]) == 0 {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}
}

// RankAgainst returns the rank row would take in an already ranked table without
// being inserted into it.
func RankAgainst(mode model.ContestMode, row model.RankingRow, ranked []model.RankingRow) int {
	better := 0
	for i := range ranked {
		if ranked[i].UserID == row.UserID {
			continue
		}
		if compareKeys(mode, &ranked[i], &row) < 0 {
			better++
		}
	}
	return better + 1
}

// FindRow returns the row for userID in a snapshot.
func FindRow(s *model.RankingSnapshot, userID string) (model.RankingRow, bool) {
	for _, r := range s.Rows {
		if r.UserID == userID {
			return r, true
		}
	}
	return model.RankingRow{}, false
}
