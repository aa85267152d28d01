// Package pursuit ranks unarrested suspects for the most-wanted board. Ranking is a
// pure function of the candidates, the current time and a Policy.
package pursuit

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/linesmerrill/case-portal-api/models"
)

const day = 24 * time.Hour

// RewardPerPoint is the default reward paid per score point
const RewardPerPoint int64 = 20000000

// Candidate is one suspect on one case
type Candidate struct {
	SuspectID     string
	CaseID        string
	Name          string
	NationalCode  string
	Status        models.SuspectStatus
	CrimeLevel    models.CrimeLevel
	CaseCreatedAt time.Time
}

// ScoreFunc scores a suspect from days at large and the most severe crime level.
// It must strictly increase with days and strictly increase as level decreases.
type ScoreFunc func(days int, level models.CrimeLevel) int64

// RewardFunc converts a score into a reward amount
type RewardFunc func(score int64) int64

// Policy holds the tunable pursuit parameters
type Policy struct {
	UnderPursuitAfter  time.Duration
	SeverePursuitAfter time.Duration
	Score              ScoreFunc
	Reward             RewardFunc
}

// DefaultPolicy puts a suspect under pursuit after 30 days at large and into severe
// pursuit after 60
func DefaultPolicy() Policy {
	return Policy{
		UnderPursuitAfter:  30 * day,
		SeverePursuitAfter: 60 * day,
		Score:              DefaultScore,
		Reward:             DefaultReward,
	}
}

// DefaultScore is days × (4 − level)
func DefaultScore(days int, level models.CrimeLevel) int64 {
	return int64(days) * int64(4-int(level))
}

// DefaultReward pays RewardPerPoint per score point
func DefaultReward(score int64) int64 {
	return score * RewardPerPoint
}

// Entry is one row of the board
type Entry struct {
	SuspectID    string            `json:"suspectID"`
	Name         string            `json:"name"`
	NationalCode string            `json:"nationalCode,omitempty"`
	CaseIDs      []string          `json:"caseIDs"`
	CrimeLevel   models.CrimeLevel `json:"crimeLevel"`
	DaysAtLarge  int               `json:"daysAtLarge"`
	Severe       bool              `json:"severe"`
	Score        int64             `json:"score"`
	Reward       int64             `json:"reward"`
}

// Rank returns the suspects under pursuit at now, most wanted first. The same person
// on several cases (by national code) is one entry carrying the longest time at large
// and the most severe level.
func Rank(candidates []Candidate, now time.Time, policy Policy) []Entry {
	type group struct {
		entry Entry
		at    time.Duration
	}
	groups := make(map[string]*group)
	var order []string
	for _, c := range candidates {
		if c.Status == models.SuspectArrested || !c.CrimeLevel.Valid() {
			continue
		}
		key := c.NationalCode
		if key == "" {
			key = "id:" + c.SuspectID
		}
		at := now.Sub(c.CaseCreatedAt)
		g, ok := groups[key]
		if !ok {
			g = &group{entry: Entry{
				SuspectID:    c.SuspectID,
				Name:         c.Name,
				NationalCode: c.NationalCode,
				CrimeLevel:   c.CrimeLevel,
			}, at: at}
			groups[key] = g
			order = append(order, key)
		} else {
			if at > g.at {
				g.at = at
			}
			if c.CrimeLevel < g.entry.CrimeLevel {
				g.entry.CrimeLevel = c.CrimeLevel
			}
		}
		g.entry.CaseIDs = appendUnique(g.entry.CaseIDs, c.CaseID)
	}

	out := make([]Entry, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.at <= policy.UnderPursuitAfter {
			continue
		}
		e := g.entry
		e.DaysAtLarge = int(g.at / day)
		e.Severe = g.at > policy.SeverePursuitAfter
		e.Score = policy.Score(e.DaysAtLarge, e.CrimeLevel)
		e.Reward = policy.Reward(e.Score)
		sort.Strings(e.CaseIDs)
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DaysAtLarge != out[j].DaysAtLarge {
			return out[i].DaysAtLarge > out[j].DaysAtLarge
		}
		return out[i].SuspectID < out[j].SuspectID
	})
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// CheckMonotonic verifies that the policy's score strictly increases with days at large
// and with severity, and that rewards never decrease with score, over the first maxDays days
func CheckMonotonic(policy Policy, maxDays int) error {
	if policy.Score == nil || policy.Reward == nil {
		return fmt.Errorf("pursuit policy needs both a score and a reward function")
	}
	if policy.SeverePursuitAfter < policy.UnderPursuitAfter {
		return fmt.Errorf("severe threshold %s is below the pursuit threshold %s", policy.SeverePursuitAfter, policy.UnderPursuitAfter)
	}
	prevReward := int64(math.MinInt64)
	for d := 1; d <= maxDays; d++ {
		for l := models.CrimeLevelCritical; l <= models.CrimeLevelThree; l++ {
			s := policy.Score(d, l)
			if d > 1 && s <= policy.Score(d-1, l) {
				return fmt.Errorf("score does not increase with days at day %d level %d", d, l)
			}
			if l > models.CrimeLevelCritical && s >= policy.Score(d, l-1) {
				return fmt.Errorf("score does not increase with severity at day %d level %d", d, l)
			}
		}
	}
	for s := int64(0); s <= int64(maxDays)*4; s++ {
		r := policy.Reward(s)
		if r < prevReward {
			return fmt.Errorf("reward decreases at score %d", s)
		}
		prevReward = r
	}
	return nil
}
