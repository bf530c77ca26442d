package simulate

import (
	"hash/fnv"
	"math/rand/v2"
	"strconv"
)

// Step is one planned submission.
type Step struct {
	Judge         int
	ParticipantID string
	Score         int
}

// Expectation is what the plan leaves behind for one participant: the sum
// of each judge's last score and the number of distinct judges.
type Expectation struct {
	Sum    int64
	Judges int
}

// BuildPlan draws n submissions. Roughly repeatRatio of them re-score a
// pair already in the plan so the server sees updates as well as creates.
func BuildPlan(rng *rand.Rand, judges int, participants []string, n int, repeatRatio float64, minScore, maxScore int) []Step {
	if judges <= 0 || len(participants) == 0 || maxScore < minScore {
		return nil
	}
	plan := make([]Step, 0, n)
	for range n {
		s := Step{Score: minScore + rng.IntN(maxScore-minScore+1)}
		if len(plan) > 0 && rng.Float64() < repeatRatio {
			prev := plan[rng.IntN(len(plan))]
			s.Judge, s.ParticipantID = prev.Judge, prev.ParticipantID
		} else {
			s.Judge = rng.IntN(judges)
			s.ParticipantID = participants[rng.IntN(len(participants))]
		}
		plan = append(plan, s)
	}
	return plan
}

// Expect folds a plan into per-participant expectations, keeping only the
// last score of every pair.
func Expect(plan []Step) map[string]Expectation {
	type pair struct {
		judge int
		pid   string
	}
	last := make(map[pair]int, len(plan))
	for _, s := range plan {
		last[pair{s.Judge, s.ParticipantID}] = s.Score
	}
	out := make(map[string]Expectation)
	for p, v := range last {
		e := out[p.pid]
		e.Sum += int64(v)
		e.Judges++
		out[p.pid] = e
	}
	return out
}

// Shard routes every step of one pair to the same worker so a pair's
// submissions reach the server in plan order.
func Shard(s Step, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.Itoa(s.Judge) + "/" + s.ParticipantID))
	return int(h.Sum32() % uint32(workers))
}
