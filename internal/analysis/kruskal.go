package analysis

import (
	"math/rand"
	"sort"
)

// kwObserved captures the rank setup of the pooled sample so permutations
// only reshuffle values, never recompute sizes or tie structure.
type kwObserved struct {
	pooled        []float64
	sizes         []int
	tieCorrection float64
	hStatistic    float64
}

// rankAverage assigns average ranks (1-based) with ties sharing the mean of
// their rank run.
func rankAverage(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+2) / 2 // mean of 1-based ranks i+1..j+1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// tieCorrection computes 1 - sum(t^3 - t) / (N^3 - N) over tie runs of the
// pooled sorted sample.
func tieCorrection(pooled []float64) float64 {
	sorted := append([]float64(nil), pooled...)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	if n < 2 {
		return 1
	}
	var tieSum float64
	i := 0
	for i < len(sorted) {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[i] {
			j++
		}
		t := float64(j - i + 1)
		if t > 1 {
			tieSum += t*t*t - t
		}
		i = j + 1
	}
	correction := 1 - tieSum/(n*n*n-n)
	if correction <= 0 {
		return 1
	}
	return correction
}

// hFromRanks computes the tie-corrected Kruskal-Wallis H statistic from
// pooled ranks partitioned by group sizes.
func hFromRanks(ranks []float64, sizes []int, correction float64) float64 {
	n := float64(len(ranks))
	var sum float64
	offset := 0
	for _, size := range sizes {
		var rankSum float64
		for _, r := range ranks[offset : offset+size] {
			rankSum += r
		}
		sum += rankSum * rankSum / float64(size)
		offset += size
	}
	h := 12/(n*(n+1))*sum - 3*(n+1)
	return h / correction
}

// observeKW pools the groups and computes the observed H statistic.
func observeKW(groups [][]float64) kwObserved {
	var total int
	sizes := make([]int, len(groups))
	for i, g := range groups {
		sizes[i] = len(g)
		total += len(g)
	}
	pooled := make([]float64, 0, total)
	for _, g := range groups {
		pooled = append(pooled, g...)
	}

	correction := tieCorrection(pooled)
	ranks := rankAverage(pooled)
	return kwObserved{
		pooled:        pooled,
		sizes:         sizes,
		tieCorrection: correction,
		hStatistic:    hFromRanks(ranks, sizes, correction),
	}
}

// KWPermutationResult is the omnibus output of the permutation test.
type KWPermutationResult struct {
	HStatistic    float64
	TieCorrection float64
	TotalN        int
	GroupSizes    []int
	PValue        float64
	Iterations    int
}

// permutationTest reshuffles group labels `iterations` times and reports the
// fraction of permuted H statistics at least as extreme as the observed one.
// Guard and progress callbacks fire at checkpoint boundaries, the only safe
// suspension points.
func permutationTest(rng *rand.Rand, groups [][]float64, iterations int, guard GuardFunc, tick func(done int)) (*KWPermutationResult, error) {
	obs := observeKW(groups)

	shuffled := append([]float64(nil), obs.pooled...)
	atLeast := 0
	for i := 0; i < iterations; i++ {
		if i%checkpointEvery == 0 {
			if err := guard(); err != nil {
				return nil, err
			}
			tick(i)
		}
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		ranks := rankAverage(shuffled)
		if hFromRanks(ranks, obs.sizes, obs.tieCorrection) >= obs.hStatistic {
			atLeast++
		}
	}
	if err := guard(); err != nil {
		return nil, err
	}
	tick(iterations)

	p := 1.0
	if iterations > 0 {
		p = float64(atLeast) / float64(iterations)
	}
	return &KWPermutationResult{
		HStatistic:    obs.hStatistic,
		TieCorrection: obs.tieCorrection,
		TotalN:        len(obs.pooled),
		GroupSizes:    obs.sizes,
		PValue:        p,
		Iterations:    iterations,
	}, nil
}
