package fleet

import "math"

// Algorithm selects the path optimization strategy
type Algorithm string

const (
	AlgorithmAuto            Algorithm = "auto"
	AlgorithmNearestNeighbor Algorithm = "nearest-neighbor"
	AlgorithmTwoOpt          Algorithm = "2-opt"
	AlgorithmHybrid          Algorithm = "hybrid"
	AlgorithmSmart           Algorithm = "smart"
)

// DefaultAverageSpeed is the assumed robot travel speed in m/s used for
// duration estimates. It is a placeholder physical model, not a kinematic
// simulation.
const DefaultAverageSpeed = 1.5

// twoOptMaxPasses bounds the 2-opt improvement loop. The search may stop
// short of a local optimum on pathological inputs, which is the accepted
// trade for a hard runtime bound.
const twoOptMaxPasses = 100

// OptimizeOptions tunes OptimizePathWithOptions. Zero values select the
// defaults: start at the first waypoint, auto algorithm, DefaultAverageSpeed.
type OptimizeOptions struct {
	StartWaypointID string
	Algorithm       Algorithm
	AverageSpeed    float64 // m/s
}

// OptimizePath produces a visiting order over the waypoints using the auto
// algorithm selection policy: nearest-neighbor for up to 5 waypoints,
// hybrid (nearest-neighbor + 2-opt) for 6-15, smart for more.
func OptimizePath(waypoints []Waypoint) OptimizedPath {
	return OptimizePathWithOptions(waypoints, OptimizeOptions{})
}

// OptimizePathWithOptions is like OptimizePath but accepts an explicit start
// waypoint, algorithm, and average speed.
//
// The returned path is open (no return leg to the start). Distances are
// Haversine sums over consecutive pairs; duration is distance divided by the
// average speed, rounded to the nearest second. Improvement is measured
// against visiting the waypoints in their supplied order.
func OptimizePathWithOptions(waypoints []Waypoint, opts OptimizeOptions) OptimizedPath {
	if len(waypoints) == 0 {
		return OptimizedPath{
			WaypointIDs: []string{},
			Algorithm:   "No waypoints",
		}
	}

	speed := opts.AverageSpeed
	if speed <= 0 {
		speed = DefaultAverageSpeed
	}

	algo := resolveAlgorithm(opts.Algorithm, len(waypoints))

	startIdx := 0
	if opts.StartWaypointID != "" {
		for i, w := range waypoints {
			if w.ID == opts.StartWaypointID {
				startIdx = i
				break
			}
		}
	}

	var order []int
	switch algo {
	case AlgorithmNearestNeighbor:
		order = nearestNeighborOrder(waypoints, startIdx, allIndices(len(waypoints)))
	case AlgorithmTwoOpt:
		// Initial order is the supplied order with the start waypoint
		// rotated to the front.
		order = startFirstOrder(len(waypoints), startIdx)
		order = twoOpt(waypoints, order)
	case AlgorithmSmart:
		order = smartOrder(waypoints, startIdx)
		order = twoOpt(waypoints, order)
	default: // hybrid
		order = nearestNeighborOrder(waypoints, startIdx, allIndices(len(waypoints)))
		order = twoOpt(waypoints, order)
	}

	total := orderDistance(waypoints, order)
	naive := TotalPathDistance(waypoints)

	improvement := 0.0
	if naive > 0 {
		improvement = (naive - total) / naive * 100
	}

	ids := make([]string, len(order))
	for i, idx := range order {
		ids[i] = waypoints[idx].ID
	}

	return OptimizedPath{
		WaypointIDs:       ids,
		TotalDistance:     total,
		EstimatedDuration: math.Round(total / speed),
		Improvement:       improvement,
		Algorithm:         string(algo),
	}
}

// TotalPathDistance sums the Haversine distances of consecutive waypoint
// pairs in the supplied order (open path, no return to start).
func TotalPathDistance(waypoints []Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		total += CalculateDistance(waypoints[i-1].Coordinates, waypoints[i].Coordinates)
	}
	return total
}

// resolveAlgorithm applies the auto selection policy
func resolveAlgorithm(algo Algorithm, n int) Algorithm {
	if algo != "" && algo != AlgorithmAuto {
		return algo
	}
	switch {
	case n <= 5:
		// 2-opt gains are negligible at this size relative to its cost.
		return AlgorithmNearestNeighbor
	case n <= 15:
		return AlgorithmHybrid
	default:
		return AlgorithmSmart
	}
}

func allIndices(n int) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	return pool
}

// startFirstOrder returns 0..n-1 with startIdx moved to the front
func startFirstOrder(n, startIdx int) []int {
	order := make([]int, 0, n)
	order = append(order, startIdx)
	for i := 0; i < n; i++ {
		if i != startIdx {
			order = append(order, i)
		}
	}
	return order
}

// nearestNeighborOrder greedily visits the pool of waypoint indices starting
// from start: at each step the unvisited waypoint nearest to the current one
// is taken, ties broken by original array order (first minimum wins). If
// start is not in the pool it is used only as the measuring origin.
func nearestNeighborOrder(waypoints []Waypoint, start int, pool []int) []int {
	used := make(map[int]bool, len(pool))
	order := make([]int, 0, len(pool))

	current := start
	inPool := false
	for _, idx := range pool {
		if idx == start {
			inPool = true
			break
		}
	}
	if inPool {
		order = append(order, start)
		used[start] = true
	}

	for len(order) < len(pool) {
		next := -1
		nextDist := math.MaxFloat64
		for _, idx := range pool {
			if used[idx] {
				continue
			}
			d := CalculateDistance(waypoints[current].Coordinates, waypoints[idx].Coordinates)
			if d < nextDist {
				next = idx
				nextDist = d
			}
		}
		if next == -1 {
			break
		}
		order = append(order, next)
		used[next] = true
		current = next
	}

	return order
}

// twoOpt improves an order by reversing interior segments, keeping a
// reversal only when it strictly reduces total distance. It loops until a
// full pass yields no improvement or twoOptMaxPasses passes have run.
// Adjacent pairs are skipped; orders shorter than 4 have no reversible
// interior segment and are returned unchanged.
func twoOpt(waypoints []Waypoint, order []int) []int {
	n := len(order)
	if n < 4 {
		return order
	}

	best := make([]int, n)
	copy(best, order)
	bestDist := orderDistance(waypoints, best)

	for pass := 0; pass < twoOptMaxPasses; pass++ {
		improved := false

		for i := 1; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				if j-i == 1 {
					continue
				}

				candidate := make([]int, n)
				copy(candidate, best)
				reverseSegment(candidate, i, j)

				if d := orderDistance(waypoints, candidate); d < bestDist {
					best = candidate
					bestDist = d
					improved = true
				}
			}
		}

		if !improved {
			break
		}
	}

	return best
}

// reverseSegment reverses order[i..j] in place (inclusive bounds)
func reverseSegment(order []int, i, j int) {
	for i < j {
		order[i], order[j] = order[j], order[i]
		i++
		j--
	}
}

// orderDistance sums consecutive-pair distances along the given index order
func orderDistance(waypoints []Waypoint, order []int) float64 {
	total := 0.0
	for i := 1; i < len(order); i++ {
		total += CalculateDistance(
			waypoints[order[i-1]].Coordinates,
			waypoints[order[i]].Coordinates)
	}
	return total
}

// smartOrder assembles a visiting order that respects waypoint semantics
// rather than pure distance: charging stations come first (nearest-neighbor
// among themselves), then each pickup in supplied order followed by its
// nearest not-yet-used dropoff, then any leftover waypoints (maintenance,
// checkpoints, custom, unpaired dropoffs) chained on by nearest-neighbor.
// Callers are expected to run a 2-opt pass over the result.
func smartOrder(waypoints []Waypoint, startIdx int) []int {
	var charging, pickups, dropoffs, leftovers []int
	for i, w := range waypoints {
		switch w.Type {
		case WaypointCharging:
			charging = append(charging, i)
		case WaypointPickup:
			pickups = append(pickups, i)
		case WaypointDropoff:
			dropoffs = append(dropoffs, i)
		default:
			leftovers = append(leftovers, i)
		}
	}

	used := make(map[int]bool, len(waypoints))
	var order []int

	if len(charging) > 0 {
		chargingOrder := nearestNeighborOrder(waypoints, charging[0], charging)
		order = append(order, chargingOrder...)
		for _, idx := range chargingOrder {
			used[idx] = true
		}
	}

	for _, p := range pickups {
		order = append(order, p)
		used[p] = true

		nearest := -1
		nearestDist := math.MaxFloat64
		for _, d := range dropoffs {
			if used[d] {
				continue
			}
			dist := CalculateDistance(waypoints[p].Coordinates, waypoints[d].Coordinates)
			if dist < nearestDist {
				nearest = d
				nearestDist = dist
			}
		}
		if nearest != -1 {
			order = append(order, nearest)
			used[nearest] = true
		}
	}

	// Unpaired dropoffs join the leftover pool in original order.
	var remaining []int
	for i := range waypoints {
		if !used[i] {
			remaining = append(remaining, i)
		}
	}

	if len(remaining) > 0 {
		origin := startIdx
		if len(order) > 0 {
			origin = order[len(order)-1]
		}
		order = append(order, nearestNeighborOrder(waypoints, origin, remaining)...)
	}

	return order
}
