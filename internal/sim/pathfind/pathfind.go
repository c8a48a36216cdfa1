// Package pathfind implements resource-constrained route search over the
// system-connection graph. All functions are pure; the graph is supplied
// by the caller and never mutated.
package pathfind

import (
	"container/heap"
	"math"

	"github.com/startide/server/internal/universe"
)

// ReferenceSpeed is the hull speed at which hop durations equal their
// nominal value. Faster ships finish hops in proportionally fewer ticks.
const ReferenceSpeed = 5

// Graph supplies the traversable edges from a system.
type Graph interface {
	Neighbors(key string) []universe.Edge
}

// Reachable describes one system a ship can get to within its fuel budget.
type Reachable struct {
	FuelUsed int
	// Duration is the arrival tick offset from departure.
	Duration uint64
}

// Route is a resolved shortest path between two systems.
type Route struct {
	Path          []string
	TotalFuelCost int
	TotalDuration uint64
}

// HopDuration returns the ticks needed to traverse one edge at the given
// speed. A non-positive speed falls back to the reference speed, and the
// duration never drops below one tick.
func HopDuration(fuelCost, speed, referenceSpeed int) uint64 {
	if referenceSpeed <= 0 {
		referenceSpeed = ReferenceSpeed
	}
	if speed <= 0 {
		speed = referenceSpeed
	}
	d := math.Ceil(float64(fuelCost) / 2 * float64(referenceSpeed) / float64(speed))
	if d < 1 {
		return 1
	}
	return uint64(d)
}

type node struct {
	key      string
	fuel     int
	hops     int
	duration uint64
	index    int
}

type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }

// Less orders by cumulative fuel, then fewer hops.
func (q nodeQueue) Less(i, j int) bool {
	if q[i].fuel != q[j].fuel {
		return q[i].fuel < q[j].fuel
	}
	return q[i].hops < q[j].hops
}

func (q nodeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *nodeQueue) Push(x any) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*q = old[:len(old)-1]
	return n
}

// ReachableSystems runs a budget-pruned Dijkstra relaxation from origin
// and returns every system reachable without the cumulative fuel cost
// exceeding fuelBudget. The origin itself is not included.
func ReachableSystems(g Graph, origin string, fuelBudget, speed int) map[string]Reachable {
	out := make(map[string]Reachable)
	best := map[string]*node{origin: {key: origin}}

	q := &nodeQueue{}
	heap.Init(q)
	heap.Push(q, best[origin])

	for q.Len() > 0 {
		cur := heap.Pop(q).(*node)
		if cur.key != origin {
			out[cur.key] = Reachable{FuelUsed: cur.fuel, Duration: cur.duration}
		}
		for _, e := range g.Neighbors(cur.key) {
			fuel := cur.fuel + e.FuelCost
			if fuel > fuelBudget {
				continue
			}
			hops := cur.hops + 1
			prev, seen := best[e.To]
			if seen && (prev.fuel < fuel || (prev.fuel == fuel && prev.hops <= hops)) {
				continue
			}
			next := &node{
				key:      e.To,
				fuel:     fuel,
				hops:     hops,
				duration: cur.duration + HopDuration(e.FuelCost, speed, ReferenceSpeed),
			}
			if seen && prev.index >= 0 {
				prev.fuel = next.fuel
				prev.hops = next.hops
				prev.duration = next.duration
				heap.Fix(q, prev.index)
				continue
			}
			best[e.To] = next
			heap.Push(q, next)
		}
	}
	return out
}

// ShortestPath returns the cheapest route from origin to destination by
// cumulative fuel cost, or nil if the destination is unreachable. No fuel
// budget is applied here; callers compare TotalFuelCost against the
// ship's tank.
func ShortestPath(g Graph, origin, destination string, speed int) *Route {
	if origin == destination {
		return &Route{Path: []string{origin}}
	}

	type entry struct {
		n    *node
		prev string
	}
	best := map[string]*entry{origin: {n: &node{key: origin}}}

	q := &nodeQueue{}
	heap.Init(q)
	heap.Push(q, best[origin].n)

	for q.Len() > 0 {
		cur := heap.Pop(q).(*node)
		if cur.key == destination {
			break
		}
		for _, e := range g.Neighbors(cur.key) {
			fuel := cur.fuel + e.FuelCost
			hops := cur.hops + 1
			prev, seen := best[e.To]
			if seen && (prev.n.fuel < fuel || (prev.n.fuel == fuel && prev.n.hops <= hops)) {
				continue
			}
			next := &node{
				key:      e.To,
				fuel:     fuel,
				hops:     hops,
				duration: cur.duration + HopDuration(e.FuelCost, speed, ReferenceSpeed),
			}
			if seen && prev.n.index >= 0 {
				prev.n.fuel = next.fuel
				prev.n.hops = next.hops
				prev.n.duration = next.duration
				prev.prev = cur.key
				heap.Fix(q, prev.n.index)
				continue
			}
			best[e.To] = &entry{n: next, prev: cur.key}
			heap.Push(q, next)
		}
	}

	dst, ok := best[destination]
	if !ok {
		return nil
	}

	path := []string{destination}
	for at := destination; at != origin; {
		at = best[at].prev
		path = append(path, at)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return &Route{
		Path:          path,
		TotalFuelCost: dst.n.fuel,
		TotalDuration: dst.n.duration,
	}
}

// RouteCost walks an explicit hop sequence and totals its fuel and
// duration. Returns false if any consecutive pair is not connected.
func RouteCost(g Graph, path []string, speed int) (fuel int, duration uint64, ok bool) {
	for i := 0; i+1 < len(path); i++ {
		found := false
		for _, e := range g.Neighbors(path[i]) {
			if e.To == path[i+1] {
				fuel += e.FuelCost
				duration += HopDuration(e.FuelCost, speed, ReferenceSpeed)
				found = true
				break
			}
		}
		if !found {
			return 0, 0, false
		}
	}
	return fuel, duration, true
}
