package workload

import (
	"math"
	"math/rand"

	"github.com/gridlab/gridsim/sim"
)

// Item pairs a generated gridlet with its arrival time.
type Item struct {
	Arrival float64
	Gridlet *sim.Gridlet
}

// Generate builds a deterministic gridlet stream from a spec. Gridlet ids
// start at firstID and arrivals are non-decreasing.
func Generate(spec *Spec, rng *rand.Rand, firstID int) ([]Item, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	items := make([]Item, 0, spec.Count)
	now := 0.0
	for i := 0; i < spec.Count; i++ {
		switch spec.Arrival.Kind {
		case "poisson":
			// exponential interarrival at the configured rate
			now += rng.ExpFloat64() / spec.Arrival.Rate
		default:
			if i > 0 {
				now += spec.Arrival.Interval
			}
		}
		length := spec.Length.Sample(rng)
		if length < 1 {
			length = 1
		}
		numPE := int(math.Round(spec.NumPE.Sample(rng)))
		if numPE < 1 {
			numPE = 1
		}
		inSize := int64(spec.InputSize.Sample(rng))
		outSize := int64(spec.OutputSize.Sample(rng))

		g := sim.NewGridlet(firstID+i, 0, length, inSize, outSize, numPE)
		g.ClassType = spec.ToS
		items = append(items, Item{Arrival: now, Gridlet: g})
	}
	return items, nil
}
