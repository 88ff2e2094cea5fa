package network

import "math/rand"

// RED is random early detection over a FIFO queue: the exponentially
// weighted queue length decides whether an arrival is admitted, dropped
// probabilistically, or dropped outright. A finite buffer, when configured,
// drop-tails on top of the RED decision.
type RED struct {
	queue    []*Packet
	buffered int64

	minTh       float64
	maxTh       float64
	maxP        float64
	queueWeight float64
	bufferBytes int64

	avg   float64
	rng   *rand.Rand
	drops int

	collectStats bool
	stats        []QueueSample
}

// QueueSample is one recorded buffer observation.
type QueueSample struct {
	Time   float64
	Len    int
	Avg    float64
	Drops  int
	MaxP   float64
}

func NewRED(cfg SchedulerConfig, rng *rand.Rand) *RED {
	r := &RED{
		minTh:        cfg.MinTh,
		maxTh:        cfg.MaxTh,
		maxP:         cfg.MaxP,
		queueWeight:  cfg.QueueWeight,
		bufferBytes:  cfg.BufferBytes,
		rng:          rng,
		collectStats: cfg.CollectStats,
	}
	if r.minTh <= 0 {
		r.minTh = 5
	}
	if r.maxTh <= 0 {
		r.maxTh = 15
	}
	if r.maxP <= 0 {
		r.maxP = 0.02
	}
	if r.queueWeight <= 0 {
		r.queueWeight = 0.002
	}
	return r
}

func (r *RED) Name() string { return SchedRED }

func (r *RED) Enqueue(p *Packet, now float64) bool {
	r.avg = (1-r.queueWeight)*r.avg + r.queueWeight*float64(len(r.queue))

	admitted := true
	switch {
	case r.avg >= r.maxTh:
		admitted = false
	case r.avg >= r.minTh:
		prob := r.maxP * (r.avg - r.minTh) / (r.maxTh - r.minTh)
		admitted = r.rng.Float64() >= prob
	}
	if admitted && r.bufferBytes > 0 && r.buffered+p.SizeBytes > r.bufferBytes {
		admitted = false
	}
	if !admitted {
		r.drops++
		r.sample(now)
		return false
	}
	r.queue = append(r.queue, p)
	r.buffered += p.SizeBytes
	r.sample(now)
	return true
}

func (r *RED) Dequeue(now float64) *Packet {
	if len(r.queue) == 0 {
		return nil
	}
	p := r.queue[0]
	r.queue = r.queue[1:]
	r.buffered -= p.SizeBytes
	r.sample(now)
	return p
}

func (r *RED) sample(now float64) {
	if !r.collectStats {
		return
	}
	r.stats = append(r.stats, QueueSample{Time: now, Len: len(r.queue), Avg: r.avg, Drops: r.drops, MaxP: r.maxP})
}

func (r *RED) Len() int             { return len(r.queue) }
func (r *RED) BufferedBytes() int64 { return r.buffered }
func (r *RED) Drops() int           { return r.drops }

// Stats returns the recorded buffer samples; empty unless CollectStats was
// set. Drops are counted regardless of the flag.
func (r *RED) Stats() []QueueSample { return r.stats }

// ARED adapts RED's maxP on a half-second cadence: additive increase while
// the average sits above the upper comfort bound, multiplicative decrease
// below the lower one, clamped to [0.01, 0.5].
type ARED struct {
	RED
	lastAdapt float64
}

const (
	aredInterval  = 0.5
	aredIncrement = 0.01
	aredDecrease  = 0.9
	aredMinP      = 0.01
	aredMaxP      = 0.5
)

func NewARED(cfg SchedulerConfig, rng *rand.Rand) *ARED {
	return &ARED{RED: *NewRED(cfg, rng)}
}

func (a *ARED) Name() string { return SchedARED }

func (a *ARED) Enqueue(p *Packet, now float64) bool {
	a.adapt(now)
	return a.RED.Enqueue(p, now)
}

func (a *ARED) adapt(now float64) {
	if now-a.lastAdapt < aredInterval {
		return
	}
	a.lastAdapt = now
	mid := (a.minTh + a.maxTh) / 2
	low := (a.minTh + a.maxTh) / 4
	switch {
	case a.avg > mid:
		a.maxP += aredIncrement
	case a.avg < low:
		a.maxP *= aredDecrease
	}
	if a.maxP < aredMinP {
		a.maxP = aredMinP
	}
	if a.maxP > aredMaxP {
		a.maxP = aredMaxP
	}
}
