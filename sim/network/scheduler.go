package network

import (
	"fmt"
	"math/rand"
)

// PacketScheduler queues packets awaiting transmission on one link.
// Enqueue returns false when the packet is discarded (finite buffer or
// active queue management); the caller propagates the drop.
type PacketScheduler interface {
	Name() string
	Enqueue(p *Packet, now float64) bool
	Dequeue(now float64) *Packet
	Len() int
	BufferedBytes() int64
	Drops() int
}

// Scheduler names accepted by NewScheduler.
const (
	SchedFIFO = "fifo"
	SchedSCFQ = "scfq"
	SchedRED  = "red"
	SchedARED = "ared"
)

// SchedulerConfig selects and parameterizes a per-link scheduler.
type SchedulerConfig struct {
	Kind        string
	BufferBytes int64 // 0 = unbounded (ignored by RED/ARED only when unset)

	// SCFQ: weight per ToS class; missing classes weigh 1.
	Weights map[int]float64

	// RED/ARED knobs; zero values select the defaults below.
	MinTh        float64 // default 5 packets
	MaxTh        float64 // default 15 packets
	MaxP         float64 // default 0.02
	QueueWeight  float64 // default 0.002
	CollectStats bool
}

// IsValidScheduler reports whether kind names a known scheduler.
func IsValidScheduler(kind string) bool {
	switch kind {
	case "", SchedFIFO, SchedSCFQ, SchedRED, SchedARED:
		return true
	}
	return false
}

// NewScheduler builds a packet scheduler from its config. Panics on an
// unrecognized kind; callers validate with IsValidScheduler first.
func NewScheduler(cfg SchedulerConfig, rng *rand.Rand) PacketScheduler {
	switch cfg.Kind {
	case "", SchedFIFO:
		return NewFIFO(cfg.BufferBytes)
	case SchedSCFQ:
		return NewSCFQ(cfg.Weights, cfg.BufferBytes)
	case SchedRED:
		return NewRED(cfg, rng)
	case SchedARED:
		return NewARED(cfg, rng)
	default:
		panic(fmt.Sprintf("unknown packet scheduler %q", cfg.Kind))
	}
}

// FIFO is a single drop-tail queue.
type FIFO struct {
	queue       []*Packet
	bufferBytes int64
	buffered    int64
	drops       int
}

func NewFIFO(bufferBytes int64) *FIFO {
	return &FIFO{bufferBytes: bufferBytes}
}

func (f *FIFO) Name() string { return SchedFIFO }

func (f *FIFO) Enqueue(p *Packet, _ float64) bool {
	if f.bufferBytes > 0 && f.buffered+p.SizeBytes > f.bufferBytes {
		f.drops++
		return false
	}
	f.queue = append(f.queue, p)
	f.buffered += p.SizeBytes
	return true
}

func (f *FIFO) Dequeue(_ float64) *Packet {
	if len(f.queue) == 0 {
		return nil
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	f.buffered -= p.SizeBytes
	return p
}

func (f *FIFO) Len() int             { return len(f.queue) }
func (f *FIFO) BufferedBytes() int64 { return f.buffered }
func (f *FIFO) Drops() int           { return f.drops }
