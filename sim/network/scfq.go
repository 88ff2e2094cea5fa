package network

// SCFQ is self-clocked weighted fair queueing: one queue per ToS class,
// dequeue by smallest virtual finish time
// F(p) = max(virtualTime, F(predecessor)) + size/weight[ToS].
type SCFQ struct {
	weights     map[int]float64
	queues      map[int][]scfqItem
	lastFinish  map[int]float64
	virtualTime float64

	bufferBytes int64
	buffered    int64
	drops       int
}

type scfqItem struct {
	p      *Packet
	finish float64
}

func NewSCFQ(weights map[int]float64, bufferBytes int64) *SCFQ {
	w := make(map[int]float64, len(weights))
	for tos, weight := range weights {
		w[tos] = weight
	}
	return &SCFQ{
		weights:     w,
		queues:      make(map[int][]scfqItem),
		lastFinish:  make(map[int]float64),
		bufferBytes: bufferBytes,
	}
}

func (s *SCFQ) Name() string { return SchedSCFQ }

func (s *SCFQ) weightOf(tos int) float64 {
	if w, ok := s.weights[tos]; ok && w > 0 {
		return w
	}
	return 1
}

func (s *SCFQ) Enqueue(p *Packet, _ float64) bool {
	if s.bufferBytes > 0 && s.buffered+p.SizeBytes > s.bufferBytes {
		s.drops++
		return false
	}
	start := s.virtualTime
	if f, ok := s.lastFinish[p.ToS]; ok && f > start {
		start = f
	}
	finish := start + p.Bits()/s.weightOf(p.ToS)
	s.lastFinish[p.ToS] = finish
	s.queues[p.ToS] = append(s.queues[p.ToS], scfqItem{p: p, finish: finish})
	s.buffered += p.SizeBytes
	return true
}

func (s *SCFQ) Dequeue(_ float64) *Packet {
	bestToS := -1
	bestFinish := 0.0
	for tos, q := range s.queues {
		if len(q) == 0 {
			continue
		}
		head := q[0]
		if bestToS < 0 || head.finish < bestFinish ||
			(head.finish == bestFinish && tos < bestToS) {
			bestToS = tos
			bestFinish = head.finish
		}
	}
	if bestToS < 0 {
		return nil
	}
	item := s.queues[bestToS][0]
	s.queues[bestToS] = s.queues[bestToS][1:]
	s.virtualTime = item.finish
	s.buffered -= item.p.SizeBytes
	return item.p
}

func (s *SCFQ) Len() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

func (s *SCFQ) BufferedBytes() int64 { return s.buffered }
func (s *SCFQ) Drops() int           { return s.drops }
