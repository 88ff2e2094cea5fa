package sim

import "fmt"

// GridletStatus is the lifecycle state of a gridlet.
type GridletStatus string

const (
	StatusCreated             GridletStatus = "CREATED"
	StatusReady               GridletStatus = "READY"
	StatusQueued              GridletStatus = "QUEUED"
	StatusInExec              GridletStatus = "INEXEC"
	StatusPaused              GridletStatus = "PAUSED"
	StatusResumed             GridletStatus = "RESUMED"
	StatusSuccess             GridletStatus = "SUCCESS"
	StatusFailed              GridletStatus = "FAILED"
	StatusCanceled            GridletStatus = "CANCELED"
	StatusFailedResourceUnavailable GridletStatus = "FAILED_RESOURCE_UNAVAILABLE"
)

// validTransitions encodes the permitted status moves. Terminal states have
// no successors.
var validTransitions = map[GridletStatus][]GridletStatus{
	StatusCreated: {StatusReady, StatusFailed, StatusCanceled},
	StatusReady:   {StatusQueued, StatusFailed, StatusCanceled},
	StatusQueued:  {StatusInExec, StatusFailedResourceUnavailable, StatusFailed, StatusCanceled},
	StatusInExec:  {StatusSuccess, StatusPaused, StatusCanceled, StatusFailed},
	StatusPaused:  {StatusResumed, StatusCanceled, StatusFailed},
	StatusResumed: {StatusInExec, StatusCanceled, StatusFailed},
}

// IsTerminal reports whether no further transition is permitted.
func (st GridletStatus) IsTerminal() bool {
	switch st {
	case StatusSuccess, StatusFailed, StatusCanceled, StatusFailedResourceUnavailable:
		return true
	}
	return false
}

// Gridlet is the unit of work: a job with a computational length in MI plus
// input/output transfer sizes. It is owned by its submitter and borrowed by
// the resource between submission and return.
type Gridlet struct {
	ID     int
	UserID int

	Length     float64 // millions of instructions
	InputSize  int64   // bytes shipped to the resource
	OutputSize int64   // bytes shipped back
	NumPE      int
	ClassType  int // class of service / ToS for networked submission
	Priority   int

	ReservationID int // 0 = best effort

	Status GridletStatus

	ResourceID  int
	SubmitTime  float64
	ExecStart   float64 // start of the current INEXEC stretch
	FinishTime  float64
	FinishedSoFar float64 // MI completed across previous INEXEC stretches
	ActualCPUTime float64 // sum of INEXEC wall-clock

	Cost float64
}

// NewGridlet creates a gridlet in CREATED state.
func NewGridlet(id, userID int, length float64, inputSize, outputSize int64, numPE int) *Gridlet {
	return &Gridlet{
		ID:         id,
		UserID:     userID,
		Length:     length,
		InputSize:  inputSize,
		OutputSize: outputSize,
		NumPE:      numPE,
		Status:     StatusCreated,
	}
}

// SetStatus performs a validated transition. Tests assert the resulting
// status rather than relying on the error alone.
func (g *Gridlet) SetStatus(next GridletStatus) error {
	if g.Status == next {
		return nil
	}
	for _, allowed := range validTransitions[g.Status] {
		if next == allowed {
			g.Status = next
			return nil
		}
	}
	return fmt.Errorf("gridlet %d: invalid transition %s -> %s", g.ID, g.Status, next)
}

// RemainingLength returns the MI still to execute.
func (g *Gridlet) RemainingLength() float64 {
	rem := g.Length - g.FinishedSoFar
	if rem < 0 {
		return 0
	}
	return rem
}

// BeginExec marks the start of an INEXEC stretch at now.
func (g *Gridlet) BeginExec(now float64) error {
	var err error
	if g.Status == StatusPaused {
		if err = g.SetStatus(StatusResumed); err != nil {
			return err
		}
	}
	if err = g.SetStatus(StatusInExec); err != nil {
		return err
	}
	g.ExecStart = now
	return nil
}

// AccrueExec folds the stretch [ExecStart, now] into the finished-MI and CPU
// time accounting at a given execution rate (MI per second).
func (g *Gridlet) AccrueExec(now, rate float64) {
	elapsed := now - g.ExecStart
	if elapsed <= 0 {
		return
	}
	g.FinishedSoFar += elapsed * rate
	if g.FinishedSoFar > g.Length {
		g.FinishedSoFar = g.Length
	}
	g.ActualCPUTime += elapsed
	g.ExecStart = now
}

// Finalize completes the gridlet at now, computing cost from the resource's
// cost per PE-second.
func (g *Gridlet) Finalize(now, costPerPESec float64, status GridletStatus) error {
	if err := g.SetStatus(status); err != nil {
		return err
	}
	g.FinishTime = now
	g.Cost = costPerPESec * g.ActualCPUTime * float64(g.NumPE)
	return nil
}

// WallClockTime returns finish minus submission; zero before finalisation.
func (g *Gridlet) WallClockTime() float64 {
	if g.FinishTime <= 0 {
		return 0
	}
	return g.FinishTime - g.SubmitTime
}

func (g *Gridlet) String() string {
	return fmt.Sprintf("gridlet %d (user %d, %v MI, %d PE, %s)", g.ID, g.UserID, g.Length, g.NumPE, g.Status)
}
