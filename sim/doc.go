// Package sim provides the discrete-event simulation kernel for gridsim.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - entity.go: the Entity contract and the Env suspension points
//     (Hold, Receive, selective receive)
//   - simulation.go: the event loop, cooperative scheduling, and shutdown
//   - gridlet.go: the unit of work and its status machine
//
// # Architecture
//
// The sim package defines the kernel and the shared value types;
// implementations live in sub-packages:
//   - sim/availability/: PE-range algebra and the availability profile
//   - sim/policy/: CPU allocation policies (space/time-shared, backfilling
//     family, advance reservations)
//   - sim/grid/: resource and information-service entities
//   - sim/network/: links, routers, and packet schedulers
//   - sim/workload/: synthetic workload generation and the user client
//   - sim/trace/: per-entity CSV statistics
//
// # Execution model
//
// All entities share one logical thread: each Body runs on its own
// goroutine, but the kernel resumes exactly one at a time and waits for it
// to suspend before advancing the clock. Two events with equal timestamps
// deliver in insertion order, mailboxes preserve arrival order, and
// selective receive never reorders non-matching messages. Results are
// reproducible for a fixed master seed.
package sim
