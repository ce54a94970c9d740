package types

// PhysicalID is the dense 0..N-1 identifier of a process in the job.
// Node 0 is the coordinator.
type PhysicalID uint32

// GlobalThreadID is unique across the whole job.
type GlobalThreadID uint64

// GroupID is unique per job; 0 is the global group containing every
// thread.
type GroupID uint32

// GroupThreadID is a thread's dense index within one group, in
// [0, |group|).
type GroupThreadID uint32

// RequestNum is monotonic per (group, collective kind, requester).
type RequestNum uint64

// GlobalGroupID is the reserved id of the group containing every
// thread in the job.
const GlobalGroupID GroupID = 0
