// Package object implements kernel objects and the capabilities that name
// them.
//
// Every kernel object is a Dispatcher. User code never sees a dispatcher
// directly: it holds a Handle, which pairs a dispatcher with the rights the
// holder was granted, and refers to that Handle through a process-local
// value in a HandleTable.
//
// Objects are born as a KernelHandle, a single-owner pre-handle returned by
// the Create* constructors. Make upgrades a KernelHandle into a Handle; if
// creation fails before that, releasing the KernelHandle runs the object's
// zero-handles cleanup exactly as if its last handle had been closed.
//
// Jobs and processes form a tree. Children are appended to their parent in
// creation order and remove themselves when they die, so enumeration is
// oldest-first and never returns dead objects. A child never takes its
// parent's lock while holding its own.
//
// Channels carry MessagePackets. A packet owns the handles it carries while
// it is queued; reading a packet hands them to the reader.
package object
