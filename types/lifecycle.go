package types

// Lifecycle is the persisted initialization tag of a program record.
type Lifecycle byte

const (
	LifecycleUninitialized Lifecycle = 0
	LifecycleInitialized   Lifecycle = 1
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleInitialized:
		return "initialized"
	default:
		return "uninitialized"
	}
}
