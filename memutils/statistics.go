package memutils

// Statistics describes the blocks a Tracker has seen. Live values describe blocks that have
// been allocated but not yet freed; the remaining values are running totals.
type Statistics struct {
	LiveBlockCount int
	LiveBlockBytes int
	// WeakOnlyBlockCount is the number of live blocks whose payload has already been destroyed
	WeakOnlyBlockCount int

	AllocationCount int
	AllocationBytes int
	DestroyCount    int
	FreeCount       int
}

func (s *Statistics) Clear() {
	s.LiveBlockCount = 0
	s.LiveBlockBytes = 0
	s.WeakOnlyBlockCount = 0
	s.AllocationCount = 0
	s.AllocationBytes = 0
	s.DestroyCount = 0
	s.FreeCount = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.LiveBlockCount += other.LiveBlockCount
	s.LiveBlockBytes += other.LiveBlockBytes
	s.WeakOnlyBlockCount += other.WeakOnlyBlockCount
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
	s.DestroyCount += other.DestroyCount
	s.FreeCount += other.FreeCount
}

// Balanced returns true if every block that was allocated has been destroyed and freed
func (s Statistics) Balanced() bool {
	return s.LiveBlockCount == 0 &&
		s.AllocationCount == s.FreeCount &&
		s.AllocationCount == s.DestroyCount
}
