package signaling

import "fmt"

// RoomAllocator decides which room a joining client actually lands in.
// When the requested room is full it probes deterministic overflow siblings
// (<base>_1, <base>_2, ...) until one has a free slot.
type RoomAllocator struct {
	MaxPeersPerRoom int
}

// ChooseRoom returns the room for a client requesting the given name and
// whether the client was redirected to an overflow room. occupancy reports
// the current member count of an exact room name. The caller must hold the
// registry lock so the occupancy check and the registration that follows
// form one atomic step.
func (a RoomAllocator) ChooseRoom(requested string, occupancy func(string) int) (string, bool) {
	if occupancy(requested) < a.MaxPeersPerRoom {
		return requested, false
	}
	for n := 1; ; n++ {
		overflow := fmt.Sprintf("%s_%d", requested, n)
		if occupancy(overflow) < a.MaxPeersPerRoom {
			return overflow, true
		}
	}
}
