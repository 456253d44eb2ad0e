package engine

import (
	"fmt"
	"strconv"

	"github.com/mediacastd/playout-server/internal/domain/channel"
)

// Allocator maps a channel id to its multicast destination. The mapping
// is a pure function of the id: group = <base>.<id+1>, port fixed and
// shared by all channels (receivers disambiguate by the group they
// join, not by port). Stateless and safe for concurrent use.
type Allocator struct {
	base        string // first three octets, e.g. "239.252.100"
	port        int
	maxChannels int
}

// NewAllocator validates the base prefix and port once so Allocate can
// stay error-free for in-range ids.
func NewAllocator(base string, port, maxChannels int) (Allocator, error) {
	if maxChannels < 1 || maxChannels > 254 {
		return Allocator{}, fmt.Errorf("max channels %d outside 1..254", maxChannels)
	}
	if port < 1 || port > 65535 {
		return Allocator{}, fmt.Errorf("multicast port %d outside 1..65535", port)
	}

	// The base must form valid multicast groups for every last octet we
	// can produce: 224.0.0.0/4, three octets.
	var a, b, c int
	if _, err := fmt.Sscanf(base, "%d.%d.%d", &a, &b, &c); err != nil {
		return Allocator{}, fmt.Errorf("multicast base %q: %w", base, err)
	}
	if a < 224 || a > 239 || b < 0 || b > 255 || c < 0 || c > 255 {
		return Allocator{}, fmt.Errorf("multicast base %q is not a multicast /24 prefix", base)
	}

	return Allocator{base: base, port: port, maxChannels: maxChannels}, nil
}

// Allocate returns the multicast group IP and port for id. Channel 0
// maps to .1, channel 39 to .40. Ids outside the fixed pool fail with
// an InvalidParameterError.
func (al Allocator) Allocate(id int) (groupIP string, port int, err error) {
	if id < 0 || id >= al.maxChannels {
		return "", 0, &channel.InvalidParameterError{Field: "id", Value: strconv.Itoa(id)}
	}
	return fmt.Sprintf("%s.%d", al.base, id+1), al.port, nil
}

// MaxChannels reports the fixed pool size.
func (al Allocator) MaxChannels() int { return al.maxChannels }
