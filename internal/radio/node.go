// Node identifiers and the numeric ids embedded in them
package radio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadIdentifier is returned when a node identifier carries no numeric id.
var ErrBadIdentifier = errors.New("bad node identifier")

// a8 nodes are reported by the aggregator as "node-a8-<n>".
const nodePrefix = "node-"

// NodeName strips the aggregator prefix from an identifier ("node-a8-3" -> "a8-3").
func NodeName(identifier string) string {
	return strings.TrimPrefix(identifier, nodePrefix)
}

// NodeID extracts the trailing numeric id of an identifier ("m3-12" -> 12).
func NodeID(identifier string) (int, error) {
	name := NodeName(identifier)
	i := strings.LastIndex(name, "-")
	if i < 0 || i == len(name)-1 {
		return 0, fmt.Errorf("%w: %q", ErrBadIdentifier, identifier)
	}
	id, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadIdentifier, identifier)
	}
	return id, nil
}

// NodeIDs maps identifiers to numeric ids, keeping order.
func NodeIDs(identifiers []string) ([]int, error) {
	ids := make([]int, 0, len(identifiers))
	for _, n := range identifiers {
		id, err := NodeID(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
