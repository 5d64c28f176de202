// Package nodelink delivers text commands to testbed nodes and hands every
// line they print to a LineHandler.
package nodelink

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// LineHandler is called once per line printed by a node. It must not block.
type LineHandler func(identifier, line string)

// Link is a control link to a fixed set of nodes.
type Link interface {
	// Broadcast writes text to every node.
	Broadcast(ctx context.Context, text string) error
	// Send writes text to the given nodes only.
	Send(ctx context.Context, nodes []string, text string) error
	// Nodes returns the node identifiers the link was opened on.
	Nodes() []string
	Close() error
}

// ErrUnknownNode is returned by Send for a node the link was not opened on.
var ErrUnknownNode = errors.New("unknown node")

// ParseNodeList splits a comma/space separated node list ("m3-1,m3-2 m3-3").
func ParseNodeList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == '\t' })
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// joinErrors prefixes each per-node error with its node.
func joinErrors(errs map[string]error) error {
	if len(errs) == 0 {
		return nil
	}
	list := make([]error, 0, len(errs))
	for node, err := range errs {
		list = append(list, fmt.Errorf("%s: %w", node, err))
	}
	return errors.Join(list...)
}
