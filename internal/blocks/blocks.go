// Package blocks lists the call blocks compiled into bldr.
package blocks

import (
	"github.com/marcus/bldr/internal/blocks/execute"
	"github.com/marcus/bldr/internal/blocks/miscellaneous"
	"github.com/marcus/bldr/internal/call"
)

// Core returns every built-in block.
func Core() []call.Block {
	return []call.Block{
		&miscellaneous.Block{},
		&execute.Block{},
	}
}

// Registry returns a call registry populated with the core blocks and any
// extra blocks supplied by the caller.
func Registry(extra ...call.Block) *call.Registry {
	return call.NewRegistry(append(Core(), extra...)...)
}
