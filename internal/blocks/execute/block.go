// Package execute provides the exec call type, which runs an external
// command as a build step.
package execute

import (
	"github.com/marcus/bldr/internal/call"
)

// Block registers the execute call types.
type Block struct{}

// Name returns the block name.
func (b *Block) Name() string { return "execute" }

// Register adds exec to r.
func (b *Block) Register(r *call.Registry) {
	r.Register("exec", NewExec)
}
