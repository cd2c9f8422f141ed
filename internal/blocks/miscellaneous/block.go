// Package miscellaneous provides the sleep and service call types.
package miscellaneous

import (
	"github.com/marcus/bldr/internal/call"
)

// Block registers the miscellaneous call types.
type Block struct{}

// Name returns the block name.
func (b *Block) Name() string { return "miscellaneous" }

// Register adds sleep and service to r.
func (b *Block) Register(r *call.Registry) {
	r.Register("sleep", NewSleep)
	r.Register("service", NewService)
}
