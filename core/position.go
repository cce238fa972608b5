package core

import "code.hybscloud.com/atomix"

// PositionReader is the read-only view handed to interrupt context.
type PositionReader interface {
	Load() uint32
}

// Position is the storage playback byte offset shared with interrupt
// context. The main loop is the only writer; every update is a single
// release store of a fully computed value so readers never see a torn or
// intermediate offset.
type Position struct {
	v atomix.Uint32
}

// Load returns the last published offset. Safe from any context.
func (p *Position) Load() uint32 {
	return p.v.LoadAcquire()
}

// Publish stores a new offset. Main loop only.
func (p *Position) Publish(offset uint32) {
	p.v.StoreRelease(offset)
}

// Advance publishes the current offset plus n and returns the new value.
// Main loop only: the load and the store are separate steps.
func (p *Position) Advance(n uint32) uint32 {
	next := p.v.LoadRelaxed() + n
	p.v.StoreRelease(next)
	return next
}
