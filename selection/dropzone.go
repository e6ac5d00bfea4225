package selection

import "sync"

// DropZone decides whether a drop overlay is shown. Drag enter and leave arrive in pairs
// per nested target, so the overlay stays visible until every enter has its leave.
type DropZone struct {
	mu    sync.Mutex
	depth int
}

// Enter records a drag entering the zone or one of its children.
func (z *DropZone) Enter() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.depth++
}

// Leave records a drag leaving; unmatched leaves are ignored.
func (z *DropZone) Leave() {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.depth > 0 {
		z.depth--
	}
}

// Drop ends the drag regardless of how many enters are outstanding.
func (z *DropZone) Drop() {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.depth = 0
}

func (z *DropZone) Visible() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.depth > 0
}
