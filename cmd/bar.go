package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/moyoez/bigtransfer-go/types"
)

// progressRenderer draws progress snapshots as a terminal bar. It counts bytes
// once a total is known and falls back to percent otherwise.
type progressRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	desc  string
	bar   *progressbar.ProgressBar
	bytes bool
	total int64
}

func newProgressRenderer(out io.Writer, desc string) *progressRenderer {
	return &progressRenderer{out: out, desc: desc}
}

func (r *progressRenderer) start(total int64, bytes bool) {
	if r.bar != nil {
		_ = r.bar.Exit()
	}
	r.total = total
	r.bytes = bytes
	r.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(r.desc),
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionShowBytes(bytes),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(r.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to snapshot.
func (r *progressRenderer) Update(snapshot types.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	withBytes := snapshot.TotalBytes > 0
	switch {
	case r.bar == nil && withBytes:
		r.start(snapshot.TotalBytes, true)
	case r.bar == nil:
		r.start(100, false)
	case withBytes && (!r.bytes || snapshot.TotalBytes != r.total):
		r.start(snapshot.TotalBytes, true)
	}

	if !r.bytes {
		_ = r.bar.Set64(int64(snapshot.Percentage))
		return
	}
	current := snapshot.BytesProcessed
	if byPct := int64(snapshot.Percentage / 100 * float64(r.total)); byPct > current {
		current = byPct
	}
	if current > r.total {
		current = r.total
	}
	_ = r.bar.Set64(current)
	if snapshot.EtaFormatted != "" && snapshot.EtaFormatted != types.EtaUnknown {
		r.bar.Describe(fmt.Sprintf("%s (ETA %s)", r.desc, snapshot.EtaFormatted))
	}
}

// Finish fills the bar when ok, otherwise leaves it where it stopped.
func (r *progressRenderer) Finish(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return
	}
	if ok {
		r.bar.Describe(r.desc)
		_ = r.bar.Finish()
	} else {
		_ = r.bar.Exit()
		fmt.Fprint(r.out, "\n")
	}
	r.bar = nil
}

// Current reports the position of the live bar, zero when none.
func (r *progressRenderer) Current() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		return 0
	}
	return r.bar.State().CurrentNum
}
