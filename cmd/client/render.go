package main

import (
	"fmt"
	"io"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

// renderer prints session snapshots to a terminal as a running log.
// Snapshots may be coalesced, so it tracks how much it has already printed.
type renderer struct {
	w       io.Writer
	shown   int
	partial int
	status  chat.Status
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, status: chat.StatusConnecting}
}

func (r *renderer) run(updates <-chan chat.Snapshot) {
	for snap := range updates {
		r.render(snap)
	}
}

func (r *renderer) render(snap chat.Snapshot) {
	for ; r.shown < len(snap.Messages); r.shown++ {
		msg := snap.Messages[r.shown]
		if msg.Sender != chat.SenderBot {
			continue
		}
		if r.partial == 0 {
			fmt.Fprint(r.w, "[bot]: ")
		}
		if r.partial < len(msg.Text) {
			fmt.Fprint(r.w, msg.Text[r.partial:])
		}
		fmt.Fprintln(r.w)
		r.partial = 0
	}

	switch {
	case snap.IsStreaming && len(snap.Streaming) > r.partial:
		if r.partial == 0 {
			fmt.Fprint(r.w, "[bot]: ")
		}
		fmt.Fprint(r.w, snap.Streaming[r.partial:])
		r.partial = len(snap.Streaming)
	case !snap.IsStreaming && r.partial > 0:
		fmt.Fprintln(r.w, " (reply interrupted)")
		r.partial = 0
	}

	if snap.Status != r.status {
		r.status = snap.Status
		fmt.Fprintf(r.w, "*** %s ***\n", snap.Status)
	}
}
