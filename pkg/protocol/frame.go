// Package protocol defines the text framing shared by the chat client and backend.
//
// Outbound frames carry the raw text of one user message. Inbound frames are
// zero or more reply fragments followed by exactly one EndOfStream frame.
package protocol

import "strings"

// EndOfStream is the reserved frame value that terminates a streamed reply.
const EndOfStream = "[END]"

// FrameKind represents the kind of an inbound frame
type FrameKind int

const (
	FrameFragment FrameKind = iota
	FrameEnd
)

// String returns the string representation of FrameKind
func (k FrameKind) String() string {
	switch k {
	case FrameFragment:
		return "FRAGMENT"
	case FrameEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// Classify reports whether frame is a content fragment or the end marker.
// Only an exact match is treated as the marker.
func Classify(frame string) FrameKind {
	if frame == EndOfStream {
		return FrameEnd
	}
	return FrameFragment
}

// Chunk splits text into word fragments the way the backend streams them:
// the first word bare, every later word prefixed with a single space.
// Concatenating the result yields text again.
func Chunk(text string) []string {
	words := strings.Split(text, " ")
	chunks := make([]string, 0, len(words))
	for i, word := range words {
		if i == 0 {
			chunks = append(chunks, word)
			continue
		}
		chunks = append(chunks, " "+word)
	}
	return chunks
}

// SafeFragments returns the frames to send for one content fragment.
// A fragment equal to EndOfStream is split in two so it can never be
// mistaken for the marker; the receiver concatenates fragments, so the
// content is unchanged.
func SafeFragments(fragment string) []string {
	if fragment != EndOfStream {
		return []string{fragment}
	}
	half := len(fragment) / 2
	return []string{fragment[:half], fragment[half:]}
}
