// Package chunking splits transcript text into overlapping, boundary-snapped segments.
//
// A window of Size characters advances through the text. When a window ends
// before the text does, its end is moved to just after the last sentence or
// paragraph delimiter (". ", "! ", "? ", blank line) found in the look-back
// region, which spans at most Overlap characters and never reaches back past
// the window midpoint. The next window starts Overlap characters before the
// previous end, or half a window further on when that would not advance.
//
// Every segment of a source carries the same final SegmentCount. Input that
// would need more than MaxSegments windows is rejected with ErrTooManySegments.
package chunking
