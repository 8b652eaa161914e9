package calltrace

import (
	"strconv"
	"strings"
	"time"
)

// Markers drawn in front of the message at levels above zero.
const (
	StartMarker    = "-->"
	CompleteMarker = "<--"
	ErrorMarker    = "<X-"
)

const continuation = "|   "

// indent renders the nesting prefix for level.
//
//	level 0:
//	level 1: |-->
//	level 2: |   |-->
func indent(marker string, level int) string {
	if level <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(level * len(continuation))
	for i := 0; i < level-1; i++ {
		b.WriteString(continuation)
	}
	b.WriteByte('|')
	b.WriteString(marker)
	return b.String()
}

func startLine(id TraceID, message string) string {
	return "[" + id.id + "] " + indent(StartMarker, id.level) + oneLine(message)
}

func endLine(id TraceID, message string, elapsed time.Duration, err error) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(id.id)
	b.WriteString("] ")
	if err == nil {
		b.WriteString(indent(CompleteMarker, id.level))
	} else {
		b.WriteString(indent(ErrorMarker, id.level))
	}
	b.WriteString(oneLine(message))
	b.WriteString(" time=")
	b.WriteString(strconv.FormatInt(elapsedMillis(elapsed), 10))
	b.WriteString("ms")
	if err != nil {
		b.WriteString(" ex=")
		b.WriteString(oneLine(err.Error()))
	}
	return b.String()
}

// oneLine keeps each event on a single line. Joined errors render as
// "first; second".
func oneLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "; ")
}

// elapsedMillis truncates to whole milliseconds and never goes negative.
func elapsedMillis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}
