package mind

// MentalLog is a bounded, insertion-ordered event timeline backed by a ring
// buffer. It is not safe for concurrent use; the owning Session serialises access.
type MentalLog struct {
	buf  []Event
	head int // index of the oldest event
	n    int
}

// NewMentalLog returns an empty log holding at most capacity events (minimum 1).
func NewMentalLog(capacity int) *MentalLog {
	if capacity < 1 {
		capacity = 1
	}
	return &MentalLog{buf: make([]Event, capacity)}
}

// Append adds e, evicting the oldest event when full.
func (l *MentalLog) Append(e Event) {
	if l.n < len(l.buf) {
		l.buf[(l.head+l.n)%len(l.buf)] = e
		l.n++
		return
	}
	l.buf[l.head] = e
	l.head = (l.head + 1) % len(l.buf)
}

func (l *MentalLog) Len() int { return l.n }
func (l *MentalLog) Cap() int { return len(l.buf) }

func (l *MentalLog) at(i int) Event {
	return l.buf[(l.head+i)%len(l.buf)]
}

// Events returns a copy of the contents, oldest first.
func (l *MentalLog) Events() []Event {
	out := make([]Event, l.n)
	for i := range out {
		out[i] = l.at(i)
	}
	return out
}

// Recent returns up to n newest events, oldest first.
func (l *MentalLog) Recent(n int) []Event {
	if n > l.n {
		n = l.n
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	for i := range out {
		out[i] = l.at(l.n - n + i)
	}
	return out
}

// LastOf returns the newest event of the given kind.
func (l *MentalLog) LastOf(kind EventKind) (Event, bool) {
	for i := l.n - 1; i >= 0; i-- {
		if e := l.at(i); e.Kind == kind {
			return e, true
		}
	}
	return Event{}, false
}

// LastReply returns the text of the newest delivered bot reply.
func (l *MentalLog) LastReply() string {
	for i := l.n - 1; i >= 0; i-- {
		if e := l.at(i); e.Kind == EventBotPlan && e.Visible && e.Text != "" {
			return e.Text
		}
	}
	return ""
}

// fromEvents rebuilds a log with the given capacity, keeping the newest events.
func fromEvents(capacity int, events []Event) *MentalLog {
	l := NewMentalLog(capacity)
	for _, e := range events {
		l.Append(e)
	}
	return l
}
