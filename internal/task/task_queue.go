package task

const initialBandCapacity = 64

// band is a FIFO of tasks sharing one priority.
type band struct {
	items []*Task
	head  int
}

func (b *band) push(t *Task) {
	if b.items == nil {
		b.items = make([]*Task, 0, initialBandCapacity)
	}
	b.items = append(b.items, t)
}

// peek returns the oldest task without removing it.
func (b *band) peek() *Task {
	if b.len() == 0 {
		return nil
	}
	return b.items[b.head]
}

// pop removes and returns the oldest task.
func (b *band) pop() *Task {
	if b.len() == 0 {
		return nil
	}
	t := b.items[b.head]
	b.items[b.head] = nil
	b.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if b.head > initialBandCapacity && b.head*2 >= len(b.items) {
		n := copy(b.items, b.items[b.head:])
		for i := n; i < len(b.items); i++ {
			b.items[i] = nil
		}
		b.items = b.items[:n]
		b.head = 0
	}
	return t
}

func (b *band) len() int {
	return len(b.items) - b.head
}

// drain removes and returns every task in FIFO order.
func (b *band) drain() []*Task {
	out := make([]*Task, 0, b.len())
	for b.len() > 0 {
		out = append(out, b.pop())
	}
	return out
}

// QueueDepths reports how many tasks wait in each priority band
type QueueDepths struct {
	High      int `json:"high"`
	Normal    int `json:"normal"`
	Low       int `json:"low"`
	Scheduled int `json:"scheduled"`
}

// Total returns the number of queued tasks across all bands.
func (d QueueDepths) Total() int {
	return d.High + d.Normal + d.Low + d.Scheduled
}

// queueSet holds the four priority bands. It is owned by the dispatcher loop.
type queueSet struct {
	bands [len(bandOrder)]band
}

func newQueueSet() *queueSet {
	return &queueSet{}
}

// push appends t to the back of the band matching its priority.
func (q *queueSet) push(t *Task) {
	q.bands[t.Priority.band()].push(t)
}

func (q *queueSet) band(p Priority) *band {
	return &q.bands[p.band()]
}

func (q *queueSet) depths() QueueDepths {
	return QueueDepths{
		High:      q.bands[0].len(),
		Normal:    q.bands[1].len(),
		Low:       q.bands[2].len(),
		Scheduled: q.bands[3].len(),
	}
}

// drainAll empties every band, highest priority first.
func (q *queueSet) drainAll() []*Task {
	var out []*Task
	for i := range q.bands {
		out = append(out, q.bands[i].drain()...)
	}
	return out
}

// locate returns the priority band holding the task with the given ID and
// how many bands hold it.
func (q *queueSet) locate(id string) (Priority, int) {
	var found Priority
	count := 0
	for i := range q.bands {
		b := &q.bands[i]
		for _, t := range b.items[b.head:] {
			if t.ID == id {
				found = bandOrder[i]
				count++
			}
		}
	}
	return found, count
}
