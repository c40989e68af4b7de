package logic

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// RecentWindow is how long a slot stays flagged as recently occupied.
const RecentWindow = 60 * time.Second

// Slot is one physical parking bay.
type Slot struct {
	Name       string
	Occupied   bool
	AssignedID int // 0 when free
	TimeIn     time.Time
}

// Ticket is the billing record for one occupancy episode.
type Ticket struct {
	ID              int
	Slot            string
	TimeIn          time.Time
	Closed          bool
	TimeOut         time.Time
	DurationMinutes int
	Fee             decimal.Decimal
}

// SlotView is the reporting view of a slot.
type SlotView struct {
	Name     string
	Occupied bool
	ID       int // 0 when free
	// ElapsedMinutes is nil when the slot is free.
	ElapsedMinutes *float64
	// Recent is true for slots occupied within RecentWindow.
	Recent bool
}

// Snapshot is a point-in-time view of the ledger.
// It is a value type and shares no memory with the ledger.
type Snapshot struct {
	Time         time.Time
	Total        int
	Free         int
	Occupied     int
	Slots        []SlotView
	OpenTickets  []Ticket // ordered by ID
	RecentClosed []Ticket // most recent first
	Revenue      decimal.Decimal
}

// Ledger owns slot and ticket state.
type Ledger struct {
	rate         decimal.Decimal
	historyLimit int

	slots  []Slot
	byName map[string]int
	open   map[int]*Ticket
	// closed is kept in close order; callers see it reversed.
	closed  []Ticket
	pool    []int // sorted ascending
	revenue decimal.Decimal
}

// NewLedger creates a ledger with slots named S1..Sn. historyLimit caps
// the closed ticket history; 0 keeps everything.
func NewLedger(n int, rate decimal.Decimal, historyLimit int) *Ledger {
	l := &Ledger{
		rate:         rate,
		historyLimit: historyLimit,
		slots:        make([]Slot, n),
		byName:       make(map[string]int, n),
		open:         make(map[int]*Ticket, n),
		pool:         make([]int, n),
	}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("S%d", i+1)
		l.slots[i] = Slot{Name: name}
		l.byName[name] = i
		l.pool[i] = i + 1
	}
	return l
}

// Occupy marks a slot occupied and opens a ticket with the lowest free ID.
// Returns false if the slot is unknown, already occupied, or no ID is free.
func (l *Ledger) Occupy(name string, now time.Time) (int, bool) {
	i, ok := l.byName[name]
	if !ok {
		return 0, false
	}
	s := &l.slots[i]
	if s.Occupied || len(l.pool) == 0 {
		return 0, false
	}

	id := l.pool[0]
	l.pool = l.pool[1:]

	s.Occupied = true
	s.AssignedID = id
	s.TimeIn = now
	l.open[id] = &Ticket{ID: id, Slot: name, TimeIn: now}
	return id, true
}

// Vacate closes the slot's open ticket and frees its ID.
// Returns false if the slot is unknown or not occupied.
func (l *Ledger) Vacate(name string, now time.Time) (Ticket, bool) {
	i, ok := l.byName[name]
	if !ok {
		return Ticket{}, false
	}
	s := &l.slots[i]
	if !s.Occupied {
		return Ticket{}, false
	}

	id := s.AssignedID
	t, ok := l.open[id]
	if !ok {
		t = &Ticket{ID: id, Slot: name, TimeIn: s.TimeIn}
	}
	delete(l.open, id)

	t.Closed = true
	t.TimeOut = now
	t.DurationMinutes = billableMinutes(t.TimeIn, now)
	t.Fee = l.rate.Mul(decimal.NewFromInt(int64(t.DurationMinutes)))
	l.revenue = l.revenue.Add(t.Fee)

	l.closed = append(l.closed, *t)
	if l.historyLimit > 0 && len(l.closed) > l.historyLimit {
		l.closed = slices.Delete(l.closed, 0, len(l.closed)-l.historyLimit)
	}

	s.Occupied = false
	s.AssignedID = 0
	s.TimeIn = time.Time{}
	l.release(id)

	return *t, true
}

func (l *Ledger) release(id int) {
	pos, found := slices.BinarySearch(l.pool, id)
	if found {
		return
	}
	l.pool = slices.Insert(l.pool, pos, id)
}

// billableMinutes rounds a stay up to the next whole minute.
func billableMinutes(in, out time.Time) int {
	d := out.Sub(in)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// Occupied reports whether the slot at index i is occupied.
func (l *Ledger) Occupied(i int) bool {
	return l.slots[i].Occupied
}

// SlotName returns the name of the slot at index i.
func (l *Ledger) SlotName(i int) string {
	return l.slots[i].Name
}

// Len returns the number of slots.
func (l *Ledger) Len() int {
	return len(l.slots)
}

// Free returns the number of free slots.
func (l *Ledger) Free() int {
	n := 0
	for _, s := range l.slots {
		if !s.Occupied {
			n++
		}
	}
	return n
}

// Revenue returns the total of all fees billed since startup.
func (l *Ledger) Revenue() decimal.Decimal {
	return l.revenue
}

// Snapshot builds a fresh view of the ledger. recent limits the number of
// closed tickets returned; recent <= 0 returns the whole history.
func (l *Ledger) Snapshot(now time.Time, recent int) Snapshot {
	snap := Snapshot{
		Time:    now,
		Total:   len(l.slots),
		Slots:   make([]SlotView, len(l.slots)),
		Revenue: l.revenue,
	}

	for i, s := range l.slots {
		v := SlotView{Name: s.Name, Occupied: s.Occupied}
		if s.Occupied {
			snap.Occupied++
			v.ID = s.AssignedID
			m := now.Sub(s.TimeIn).Minutes()
			v.ElapsedMinutes = &m
			v.Recent = now.Sub(s.TimeIn) < RecentWindow
		}
		snap.Slots[i] = v
	}
	snap.Free = snap.Total - snap.Occupied

	snap.OpenTickets = make([]Ticket, 0, len(l.open))
	for _, t := range l.open {
		snap.OpenTickets = append(snap.OpenTickets, *t)
	}
	slices.SortFunc(snap.OpenTickets, func(a, b Ticket) int { return a.ID - b.ID })

	n := len(l.closed)
	if recent > 0 && recent < n {
		n = recent
	}
	snap.RecentClosed = make([]Ticket, n)
	for i := 0; i < n; i++ {
		snap.RecentClosed[i] = l.closed[len(l.closed)-1-i]
	}

	return snap
}

// CheckInvariants verifies the slot, ticket, and ID pool invariants.
func (l *Ledger) CheckInvariants() error {
	var errs []error
	n := len(l.slots)

	seen := make(map[int]string, n)
	for _, id := range l.pool {
		if id < 1 || id > n {
			errs = append(errs, fmt.Errorf("pool id %d out of range", id))
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("pool id %d duplicated", id))
		}
		seen[id] = "pool"
	}
	if !slices.IsSorted(l.pool) {
		errs = append(errs, errors.New("pool not sorted"))
	}

	for id, t := range l.open {
		if where, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("id %d both open and in %s", id, where))
		}
		seen[id] = "open"
		i, ok := l.byName[t.Slot]
		if !ok {
			errs = append(errs, fmt.Errorf("ticket %d references unknown slot %q", id, t.Slot))
			continue
		}
		if s := l.slots[i]; !s.Occupied || s.AssignedID != id {
			errs = append(errs, fmt.Errorf("ticket %d open but slot %s does not hold it", id, t.Slot))
		}
	}

	if len(seen) != n {
		errs = append(errs, fmt.Errorf("pool and open tickets cover %d ids, want %d", len(seen), n))
	}

	for _, s := range l.slots {
		if !s.Occupied {
			continue
		}
		t, ok := l.open[s.AssignedID]
		if !ok || t.Slot != s.Name {
			errs = append(errs, fmt.Errorf("slot %s occupied without a matching open ticket", s.Name))
		}
	}

	for _, t := range l.closed {
		if t.DurationMinutes < 0 || t.Fee.IsNegative() {
			errs = append(errs, fmt.Errorf("closed ticket %d has negative duration or fee", t.ID))
		}
	}

	return errors.Join(errs...)
}
