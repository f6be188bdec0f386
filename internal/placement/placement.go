// Package placement decides which objects to copy onto a backup disk, and
// which existing copies to evict to make room, so that every object gains
// redundancy in order of (copies, priority) while keeping each redundancy
// level balanced across disks.
package placement

import (
	"fmt"
	"math"
	"sort"

	"github.com/dustin/go-humanize"

	"dbk-go/internal/ledger"
	"dbk-go/internal/model"
	"dbk-go/internal/nexus"
)

// Object is one row of the object table as seen by the planner.
type Object struct {
	Hash      string
	Size      int64
	BlockSize int64
	Nexus     nexus.Nexus
	Refs      int
	Priority  int
	MaxCopies model.MaxCopies
	LastPath  string
}

// Options control one placement run against a single disk.
type Options struct {
	// Disk is the nexus index of the target disk.
	Disk int
	// Available is the free space on the disk in bytes. It may be negative
	// when the disk is over its declared size.
	Available int64
	// LimitBytes caps the bytes copied in this run. Zero means no cap.
	LimitBytes int64
	// LimitCopies skips objects that already have at least this many copies.
	// Zero means no limit.
	LimitCopies int
	// NoFlush disables evicting existing copies to make room.
	NoFlush bool
	// Simulate plans without calling the Executor.
	Simulate bool
}

// Executor performs the physical work decided by Run.
type Executor interface {
	// Delete removes e's copy from the target disk. Failures that should not
	// stop the run are handled (and logged) by the executor itself.
	Delete(e *Entry) error
	// Copy writes e onto the target disk. It reports false when the object
	// could not be copied for a reason that does not stop the run, such as
	// the source having changed since the last update.
	Copy(e *Entry, remaining int64) (bool, error)
}

// Logger is the subset of the service logger used here.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Report summarizes a run. Copied is keyed by the level an object reached;
// Deleted by the level it left.
type Report struct {
	Copied         map[int]int64
	Deleted        map[int]int64
	CopiedObjects  int
	DeletedObjects int
	UnableToCopy   []*Entry
}

// CopiedBytes returns the total of Copied.
func (r *Report) CopiedBytes() int64 { return sum(r.Copied) }

// DeletedBytes returns the total of Deleted.
func (r *Report) DeletedBytes() int64 { return sum(r.Deleted) }

func sum(m map[int]int64) int64 {
	var n int64
	for _, v := range m {
		n += v
	}
	return n
}

type planner struct {
	ledger   *ledger.Ledger
	opts     Options
	exec     Executor
	logger   Logger
	report   *Report
	avail    int64
	remain   int64
	limited  bool
	onDisk   []*ObjectGroup
	offDisk  []*ObjectGroup
	toDelete []*Entry
}

// Run plans and executes placement for one disk. The ledger must already
// hold the size of every referenced object; it is updated as objects move.
func Run(l *ledger.Ledger, objects []Object, opts Options, exec Executor, logger Logger) (*Report, error) {
	p := &planner{
		ledger:  l,
		opts:    opts,
		exec:    exec,
		logger:  logger,
		report:  &Report{Copied: map[int]int64{}, Deleted: map[int]int64{}},
		avail:   opts.Available,
		remain:  opts.LimitBytes,
		limited: opts.LimitBytes > 0,
	}
	p.classify(objects)

	if err := p.deleteExcess(); err != nil {
		return p.report, err
	}
	if err := p.loop(); err != nil {
		return p.report, err
	}
	p.summarize()
	return p.report, nil
}

// classify sorts objects into copy candidates, eviction candidates and
// copies that must go regardless.
func (p *planner) classify(objects []Object) {
	disk := p.opts.Disk
	off := groupSet{}
	on := groupSet{}
	for _, o := range objects {
		copies := o.Nexus.Level()
		e := &Entry{
			Hash:      o.Hash,
			Size:      o.Size,
			BlockSize: o.BlockSize,
			Refs:      o.Refs,
			Copies:    copies,
			Priority:  o.Priority,
			MaxCopies: o.MaxCopies,
			Path:      o.LastPath,
			From:      p.ledger.Group(o.Nexus),
		}

		if o.Nexus.Has(disk) {
			e.To = p.ledger.Group(o.Nexus.Without(disk))
			if o.MaxCopies.Exceeded(copies) || o.Refs == 0 {
				p.toDelete = append(p.toDelete, e)
				continue
			}
			// Never evict the last copy.
			if copies <= 1 {
				continue
			}
			on.add(GroupKey{Copies: copies, Priority: o.Priority}, e)
			continue
		}

		e.To = p.ledger.Group(o.Nexus.With(disk))
		if o.MaxCopies.Reached(copies) || o.Refs == 0 {
			continue
		}
		if p.opts.LimitCopies > 0 && copies >= p.opts.LimitCopies {
			continue
		}
		off.add(GroupKey{Copies: copies + 1, Priority: o.Priority}, e)
	}
	p.offDisk = off.ordered()
	p.onDisk = on.ordered()
	sort.Slice(p.toDelete, func(i, j int) bool { return p.toDelete[i].Hash < p.toDelete[j].Hash })
}

// deleteExcess removes unreferenced and over-replicated copies.
func (p *planner) deleteExcess() error {
	for _, e := range p.toDelete {
		// Unreferenced objects were never counted in the ledger.
		if e.Refs > 0 {
			p.ledger.MoveObject(e.From, e.To, e.BlockSize, e.MaxCopies)
			p.avail += e.BlockSize
			p.report.Deleted[e.From.Level] += e.BlockSize
		}
		p.report.DeletedObjects++
		if p.opts.Simulate {
			p.logger.Info("would delete", "hash", e.Hash, "path", e.Path, "size", humanize.IBytes(uint64(e.BlockSize)))
			continue
		}
		p.logger.Info("delete", "hash", e.Hash, "path", e.Path, "refs", e.Refs, "copies", e.Copies)
		if err := p.exec.Delete(e); err != nil {
			return fmt.Errorf("deleting %s: %w", e.Hash, err)
		}
	}
	return nil
}

func (p *planner) reclaimable() int64 {
	if p.opts.NoFlush {
		return 0
	}
	var n int64
	for _, g := range p.onDisk {
		n += g.TotalSize()
	}
	return n
}

func (p *planner) loop() error {
	for {
		for len(p.offDisk) > 0 && p.offDisk[0].Len() == 0 {
			p.offDisk = p.offDisk[1:]
		}
		if len(p.offDisk) == 0 {
			return nil
		}
		src := p.offDisk[0]

		// Only copies of strictly lower rank than src may be evicted for it.
		for len(p.onDisk) > 0 && p.onDisk[0].Key.LessOrEqual(src.Key) {
			p.onDisk = p.onDisk[1:]
		}
		for len(p.onDisk) > 0 && p.onDisk[len(p.onDisk)-1].Len() == 0 {
			p.onDisk = p.onDisk[:len(p.onDisk)-1]
		}

		reclaimable := p.reclaimable()
		budget := p.avail + reclaimable
		if p.limited && budget > p.remain {
			budget = p.remain
		}

		if !src.Sorted() {
			src.Sort(p.ledger)
		}
		e := src.Pop(budget)
		if e == nil {
			// Nothing left in this group fits; the budget only shrinks.
			p.offDisk = p.offDisk[1:]
			continue
		}
		src.Commit()

		if err := p.place(e, reclaimable); err != nil {
			return err
		}
	}
}

// place tentatively moves e onto the disk, evicts lower ranked copies if
// space is short, and then either performs the work or rolls it back.
func (p *planner) place(e *Entry, reclaimable int64) error {
	p.reserve(e)

	var evicted []*Entry
	if p.avail < 0 && reclaimable >= -p.avail && !p.opts.NoFlush {
		for i := len(p.onDisk) - 1; p.avail < 0 && i >= 0; {
			g := p.onDisk[i]
			if g.Len() == 0 {
				i--
				continue
			}
			if !g.Sorted() {
				g.Sort(p.ledger)
			}
			d := g.Pop(math.MaxInt64)
			evicted = append(evicted, d)
			p.ledger.MoveObject(d.From, d.To, d.BlockSize, d.MaxCopies)
			p.avail += d.BlockSize
			p.logger.Debug("evict candidate", "path", d.Path, "size", d.BlockSize, "avail", p.avail)
		}
	}

	copied, executed := false, false
	if p.avail >= 0 {
		if p.opts.Simulate {
			for _, d := range evicted {
				p.logger.Info("would delete", "path", d.Path, "size", humanize.IBytes(uint64(d.BlockSize)), "disks", d.From.Nexus.Disks())
			}
			p.logger.Info("would copy", "path", e.Path, "size", humanize.IBytes(uint64(e.BlockSize)), "disks", e.From.Nexus.Disks())
			copied = true
		} else {
			for _, d := range evicted {
				p.logger.Info("delete", "path", d.Path, "size", humanize.IBytes(uint64(d.BlockSize)), "disks", d.To.Nexus.Disks())
				if err := p.exec.Delete(d); err != nil {
					return fmt.Errorf("deleting %s: %w", d.Hash, err)
				}
				executed = true
			}
			ok, err := p.exec.Copy(e, p.remain)
			if err != nil {
				return fmt.Errorf("copying %s: %w", e.Hash, err)
			}
			copied = ok
			if !ok {
				p.report.UnableToCopy = append(p.report.UnableToCopy, e)
			}
		}
	} else {
		p.logger.Debug("not enough space", "path", e.Path, "size", e.BlockSize)
	}

	if copied || executed {
		for _, d := range evicted {
			p.report.Deleted[d.From.Level] += d.BlockSize
			p.report.DeletedObjects++
		}
		for _, g := range p.onDisk {
			g.Commit()
		}
	} else {
		for i := len(evicted) - 1; i >= 0; i-- {
			d := evicted[i]
			p.ledger.MoveObject(d.To, d.From, d.BlockSize, d.MaxCopies)
			p.avail -= d.BlockSize
		}
		for _, g := range p.onDisk {
			g.Rollback()
		}
	}

	if copied {
		p.report.Copied[e.To.Level] += e.BlockSize
		p.report.CopiedObjects++
	} else {
		p.release(e)
	}
	return nil
}

func (p *planner) reserve(e *Entry) {
	if p.limited {
		p.remain -= e.BlockSize
	}
	p.avail -= e.BlockSize
	p.ledger.MoveObject(e.From, e.To, e.BlockSize, e.MaxCopies)
}

func (p *planner) release(e *Entry) {
	if p.limited {
		p.remain += e.BlockSize
	}
	p.avail += e.BlockSize
	p.ledger.MoveObject(e.To, e.From, e.BlockSize, e.MaxCopies)
}

func (p *planner) summarize() {
	p.logger.Info("copied", "objects", p.report.CopiedObjects, "size", humanize.IBytes(uint64(p.report.CopiedBytes())))
	for _, level := range sortedLevels(p.report.Copied) {
		p.logger.Info("copied level", "from", level-1, "to", level, "size", humanize.IBytes(uint64(p.report.Copied[level])))
	}
	p.logger.Info("deleted", "objects", p.report.DeletedObjects, "size", humanize.IBytes(uint64(p.report.DeletedBytes())))
	for _, level := range sortedLevels(p.report.Deleted) {
		p.logger.Info("deleted level", "from", level, "to", level-1, "size", humanize.IBytes(uint64(p.report.Deleted[level])))
	}
	if len(p.report.UnableToCopy) > 0 {
		p.logger.Info("some objects could not be copied; run update", "count", len(p.report.UnableToCopy))
	}
}

func sortedLevels(m map[int]int64) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
