package machine

import (
	"encoding/binary"
	"log/slog"

	"github.com/mrexodia/libriscv/decoder"
	"github.com/mrexodia/libriscv/fault"
	"github.com/mrexodia/libriscv/internal/logging"
	"github.com/mrexodia/libriscv/memory"
	"github.com/mrexodia/libriscv/registers"
	"github.com/mrexodia/libriscv/segment"
)

// maxOnDemandSegmentPages bounds how far segmentFor scans forward
// from a missing PC looking for a contiguous executable run, so a stray
// jump into a huge sparsely-executable region can't stall the host.
const maxOnDemandSegmentPages = 256

// Machine is one guest CPU: its register file, address space, decoded
// execute segments, instruction budget, and host-supplied callbacks. A
// Machine is not safe for concurrent use from multiple goroutines.
type Machine struct {
	Regs registers.File
	Mem  *memory.Facade

	Store *memory.PageStore
	Arena *memory.Arena

	segments *segment.Set
	Counter  Counter
	Options  Options

	SyscallTable       SyscallTable
	OnUnhandledSyscall func(m *Machine, number uint64) error
	OnSegmentChange    func(old, new *segment.Segment) uint64

	Stopped    bool
	StopReason string

	logger *slog.Logger
}

// NewMachine allocates a Machine configured by opts. The guest image is
// not installed yet; call LoadFlat (or map pages directly through Mem)
// before Simulate.
func NewMachine(opts Options) (*Machine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	store := memory.NewPageStore(opts.MemoryMax)
	var arena *memory.Arena
	if opts.UseMemoryArena {
		arena = memory.NewArena(opts.ArenaSize)
	}

	m := &Machine{
		Mem:                memory.NewFacade(store, arena),
		Store:              store,
		Arena:              arena,
		segments:           segment.NewSet(),
		Options:            opts,
		SyscallTable:       make(SyscallTable),
		OnUnhandledSyscall: defaultUnhandledSyscall,
		logger:             logging.Default(),
	}
	return m, nil
}

func (m *Machine) decoderOptions() decoder.Options {
	return decoder.Options{
		FloatEnabled:           m.Options.FloatEnabled,
		DecoderRewriterEnabled: m.Options.DecoderRewriterEnabled,
		XLEN:                   m.Options.XLEN,
	}
}

// LoadFlat installs a raw binary image at addr: the bytes are copied into
// freshly-allocated readable/writable pages, then the covering pages are
// switched to readable+executable (not writable) and an execute segment is
// built and registered eagerly. The guest PC is set to addr. This is a
// minimal stand-in for the out-of-scope ELF loader.
func (m *Machine) LoadFlat(addr uint64, image []byte) error {
	if len(image) == 0 {
		return &fault.InvalidProgram{Reason: "empty image"}
	}
	m.Mem.CopyIn(addr, image)

	paddedLen := (uint64(len(image)) + 3) &^ 3
	end := addr + paddedLen
	if err := m.SetPageAttrs(addr, end, memory.Attrs{Read: true, Exec: true}); err != nil {
		return err
	}

	bytes, err := m.Mem.ReadBytes(addr, int(paddedLen), addr)
	if err != nil {
		return err
	}
	seg, err := segment.Build(bytes, addr, m.decoderOptions(), m.Options.MaxBlockLength)
	if err != nil {
		return err
	}
	if err := m.segments.Add(seg); err != nil {
		return err
	}

	m.Regs.PC = addr
	m.logger.Info("loaded flat image", "addr", addr, "size", len(image))
	return nil
}

// SetPageAttrs applies attrs to every page overlapping [begin, end),
// rejecting a simultaneously writable and executable range unless
// Options.AllowWriteExecSegment is set.
func (m *Machine) SetPageAttrs(begin, end uint64, attrs memory.Attrs) error {
	if attrs.Write && attrs.Exec && !m.Options.AllowWriteExecSegment {
		return &fault.InvalidProgram{Reason: "page requested both writable and executable"}
	}
	m.Mem.SetAttrs(begin, end, attrs)
	if !attrs.Exec {
		m.segments.Remove(begin, end)
	}
	return nil
}

// Halt requests that Simulate stop at the next suspension point. Intended
// to be called from a syscall handler (e.g. servicing an exit syscall).
func (m *Machine) Halt(reason string) {
	m.Stopped = true
	m.StopReason = reason
}

// SetMaxInstructions overrides the current call's absolute instruction
// limit, the cooperative-cancellation hook available to syscall handlers.
func (m *Machine) SetMaxInstructions(n uint64) {
	m.Counter.SetMaxInstructions(n)
}

// Executed returns the total number of instructions retired so far.
func (m *Machine) Executed() uint64 {
	return m.Counter.Executed()
}

// Fork returns a new Machine sharing this one's pages via copy-on-write.
// The register file and segment set are copied independently; the arena
// (if any) has no CoW sharing of its own and is deep-copied.
func (m *Machine) Fork() *Machine {
	child := &Machine{
		Regs:               m.Regs,
		Store:              m.Store.Fork(),
		Arena:              m.Arena.Clone(),
		segments:           m.segments.Clone(), // decoded slots are immutable, but each fork registers its own set
		Options:            m.Options,
		SyscallTable:       m.SyscallTable,
		OnUnhandledSyscall: m.OnUnhandledSyscall,
		OnSegmentChange:    m.OnSegmentChange,
		logger:             m.logger,
	}
	child.Mem = memory.NewFacade(child.Store, child.Arena)
	return child
}

// segmentFor returns the execute segment covering pc, building and
// registering one on demand if the pages at pc are already marked
// executable but not yet covered by a known segment.
func (m *Machine) segmentFor(pc uint64) (*segment.Segment, error) {
	if seg, ok := m.segments.Lookup(pc); ok {
		return seg, nil
	}

	pageBase := pc &^ uint64(memory.PageSize-1)
	if !m.Mem.HasExec(pageBase) {
		return nil, &fault.ExecutionSpaceProtected{PC: pc}
	}
	end := pageBase + memory.PageSize
	for pages := 1; pages < maxOnDemandSegmentPages && m.Mem.HasExec(end); pages++ {
		end += memory.PageSize
	}

	bytes := make([]byte, 0, end-pageBase)
	for a := pageBase; a < end; a += 4 {
		w, err := m.Mem.FetchWord(a)
		if err != nil {
			return nil, err
		}
		bytes = binary.LittleEndian.AppendUint32(bytes, w)
	}
	seg, err := segment.Build(bytes, pageBase, m.decoderOptions(), m.Options.MaxBlockLength)
	if err != nil {
		return nil, err
	}
	if err := m.segments.Add(seg); err != nil {
		return nil, err
	}
	return seg, nil
}
