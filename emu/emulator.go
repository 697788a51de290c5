package emu

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-logr/logr"

	"github.com/sarchlab/a32sim/config"
	"github.com/sarchlab/a32sim/insts"
	"github.com/sarchlab/a32sim/mmu"
	"github.com/sarchlab/a32sim/sysctrl"
)

var (
	// ErrUnpredictable reports an operand combination the architecture
	// leaves unpredictable. The instruction has no effect.
	ErrUnpredictable = errors.New("unpredictable instruction")

	// ErrInstructionLimit is returned once the configured number of
	// instructions has been executed.
	ErrInstructionLimit = errors.New("instruction limit reached")

	// ErrThumbUnsupported is returned when the core enters Thumb state.
	ErrThumbUnsupported = errors.New("thumb state is not supported")
)

var loadTable = sync.OnceValues(insts.LoadARMTable)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated through semihosting.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Skipped is true if the instruction failed its condition.
	Skipped bool

	// Exception is the exception taken during the step, if any.
	Exception Exception

	// Unpredictable is set when the instruction was suppressed because
	// its operands are unpredictable.
	Unpredictable error

	// Err is set if the simulation cannot continue.
	Err error
}

// Stats counts execution events.
type Stats struct {
	Instructions  uint64
	Skipped       uint64
	Unpredictable uint64
	Exceptions    [NumExceptions]uint64
}

// Translator maps virtual to physical addresses for the core.
type Translator interface {
	Translate(va uint32, kind mmu.AccessKind) (uint32, error)
	CheckAlignment(va uint32, size int, kind mmu.AccessKind) error
}

// Coprocessor is a coprocessor reachable through MRC and MCR.
type Coprocessor interface {
	MRC(opc1, crn, crm, opc2 uint8) (uint32, error)
	MCR(opc1, crn, crm, opc2 uint8, value uint32) error
}

// DataCoprocessor is a coprocessor that also implements CDP, LDC and STC.
// LDC and STC transfer one word per instruction.
type DataCoprocessor interface {
	Coprocessor
	CDP(opc1, crd, crn, crm, opc2 uint8) error
	LDC(crd uint8, value uint32) error
	STC(crd uint8) (uint32, error)
}

type handler func(e *Emulator, inst *insts.Instruction) error

// Emulator executes ARM instructions functionally.
type Emulator struct {
	regs    *RegFile
	alu     *ALU
	bus     Bus
	memory  *Memory
	decoder *insts.Decoder

	translator Translator
	mmu        *mmu.MMU
	cp15       *sysctrl.SystemControl
	coprocs    [16]Coprocessor

	handlers []handler
	log      logr.Logger
	stdout   io.Writer
	stderr   io.Writer

	highVectors         bool
	bigEndian           bool
	memorySize          uint64
	tlbEntries          int
	decodeCacheEntries  int
	semihosting         bool
	haltOnUnpredictable bool
	maxInstructions     uint64

	lsu      *LoadStoreUnit
	branched bool
	taken    Exception
	stats    Stats
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithConfig applies a simulator configuration. Later options override
// the fields it sets.
func WithConfig(c *config.Config) EmulatorOption {
	return func(e *Emulator) {
		e.highVectors = c.HighVectors
		e.bigEndian = c.BigEndian
		e.memorySize = c.MemorySize
		e.tlbEntries = c.TLBEntries
		e.decodeCacheEntries = c.DecodeCacheEntries
		e.semihosting = c.Semihosting
		e.haltOnUnpredictable = c.HaltOnUnpredictable
		e.maxInstructions = c.MaxInstructions
	}
}

// WithBus replaces the physical memory.
func WithBus(bus Bus) EmulatorOption {
	return func(e *Emulator) {
		e.bus = bus
	}
}

// WithTranslator replaces the MMU.
func WithTranslator(t Translator) EmulatorOption {
	return func(e *Emulator) {
		e.translator = t
	}
}

// WithCoprocessor attaches a coprocessor. Attaching coprocessor 15
// replaces the system control coprocessor.
func WithCoprocessor(num uint8, cp Coprocessor) EmulatorOption {
	return func(e *Emulator) {
		e.coprocs[num&15] = cp
	}
}

// WithLogger sets the logger. Diagnostics are logged at V(0) and every
// executed instruction at V(1).
func WithLogger(log logr.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.log = log
	}
}

// WithStdout sets the writer for semihosting output.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStderr sets the writer for semihosting writes to handle 2.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithHighVectors places the exception vectors at 0xFFFF0000.
func WithHighVectors(high bool) EmulatorOption {
	return func(e *Emulator) {
		e.highVectors = high
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithSemihosting enables host handling of SWI 0x123456.
func WithSemihosting(enabled bool) EmulatorOption {
	return func(e *Emulator) {
		e.semihosting = enabled
	}
}

// WithDecodeCache sets the number of decode cache entries. Zero disables
// the cache.
func WithDecodeCache(entries int) EmulatorOption {
	return func(e *Emulator) {
		e.decodeCacheEntries = entries
	}
}

// WithHaltOnUnpredictable stops the simulation on unpredictable
// instructions instead of skipping them.
func WithHaltOnUnpredictable(halt bool) EmulatorOption {
	return func(e *Emulator) {
		e.haltOnUnpredictable = halt
	}
}

// NewEmulator creates an emulator in the reset state with the PC at zero.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	defaults := config.Default()

	e := &Emulator{
		regs:   NewRegFile(),
		log:    logr.Discard(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	WithConfig(defaults)(e)

	for _, opt := range opts {
		opt(e)
	}

	e.alu = NewALU(e.regs)

	if e.bus == nil {
		e.memory = NewMemory(
			WithMemorySize(e.memorySize),
			WithBigEndian(e.bigEndian),
			WithMemoryLogger(e.log.WithName("memory")),
		)
		e.bus = e.memory
	} else if m, ok := e.bus.(*Memory); ok {
		e.memory = m
	}

	if e.coprocs[15] == nil {
		e.cp15 = sysctrl.New(
			sysctrl.WithHighVectors(e.highVectors),
			sysctrl.WithLogger(e.log.WithName("cp15")),
		)
		e.coprocs[15] = e.cp15
	} else if s, ok := e.coprocs[15].(*sysctrl.SystemControl); ok {
		e.cp15 = s
	}

	if e.translator == nil {
		if e.cp15 == nil {
			panic("emu: a custom coprocessor 15 requires WithTranslator")
		}

		e.mmu = mmu.New(e.cp15, e.bus,
			mmu.WithTLBEntries(e.tlbEntries),
			mmu.WithLogger(e.log.WithName("mmu")),
		)
		e.cp15.AttachTLB(e.mmu)
		e.translator = e.mmu
	}

	e.lsu = NewLoadStoreUnit(e.translator, e.bus)

	e.buildDecoder()

	return e
}

func (e *Emulator) buildDecoder() {
	table, err := loadTable()
	if err != nil {
		panic(fmt.Sprintf("emu: built-in instruction table: %v", err))
	}

	endian := insts.LittleEndian
	if e.bigEndian {
		endian = insts.BigEndian
	}

	opts := []insts.DecoderOption{
		insts.WithEndianness(endian),
		insts.WithLogger(e.log.WithName("decoder")),
	}
	if e.decodeCacheEntries > 0 {
		opts = append(opts, insts.WithDecodeCache(insts.NewDecodeCache(e.decodeCacheEntries)))
	}
	e.decoder = insts.NewDecoder(table, opts...)

	e.handlers = make([]handler, len(table.Descs))
	for _, d := range table.Descs {
		e.handlers[d.ID] = handlerFor(d.Op)
	}
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regs
}

// Memory returns the default physical memory, or nil when a custom bus is
// attached.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// Bus returns the physical memory.
func (e *Emulator) Bus() Bus {
	return e.bus
}

// MMU returns the built-in MMU, or nil when a custom translator is
// attached.
func (e *Emulator) MMU() *mmu.MMU {
	return e.mmu
}

// SystemControl returns the system control coprocessor, or nil when a
// custom coprocessor 15 is attached.
func (e *Emulator) SystemControl() *sysctrl.SystemControl {
	return e.cp15
}

// Decoder returns the instruction decoder.
func (e *Emulator) Decoder() *insts.Decoder {
	return e.decoder
}

// Stats returns the execution counters.
func (e *Emulator) Stats() Stats {
	return e.stats
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.stats.Instructions
}

// LoadProgram copies a raw image into physical memory and sets the PC to
// entry. It fails when a custom bus is attached.
func (e *Emulator) LoadProgram(entry uint32, program []byte) error {
	if e.memory == nil {
		return errors.New("LoadProgram requires the built-in memory")
	}

	e.memory.LoadProgram(entry, program)
	e.regs.SetPC(entry)

	return nil
}

// Reset takes the Reset exception: Supervisor mode, interrupts masked and
// the PC at the reset vector.
func (e *Emulator) Reset() {
	e.dispatch(ExceptionReset, e.regs.PC())
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.stats.Instructions >= e.maxInstructions {
		return StepResult{
			Err: fmt.Errorf("%w after %d instructions", ErrInstructionLimit, e.stats.Instructions),
		}
	}

	if e.regs.CPSR.T {
		return StepResult{
			Err: fmt.Errorf("%w (PC=0x%08X)", ErrThumbUnsupported, e.regs.PC()),
		}
	}

	pc := e.regs.PC()
	e.branched = false
	e.taken = ExceptionNone

	e.stats.Instructions++

	var res StepResult
	if err := e.execute(pc, &res); err != nil {
		e.route(pc, err, &res)
	}

	if res.Err == nil && !res.Exited && !e.branched && e.taken == ExceptionNone {
		e.regs.SetPC(pc + 4)
	}
	res.Exception = e.taken

	return res
}

// Run executes instructions until the program exits or an error occurs.
func (e *Emulator) Run() (int64, error) {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode, nil
		}
		if result.Err != nil {
			return -1, result.Err
		}
	}
}

func (e *Emulator) execute(pc uint32, res *StepResult) error {
	inst, err := e.decoder.Decode(pc, e.fetch)
	if err != nil {
		return err
	}

	if !inst.Desc.Unconditional() && !e.regs.CPSR.ConditionPassed(inst.Cond) {
		res.Skipped = true
		e.stats.Skipped++
		return nil
	}

	if log := e.log.V(1); log.Enabled() {
		log.Info("execute", "pc", fmt.Sprintf("0x%08X", pc), "inst", inst.String())
	}

	h := e.handlers[inst.Desc.ID]
	if h == nil {
		return undefined("no semantics for %s", inst.Desc.Name)
	}

	return h(e, inst)
}

// route turns an execution error into an exception, a suppressed
// instruction or a fatal result.
func (e *Emulator) route(pc uint32, err error, res *StepResult) {
	var (
		t     *trap
		fault *mmu.Fault
		exit  *exitRequest
	)

	switch {
	case errors.As(err, &exit):
		res.Exited = true
		res.ExitCode = exit.code
	case errors.As(err, &t):
		e.log.V(1).Info("trap", "pc", fmt.Sprintf("0x%08X", pc), "exception", t.exc.String(), "reason", t.reason)
		e.dispatch(t.exc, pc)
	case errors.As(err, &fault):
		prefetch := fault.Kind == mmu.AccessFetch
		if e.cp15 != nil {
			e.cp15.RecordFault(fault.FSR(), fault.Addr, prefetch)
		}

		e.log.V(1).Info("abort", "pc", fmt.Sprintf("0x%08X", pc), "fault", fault.Error())
		if prefetch {
			e.dispatch(ExceptionPrefetchAbort, pc)
		} else {
			e.dispatch(ExceptionDataAbort, pc)
		}
	case errors.Is(err, insts.ErrUnknownInstruction):
		e.log.V(1).Info("undefined instruction", "pc", fmt.Sprintf("0x%08X", pc))
		e.dispatch(ExceptionUndefined, pc)
	case errors.Is(err, ErrUnpredictable):
		e.stats.Unpredictable++
		e.log.Error(err, "instruction suppressed", "pc", fmt.Sprintf("0x%08X", pc))
		res.Unpredictable = err
		if e.haltOnUnpredictable {
			res.Err = err
		}
	default:
		res.Err = err
	}
}

// fetch reads an instruction word through the translator.
func (e *Emulator) fetch(addr uint32) (uint32, error) {
	pa, err := e.translator.Translate(addr, mmu.AccessFetch)
	if err != nil {
		return 0, err
	}
	return e.bus.Read32(pa), nil
}

// reg reads a register operand. The PC reads as the instruction address
// plus 8.
func (e *Emulator) reg(n uint8) uint32 {
	if n&15 == PC {
		return e.regs.PC() + 8
	}
	return e.regs.Read(n)
}

// setReg writes a register. Writing the PC branches, ignoring the two
// low bits.
func (e *Emulator) setReg(n uint8, v uint32) {
	if n&15 == PC {
		e.branchTo(v &^ 3)
		return
	}
	e.regs.Write(n, v)
}

// loadPC writes a value loaded from memory to the PC. Bit 0 selects
// Thumb state.
func (e *Emulator) loadPC(v uint32) {
	e.regs.CPSR.T = v&1 != 0
	e.branchTo(v &^ 1)
}

func (e *Emulator) branchTo(addr uint32) {
	e.regs.SetPC(addr)
	e.branched = true
}

func unpredictable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnpredictable, fmt.Sprintf(format, args...))
}

// trap requests an exception from a handler.
type trap struct {
	exc    Exception
	reason string
}

func (t *trap) Error() string {
	return fmt.Sprintf("%s: %s", t.exc, t.reason)
}

func undefined(format string, args ...any) error {
	return &trap{exc: ExceptionUndefined, reason: fmt.Sprintf(format, args...)}
}

func handlerFor(op insts.Op) handler {
	switch {
	case op >= insts.OpAND && op <= insts.OpMVN:
		return (*Emulator).execDataProcessing
	}

	switch op {
	case insts.OpMOVW, insts.OpMOVT:
		return (*Emulator).execWideMove
	case insts.OpMRS:
		return (*Emulator).execMRS
	case insts.OpMSR:
		return (*Emulator).execMSR
	case insts.OpBX, insts.OpBLX:
		return (*Emulator).execBranchExchange
	case insts.OpCLZ:
		return (*Emulator).execCLZ
	case insts.OpQADD, insts.OpQSUB, insts.OpQDADD, insts.OpQDSUB:
		return (*Emulator).execSaturating
	case insts.OpBKPT:
		return (*Emulator).execBKPT
	case insts.OpSMLAXY, insts.OpSMLAWY, insts.OpSMULWY, insts.OpSMLALXY, insts.OpSMULXY:
		return (*Emulator).execHalfwordMultiply
	case insts.OpMUL, insts.OpMLA, insts.OpUMAAL, insts.OpMLS,
		insts.OpUMULL, insts.OpUMLAL, insts.OpSMULL, insts.OpSMLAL:
		return (*Emulator).execMultiply
	case insts.OpSWP, insts.OpSWPB:
		return (*Emulator).execSwap
	case insts.OpLDREX, insts.OpSTREX, insts.OpLDREXD, insts.OpSTREXD,
		insts.OpLDREXB, insts.OpSTREXB, insts.OpLDREXH, insts.OpSTREXH:
		return (*Emulator).execExclusive
	case insts.OpLDRH, insts.OpSTRH, insts.OpLDRSB, insts.OpLDRSH, insts.OpLDRD, insts.OpSTRD:
		return (*Emulator).execExtraLoadStore
	case insts.OpLDR, insts.OpSTR, insts.OpLDRB, insts.OpSTRB:
		return (*Emulator).execLoadStore
	case insts.OpSXTB, insts.OpSXTH, insts.OpUXTB, insts.OpUXTH,
		insts.OpSXTAB, insts.OpSXTAH, insts.OpUXTAB, insts.OpUXTAH:
		return (*Emulator).execExtend
	case insts.OpREV, insts.OpREV16, insts.OpREVSH:
		return (*Emulator).execReverse
	case insts.OpSBFX, insts.OpUBFX, insts.OpBFI, insts.OpBFC:
		return (*Emulator).execBitfield
	case insts.OpLDM, insts.OpSTM:
		return (*Emulator).execBlockTransfer
	case insts.OpB, insts.OpBL:
		return (*Emulator).execBranch
	case insts.OpPLD:
		return (*Emulator).execPreload
	case insts.OpCPS:
		return (*Emulator).execCPS
	case insts.OpCLREX, insts.OpDSB, insts.OpDMB, insts.OpISB:
		return (*Emulator).execBarrier
	case insts.OpCDP, insts.OpMCR, insts.OpMRC:
		return (*Emulator).execCoprocessor
	case insts.OpLDC, insts.OpSTC:
		return (*Emulator).execCoprocessorLoadStore
	case insts.OpSWI:
		return (*Emulator).execSWI
	}

	return nil
}
