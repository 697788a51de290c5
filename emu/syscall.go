package emu

import (
	"fmt"

	"github.com/sarchlab/a32sim/insts"
)

// SemihostingSWI is the SWI number of ARM-state semihosting calls.
const SemihostingSWI uint32 = 0x123456

// Semihosting operations, passed in r0.
const (
	SysWriteC uint32 = 0x03 // write the byte at [r1]
	SysWrite0 uint32 = 0x04 // write the NUL-terminated string at r1
	SysWrite  uint32 = 0x05 // r1 -> {fd, buf, len}
	SysExit   uint32 = 0x18 // r1 = reason code
)

// ADPStoppedApplicationExit is the SYS_EXIT reason of a normal exit.
const ADPStoppedApplicationExit uint32 = 0x20026

// maxSemihostString bounds the bytes a single SYS_WRITE0 or SYS_WRITE
// call reads from the guest.
const maxSemihostString = 1 << 16

// exitRequest ends the simulation from a semihosting call.
type exitRequest struct {
	code int64
}

func (x *exitRequest) Error() string {
	return fmt.Sprintf("exit(%d)", x.code)
}

// execSWI executes SWI. Semihosting calls are served on the host when
// enabled; every other SWI enters the Supervisor handler.
func (e *Emulator) execSWI(inst *insts.Instruction) error {
	swi := inst.Operands.(insts.SoftwareInterrupt)

	if e.semihosting && swi.Imm == SemihostingSWI {
		return e.semihost()
	}

	return &trap{exc: ExceptionSWI, reason: fmt.Sprintf("swi #0x%06X", swi.Imm)}
}

// semihost serves the call selected by r0. The result is returned in r0.
func (e *Emulator) semihost() error {
	op := e.regs.Read(0)
	arg := e.regs.Read(1)

	switch op {
	case SysWriteC:
		c, err := e.lsu.Load8(arg)
		if err != nil {
			return err
		}
		_, _ = e.stdout.Write([]byte{byte(c)})
	case SysWrite0:
		var buf []byte
		for i := uint32(0); i < maxSemihostString; i++ {
			c, err := e.lsu.Load8(arg + i)
			if err != nil {
				return err
			}
			if c == 0 {
				break
			}
			buf = append(buf, byte(c))
		}
		_, _ = e.stdout.Write(buf)
	case SysWrite:
		return e.semihostWrite(arg)
	case SysExit:
		code := int64(0)
		if arg != ADPStoppedApplicationExit {
			code = 1
		}
		return &exitRequest{code: code}
	default:
		e.log.Info("unsupported semihosting call", "op", fmt.Sprintf("0x%02X", op))
		e.regs.Write(0, 0xFFFFFFFF)
	}

	return nil
}

// semihostWrite writes up to maxSemihostString bytes of the len bytes at
// buf. r0 receives the number of bytes not written, so a guest asking for
// more sees a partial write.
func (e *Emulator) semihostWrite(block uint32) error {
	var args [3]uint32
	for i := range args {
		v, err := e.lsu.Load32(block + uint32(4*i))
		if err != nil {
			return err
		}
		args[i] = v
	}

	fd, buf, n := args[0], args[1], args[2]

	if fd != 1 && fd != 2 {
		e.log.Info("semihosting write to unknown handle", "fd", fd)
		e.regs.Write(0, n)
		return nil
	}

	data := make([]byte, min(n, maxSemihostString))
	for i := range data {
		c, err := e.lsu.Load8(buf + uint32(i))
		if err != nil {
			return err
		}
		data[i] = byte(c)
	}

	w := e.stdout
	if fd == 2 {
		w = e.stderr
	}

	written, _ := w.Write(data)
	e.regs.Write(0, n-uint32(written))

	return nil
}
