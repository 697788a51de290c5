// Package insts provides table-driven decoding of 32-bit ARM machine code.
//
// Instruction formats and instruction descriptors are loaded from a static
// table (the embedded arm.isa file). The table seeds a discrimination tree
// that identifies the instruction for a fetched word; all fields of the
// resolved format are then extracted into an Instruction record carrying a
// typed operand payload. Decoded records are memoized per fetch address by a
// DecodeCache that re-validates the raw words on every hit.
//
// Usage:
//
//	table, _ := insts.LoadARMTable()
//	decoder := insts.NewDecoder(table)
//	inst, err := decoder.Decode(0x8000, fetch)
//	fmt.Println(inst.Desc.Mnemonic, inst.Operands)
package insts
