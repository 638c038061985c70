package loader

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/sarchlab/m2sim/insts"
	"github.com/sarchlab/m2sim/profile"
)

// lineRow is one (pc, file, line) sample taken from the DWARF line table,
// kept sorted by pc so a lookup can fall back to the nearest preceding row.
type lineRow struct {
	pc   uint64
	file string
	line uint32
}

// Disassemble decodes every instruction in path's executable segments into
// table: one PCRecord per instruction word, carrying the owning function
// name (from the ELF symbol table), a best-effort source file/line (from
// DWARF, when present), and the ARM64 mnemonic text produced by the
// instruction decoder. Missing symbol or line information degrades to
// empty strings rather than failing the load.
func Disassemble(path string, table *profile.PCTable) error {
	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("opening ELF file for disassembly: %w", err)
	}
	defer func() { _ = f.Close() }()

	funcs, err := functionSymbols(f)
	if err != nil {
		return fmt.Errorf("reading symbol table: %w", err)
	}

	rows := lineTable(f)

	dec := insts.NewDecoder()
	for _, sec := range f.Sections {
		if sec.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return fmt.Errorf("reading section %s: %w", sec.Name, err)
		}
		for off := 0; off+4 <= len(data); off += 4 {
			pc := sec.Addr + uint64(off)
			word := binary.LittleEndian.Uint32(data[off : off+4])
			inst := dec.Decode(word)

			funcName := functionAt(funcs, pc)
			file, line := lineAt(rows, pc)
			table.Load(pc, funcName, file, line, mnemonic(inst))
		}
	}
	return nil
}

// functionSymbol is a named address range from the symbol table.
type functionSymbol struct {
	name string
	lo   uint64
	hi   uint64
}

func functionSymbols(f *elf.File) ([]functionSymbol, error) {
	syms, err := f.Symbols()
	if err != nil {
		if err == elf.ErrNoSymbols {
			return nil, nil
		}
		return nil, err
	}
	out := make([]functionSymbol, 0, len(syms))
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Name == "" {
			continue
		}
		size := s.Size
		if size == 0 {
			size = 1
		}
		out = append(out, functionSymbol{name: s.Name, lo: s.Value, hi: s.Value + size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lo < out[j].lo })
	return out, nil
}

func functionAt(funcs []functionSymbol, pc uint64) string {
	i := sort.Search(len(funcs), func(i int) bool { return funcs[i].lo > pc })
	if i == 0 {
		return "unknown"
	}
	f := funcs[i-1]
	if pc >= f.lo && pc < f.hi {
		return f.name
	}
	return "unknown"
}

func lineTable(f *elf.File) []lineRow {
	d, err := f.DWARF()
	if err != nil {
		return nil
	}

	var rows []lineRow
	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := d.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		var line dwarf.LineEntry
		for {
			if err := lr.Next(&line); err != nil {
				break
			}
			rows = append(rows, lineRow{pc: line.Address, file: line.File.Name, line: uint32(line.Line)})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].pc < rows[j].pc })
	return rows
}

func lineAt(rows []lineRow, pc uint64) (string, uint32) {
	i := sort.Search(len(rows), func(i int) bool { return rows[i].pc > pc })
	if i == 0 {
		return "", 0
	}
	return rows[i-1].file, rows[i-1].line
}

// mnemonic renders a decoded instruction as assembly-like text for the
// callgrind position-line comment and for FunctionKind/width classification
// upstream in PCTable.
func mnemonic(inst *insts.Instruction) string {
	switch inst.Op {
	case insts.OpADD:
		return regRegText("add", inst)
	case insts.OpSUB:
		return regRegText("sub", inst)
	case insts.OpAND:
		return regRegText("and", inst)
	case insts.OpORR:
		return regRegText("orr", inst)
	case insts.OpEOR:
		return regRegText("eor", inst)
	case insts.OpB:
		return fmt.Sprintf("b #%d", inst.BranchOffset)
	case insts.OpBL:
		return fmt.Sprintf("bl #%d", inst.BranchOffset)
	case insts.OpBCond:
		return fmt.Sprintf("b.cond #%d", inst.BranchOffset)
	case insts.OpBR:
		return fmt.Sprintf("br x%d", inst.Rn)
	case insts.OpBLR:
		return fmt.Sprintf("blr x%d", inst.Rn)
	case insts.OpRET:
		return fmt.Sprintf("ret x%d", inst.Rn)
	case insts.OpSVC:
		return fmt.Sprintf("svc #%d", inst.Imm)
	case insts.OpBRK:
		return fmt.Sprintf("brk #%d", inst.Imm)
	case insts.OpNOP:
		return "nop"
	case insts.OpLDR, insts.OpLDRB, insts.OpLDRH, insts.OpLDRSB, insts.OpLDRSH, insts.OpLDRSW, insts.OpLDRLit:
		return fmt.Sprintf("ldr x%d, [x%d, #%d]", inst.Rd, inst.Rn, inst.Imm)
	case insts.OpSTR, insts.OpSTRB, insts.OpSTRH:
		return fmt.Sprintf("str x%d, [x%d, #%d]", inst.Rd, inst.Rn, inst.Imm)
	case insts.OpLDP:
		return fmt.Sprintf("ldp x%d, x%d, [x%d]", inst.Rd, inst.Rt2, inst.Rn)
	case insts.OpSTP:
		return fmt.Sprintf("stp x%d, x%d, [x%d]", inst.Rd, inst.Rt2, inst.Rn)
	case insts.OpADR:
		return fmt.Sprintf("adr x%d, #%d", inst.Rd, inst.BranchOffset)
	case insts.OpADRP:
		return fmt.Sprintf("adrp x%d, #%d", inst.Rd, inst.BranchOffset)
	case insts.OpMOVZ:
		return fmt.Sprintf("movz x%d, #%d", inst.Rd, inst.Imm)
	case insts.OpMOVN:
		return fmt.Sprintf("movn x%d, #%d", inst.Rd, inst.Imm)
	case insts.OpMOVK:
		return fmt.Sprintf("movk x%d, #%d", inst.Rd, inst.Imm)
	case insts.OpCSEL, insts.OpCSINC, insts.OpCSINV, insts.OpCSNEG:
		return fmt.Sprintf("csel x%d, x%d, x%d", inst.Rd, inst.Rn, inst.Rm)
	case insts.OpUDIV:
		return fmt.Sprintf("udiv x%d, x%d, x%d", inst.Rd, inst.Rn, inst.Rm)
	case insts.OpSDIV:
		return fmt.Sprintf("sdiv x%d, x%d, x%d", inst.Rd, inst.Rn, inst.Rm)
	case insts.OpMADD:
		return fmt.Sprintf("madd x%d, x%d, x%d, x%d", inst.Rd, inst.Rn, inst.Rm, inst.Rt2)
	case insts.OpMSUB:
		return fmt.Sprintf("msub x%d, x%d, x%d, x%d", inst.Rd, inst.Rn, inst.Rm, inst.Rt2)
	case insts.OpTBZ:
		return fmt.Sprintf("tbz x%d, #%d, #%d", inst.Rd, inst.Imm, inst.BranchOffset)
	case insts.OpTBNZ:
		return fmt.Sprintf("tbnz x%d, #%d, #%d", inst.Rd, inst.Imm, inst.BranchOffset)
	case insts.OpCBZ:
		return fmt.Sprintf("cbz x%d, #%d", inst.Rd, inst.BranchOffset)
	case insts.OpCBNZ:
		return fmt.Sprintf("cbnz x%d, #%d", inst.Rd, inst.BranchOffset)
	case insts.OpUBFM, insts.OpSBFM, insts.OpBFM, insts.OpEXTR:
		return fmt.Sprintf("bfm x%d, x%d", inst.Rd, inst.Rn)
	default:
		return "unknown"
	}
}

func regRegText(mnem string, inst *insts.Instruction) string {
	if inst.Format == insts.FormatDPImm {
		return fmt.Sprintf("%s x%d, x%d, #%d", mnem, inst.Rd, inst.Rn, inst.Imm)
	}
	return fmt.Sprintf("%s x%d, x%d, x%d", mnem, inst.Rd, inst.Rn, inst.Rm)
}
