// Package insts provides ARM64 instruction definitions and decoding.
package insts

// Op represents an ARM64 opcode.
type Op uint16

// ARM64 opcodes.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpORR
	OpEOR
	OpB
	OpBL
	OpBCond
	OpBR
	OpBLR
	OpRET
	OpSVC
	OpBRK
	OpNOP
	OpUBFM
	OpSBFM
	OpBFM
	OpLDR
	OpSTR
	OpLDRB
	OpSTRB
	OpLDRSB
	OpLDRH
	OpSTRH
	OpLDRSH
	OpLDRSW
	OpLDP
	OpSTP
	OpADR
	OpADRP
	OpLDRLit
	OpMOVZ
	OpMOVN
	OpMOVK
	OpCSEL
	OpCSINC
	OpCSINV
	OpCSNEG
	OpCCMP
	OpCCMN
	OpUDIV
	OpSDIV
	OpLSLV
	OpLSRV
	OpASRV
	OpRORV
	OpMADD
	OpMSUB
	OpTBZ
	OpTBNZ
	OpCBZ
	OpCBNZ
	OpVADD
	OpVSUB
	OpVMUL
	OpVFADD
	OpVFSUB
	OpVFMUL
	OpLDRQ
	OpSTRQ
	OpEXTR
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatDPImm          // Data Processing (Immediate)
	FormatDPReg          // Data Processing (Register)
	FormatBranch         // Unconditional Branch (Immediate)
	FormatBranchCond     // Conditional Branch
	FormatBranchReg      // Branch to Register
	FormatSystem         // SVC, BRK, NOP, HINT
	FormatLogicalImm     // Logical (Immediate): AND/ORR/EOR/ANDS
	FormatBitfield       // SBFM/BFM/UBFM
	FormatExtract        // EXTR
	FormatLoadStore      // LDR/STR family, single register
	FormatLoadStorePair  // LDP/STP
	FormatPCRel          // ADR/ADRP
	FormatLoadStoreLit   // PC-relative literal load
	FormatMoveWide       // MOVZ/MOVN/MOVK
	FormatCondSelect     // CSEL/CSINC/CSINV/CSNEG
	FormatCondCmp        // CCMP/CCMN
	FormatDataProc2Src   // UDIV/SDIV/LSLV/LSRV/ASRV/RORV
	FormatDataProc3Src   // MADD/MSUB
	FormatTestBranch     // TBZ/TBNZ
	FormatCompareBranch  // CBZ/CBNZ
	FormatSIMDReg        // SIMD three-same register ops
	FormatSIMDLoadStore  // SIMD 128-bit load/store
)

// Cond represents an ARM64 condition code.
type Cond uint8

// ARM64 condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always (unconditional)
	CondNV Cond = 0b1111 // Always (unconditional, reserved)
)

// ShiftType represents a shift type for register operands.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
)

// IndexMode selects the addressing mode of a load/store instruction.
type IndexMode uint8

// Load/store addressing modes.
const (
	IndexUnsigned IndexMode = iota // unsigned immediate offset, no writeback
	IndexPre                       // pre-indexed: writeback before access
	IndexPost                      // post-indexed: writeback after access
	IndexRegBase                   // extended/scaled register offset
)

// Instruction represents a decoded ARM64 instruction.
type Instruction struct {
	Op     Op     // Operation code
	Format Format // Encoding format

	// Common fields
	Is64Bit  bool  // true for 64-bit (X registers), false for 32-bit (W registers)
	SetFlags bool  // true if instruction sets condition flags (S suffix)
	Rd       uint8 // Destination register
	Rn       uint8 // First source register
	Rm       uint8 // Second source register (for register format)
	Rt2      uint8 // Second transfer register (LDP/STP) or Ra (MADD/MSUB)

	// Immediate operand
	Imm   uint64 // Immediate value
	Imm2  uint64 // Secondary immediate (imms for bitfield ops, nzcv/imm for CCMP)
	Shift uint8  // Shift amount for immediate

	// Branch fields
	BranchOffset int64 // Signed branch offset in bytes
	Cond         Cond  // Condition code for conditional branches

	// Shift for register operand
	ShiftType   ShiftType // Type of shift applied to Rm
	ShiftAmount uint8     // Shift amount for Rm

	// Load/store addressing
	IndexMode IndexMode // Addressing mode for load/store instructions
	SignedImm int64     // Signed byte offset for indexed load/store forms

	// SIMD
	Arrangement uint8 // Vector arrangement specifier (Arr8B, Arr4S, ...)
}

// Decoder decodes ARM64 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new ARM64 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit ARM64 instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown}

	// Extract top-level opcode bits to determine instruction class
	// ARM64 uses bits [31:25] for primary classification

	op0 := (word >> 25) & 0xF // bits [28:25]

	switch {
	case d.isSystem(word):
		d.decodeSystem(word, inst)
	case d.isBitfield(word):
		d.decodeBitfield(word, inst)
	case d.isExtract(word):
		d.decodeExtract(word, inst)
	case d.isLogicalImm(word):
		d.decodeLogicalImm(word, inst)
	case d.isDataProcessingImm(word):
		d.decodeDataProcessingImm(word, inst)
	case d.isDataProcessing3Src(word):
		d.decodeDataProcessing3Src(word, inst)
	case d.isDataProcessing2Src(word):
		d.decodeDataProcessing2Src(word, inst)
	case d.isCondSelect(word):
		d.decodeCondSelect(word, inst)
	case d.isCondCmp(word):
		d.decodeCondCmp(word, inst)
	case d.isDataProcessingReg(word):
		d.decodeDataProcessingReg(word, inst)
	case d.isMoveWide(word):
		d.decodeMoveWide(word, inst)
	case d.isPCRel(word):
		d.decodePCRel(word, inst)
	case d.isLoadStoreLit(word):
		d.decodeLoadStoreLit(word, inst)
	case d.isLoadStorePair(word):
		d.decodeLoadStorePair(word, inst)
	case d.isLoadStoreReg(word):
		d.decodeLoadStoreReg(word, inst)
	case d.isSIMDLoadStore(word):
		d.decodeSIMDLoadStore(word, inst)
	case d.isSIMDReg(word):
		d.decodeSIMDReg(word, inst)
	case d.isTestBranch(word):
		d.decodeTestBranch(word, inst)
	case d.isCompareBranch(word):
		d.decodeCompareBranch(word, inst)
	case d.isBranchImm(word):
		d.decodeBranchImm(word, inst)
	case d.isBranchCond(word):
		d.decodeBranchCond(word, inst)
	case d.isBranchReg(word):
		d.decodeBranchReg(word, inst)
	default:
		// Unknown instruction
		_ = op0 // unused, but extracted for future expansion
	}

	return inst
}

// isDataProcessingImm checks if instruction is Data Processing (Immediate).
// Add/Sub immediate: bits [28:23] == 0b100010
func (d *Decoder) isDataProcessingImm(word uint32) bool {
	op := (word >> 23) & 0x3F // bits [28:23]
	return op == 0b100010
}

// decodeDataProcessingImm decodes Add/Sub immediate instructions.
// Format: sf | op | S | 100010 | sh | imm12 | Rn | Rd
func (d *Decoder) decodeDataProcessingImm(word uint32, inst *Instruction) {
	inst.Format = FormatDPImm

	sf := (word >> 31) & 0x1       // bit 31: 1=64-bit, 0=32-bit
	op := (word >> 30) & 0x1       // bit 30: 0=ADD, 1=SUB
	s := (word >> 29) & 0x1        // bit 29: 1=set flags
	sh := (word >> 22) & 0x1       // bit 22: shift
	imm12 := (word >> 10) & 0xFFF  // bits [21:10]
	rn := (word >> 5) & 0x1F       // bits [9:5]
	rd := word & 0x1F              // bits [4:0]

	inst.Is64Bit = sf == 1
	inst.SetFlags = s == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Imm = uint64(imm12)

	if sh == 1 {
		inst.Shift = 12
	}

	if op == 0 {
		inst.Op = OpADD
	} else {
		inst.Op = OpSUB
	}
}

// isDataProcessingReg checks if instruction is Data Processing (Register).
// Add/Sub register: bits [28:24] == 0b01011
// Logical register: bits [28:24] == 0b01010
func (d *Decoder) isDataProcessingReg(word uint32) bool {
	op := (word >> 24) & 0x1F // bits [28:24]
	return op == 0b01011 || op == 0b01010
}

// decodeDataProcessingReg decodes Add/Sub/Logical register instructions.
// Add/Sub format: sf | op | S | 01011 | shift | 0 | Rm | imm6 | Rn | Rd
// Logical format: sf | opc | 01010 | shift | N | Rm | imm6 | Rn | Rd
func (d *Decoder) decodeDataProcessingReg(word uint32, inst *Instruction) {
	inst.Format = FormatDPReg

	sf := (word >> 31) & 0x1     // bit 31
	op := (word >> 24) & 0x1F    // bits [28:24]
	rd := word & 0x1F            // bits [4:0]
	rn := (word >> 5) & 0x1F     // bits [9:5]
	imm6 := (word >> 10) & 0x3F  // bits [15:10]
	rm := (word >> 16) & 0x1F    // bits [20:16]
	shift := (word >> 22) & 0x3  // bits [23:22]

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rm = uint8(rm)
	inst.ShiftType = ShiftType(shift)
	inst.ShiftAmount = uint8(imm6)

	if op == 0b01011 {
		// Add/Sub register
		opBit := (word >> 30) & 0x1 // bit 30: 0=ADD, 1=SUB
		sBit := (word >> 29) & 0x1  // bit 29: set flags

		inst.SetFlags = sBit == 1

		if opBit == 0 {
			inst.Op = OpADD
		} else {
			inst.Op = OpSUB
		}
	} else {
		// Logical register (op == 0b01010)
		opc := (word >> 29) & 0x3 // bits [30:29]

		switch opc {
		case 0b00:
			inst.Op = OpAND
			inst.SetFlags = false
		case 0b01:
			inst.Op = OpORR
			inst.SetFlags = false
		case 0b10:
			inst.Op = OpEOR
			inst.SetFlags = false
		case 0b11:
			inst.Op = OpAND
			inst.SetFlags = true // ANDS
		}
	}
}

// isBranchImm checks for unconditional branch immediate.
// B:  bits [31:26] == 0b000101
// BL: bits [31:26] == 0b100101
func (d *Decoder) isBranchImm(word uint32) bool {
	op := (word >> 26) & 0x3F
	return op == 0b000101 || op == 0b100101
}

// decodeBranchImm decodes B and BL instructions.
// Format: op | imm26
func (d *Decoder) decodeBranchImm(word uint32, inst *Instruction) {
	inst.Format = FormatBranch

	op := (word >> 31) & 0x1    // bit 31: 0=B, 1=BL
	imm26 := word & 0x3FFFFFF   // bits [25:0]

	// Sign-extend imm26 to int64 and multiply by 4
	offset := int64(imm26)
	if (imm26 >> 25) == 1 {
		// Sign extend
		offset |= ^int64(0x3FFFFFF)
	}
	offset *= 4

	inst.BranchOffset = offset

	// For positive offsets, also store as unsigned immediate
	if offset >= 0 {
		inst.Imm = uint64(offset)
	}

	if op == 0 {
		inst.Op = OpB
	} else {
		inst.Op = OpBL
	}
}

// isBranchCond checks for conditional branch.
// B.cond: bits [31:25] == 0b0101010, bit 4 == 0
func (d *Decoder) isBranchCond(word uint32) bool {
	op := (word >> 25) & 0x7F
	bit4 := (word >> 4) & 0x1
	return op == 0b0101010 && bit4 == 0
}

// decodeBranchCond decodes conditional branch instructions.
// Format: 0101010 0 | imm19 | 0 | cond
func (d *Decoder) decodeBranchCond(word uint32, inst *Instruction) {
	inst.Format = FormatBranchCond
	inst.Op = OpBCond

	imm19 := (word >> 5) & 0x7FFFF // bits [23:5]
	cond := word & 0xF              // bits [3:0]

	// Sign-extend imm19 and multiply by 4
	offset := int64(imm19)
	if (imm19 >> 18) == 1 {
		offset |= ^int64(0x7FFFF)
	}
	offset *= 4

	inst.BranchOffset = offset
	if offset >= 0 {
		inst.Imm = uint64(offset)
	}
	inst.Cond = Cond(cond)
}

// isBranchReg checks for branch to register.
// Format: 1101011 0 0 op[1:0] 11111 0000 0 0 Rn 00000
func (d *Decoder) isBranchReg(word uint32) bool {
	// Check bits [31:25] == 0b1101011 and bits [15:10] == 0b000000 and bits [4:0] == 0b00000
	hi := (word >> 25) & 0x7F
	mid := (word >> 10) & 0x3F
	lo := word & 0x1F

	return hi == 0b1101011 && mid == 0b000000 && lo == 0b00000
}

// decodeBranchReg decodes BR, BLR, and RET instructions.
// Format: 1101011 0 0 op[1:0] 11111 0000 0 0 Rn 00000
func (d *Decoder) decodeBranchReg(word uint32, inst *Instruction) {
	inst.Format = FormatBranchReg

	op := (word >> 21) & 0x3 // bits [22:21]
	rn := (word >> 5) & 0x1F // bits [9:5]

	inst.Rn = uint8(rn)

	switch op {
	case 0b00:
		inst.Op = OpBR
	case 0b01:
		inst.Op = OpBLR
	case 0b10:
		inst.Op = OpRET
	default:
		inst.Op = OpUnknown
	}
}

// isSystem checks for HINT (NOP) and exception-generation (SVC, BRK) instructions.
func (d *Decoder) isSystem(word uint32) bool {
	if word == 0xD503201F { // NOP encoding has no variable fields
		return true
	}
	return (word>>24)&0xFF == 0xD4 // exception generation class
}

// decodeSystem decodes SVC, BRK, and NOP.
// Exception generation format: 11010100 opc(3) imm16(16) opc2(3) LL(2)
func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	inst.Format = FormatSystem

	if word == 0xD503201F {
		inst.Op = OpNOP
		return
	}

	ll := word & 0x3
	imm16 := (word >> 5) & 0xFFFF // bits [20:5]

	inst.Imm = uint64(imm16)
	if ll == 0b01 {
		inst.Op = OpSVC
	} else {
		inst.Op = OpBRK
	}
}

// isLogicalImm checks for AND/ORR/EOR/ANDS with an immediate bitmask operand.
// Format: sf opc 100100 N immr imms Rn Rd
func (d *Decoder) isLogicalImm(word uint32) bool {
	return (word>>23)&0x3F == 0b100100
}

func (d *Decoder) decodeLogicalImm(word uint32, inst *Instruction) {
	inst.Format = FormatLogicalImm

	sf := (word >> 31) & 0x1
	opc := (word >> 29) & 0x3
	n := (word >> 22) & 0x1
	immr := (word >> 16) & 0x3F
	imms := (word >> 10) & 0x3F
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Imm = decodeBitMaskImmediate(n, immr, imms, inst.Is64Bit)

	switch opc {
	case 0b00:
		inst.Op = OpAND
	case 0b01:
		inst.Op = OpORR
	case 0b10:
		inst.Op = OpEOR
	case 0b11:
		inst.Op = OpAND
		inst.SetFlags = true // ANDS
	}
}

// decodeBitMaskImmediate implements the standard ARM64 bitmask-immediate
// expansion: it replicates a run of set bits of length (S-R+1), rotated
// right by R, across an element of size 1<<len, then tiles that element to
// fill the register width.
func decodeBitMaskImmediate(n, immr, imms uint32, is64Bit bool) uint64 {
	var combined uint32
	if is64Bit {
		combined = (n << 6) | (^imms & 0x3F)
	} else {
		combined = ^imms & 0x3F
	}

	length := highestSetBit(combined)
	if length < 0 {
		return 0
	}

	esize := uint32(1) << uint32(length)
	levels := esize - 1
	s := imms & levels
	r := immr & levels

	var welem uint64
	if s+1 >= 64 {
		welem = ^uint64(0)
	} else {
		welem = (uint64(1) << (s + 1)) - 1
	}

	var mask uint64 = ^uint64(0)
	if esize < 64 {
		mask = (uint64(1) << esize) - 1
	}

	var rotated uint64
	if r == 0 {
		rotated = welem
	} else {
		rotated = ((welem >> r) | (welem << (esize - r))) & mask
	}

	width := uint32(32)
	if is64Bit {
		width = 64
	}

	result := rotated
	for rep := esize; rep < width; rep *= 2 {
		result |= result << rep
	}
	if width == 32 {
		result &= 0xFFFFFFFF
	}
	return result
}

func highestSetBit(x uint32) int {
	n := -1
	for x != 0 {
		n++
		x >>= 1
	}
	return n
}

// isBitfield checks for SBFM/BFM/UBFM.
// Format: sf opc 100110 N immr imms Rn Rd
func (d *Decoder) isBitfield(word uint32) bool {
	return (word>>23)&0x3F == 0b100110
}

func (d *Decoder) decodeBitfield(word uint32, inst *Instruction) {
	inst.Format = FormatBitfield

	sf := (word >> 31) & 0x1
	opc := (word >> 29) & 0x3
	immr := (word >> 16) & 0x3F
	imms := (word >> 10) & 0x3F
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Imm = uint64(immr)
	inst.Imm2 = uint64(imms)

	switch opc {
	case 0b00:
		inst.Op = OpSBFM
	case 0b01:
		inst.Op = OpBFM
	case 0b10:
		inst.Op = OpUBFM
	default:
		inst.Op = OpUnknown
	}
}

// isExtract checks for EXTR.
// Format: sf 00 100111 N 0 Rm imms Rn Rd
func (d *Decoder) isExtract(word uint32) bool {
	return (word>>23)&0x3F == 0b100111
}

func (d *Decoder) decodeExtract(word uint32, inst *Instruction) {
	inst.Format = FormatExtract
	inst.Op = OpEXTR

	sf := (word >> 31) & 0x1
	rm := (word >> 16) & 0x1F
	imms := (word >> 10) & 0x3F
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rm = uint8(rm)
	inst.Imm = uint64(imms) // lsb
}

// isDataProcessing2Src checks for UDIV/SDIV/LSLV/LSRV/ASRV/RORV.
// Format: sf 0 S 11010110 Rm opcode Rn Rd
func (d *Decoder) isDataProcessing2Src(word uint32) bool {
	return (word>>21)&0xFF == 0b11010110
}

func (d *Decoder) decodeDataProcessing2Src(word uint32, inst *Instruction) {
	inst.Format = FormatDataProc2Src

	sf := (word >> 31) & 0x1
	rm := (word >> 16) & 0x1F
	opcode := (word >> 10) & 0x3F
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rm = uint8(rm)

	switch opcode {
	case 0b000010:
		inst.Op = OpUDIV
	case 0b000011:
		inst.Op = OpSDIV
	case 0b001000:
		inst.Op = OpLSLV
	case 0b001001:
		inst.Op = OpLSRV
	case 0b001010:
		inst.Op = OpASRV
	case 0b001011:
		inst.Op = OpRORV
	default:
		inst.Op = OpUnknown
	}
}

// isDataProcessing3Src checks for MADD/MSUB.
// Format: sf op54 11011 op31 Rm o0 Ra Rn Rd
func (d *Decoder) isDataProcessing3Src(word uint32) bool {
	return (word>>24)&0x1F == 0b11011
}

func (d *Decoder) decodeDataProcessing3Src(word uint32, inst *Instruction) {
	inst.Format = FormatDataProc3Src

	sf := (word >> 31) & 0x1
	op31 := (word >> 21) & 0x7
	rm := (word >> 16) & 0x1F
	o0 := (word >> 15) & 0x1
	ra := (word >> 10) & 0x1F
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rm = uint8(rm)
	inst.Rt2 = uint8(ra) // Ra (the accumulate operand) rides in Rt2

	if op31 == 0 {
		if o0 == 0 {
			inst.Op = OpMADD
		} else {
			inst.Op = OpMSUB
		}
	} else {
		inst.Op = OpUnknown
	}
}

// isCondSelect checks for CSEL/CSINC/CSINV/CSNEG.
// Format: sf op S 11010100 Rm cond op2 Rn Rd
func (d *Decoder) isCondSelect(word uint32) bool {
	return (word>>21)&0xFF == 0b11010100
}

func (d *Decoder) decodeCondSelect(word uint32, inst *Instruction) {
	inst.Format = FormatCondSelect

	sf := (word >> 31) & 0x1
	op := (word >> 30) & 0x1
	rm := (word >> 16) & 0x1F
	cond := (word >> 12) & 0xF
	op2 := (word >> 10) & 0x3
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rm = uint8(rm)
	inst.Cond = Cond(cond)

	switch {
	case op == 0 && op2 == 0b00:
		inst.Op = OpCSEL
	case op == 0 && op2 == 0b01:
		inst.Op = OpCSINC
	case op == 1 && op2 == 0b00:
		inst.Op = OpCSINV
	case op == 1 && op2 == 0b01:
		inst.Op = OpCSNEG
	default:
		inst.Op = OpUnknown
	}
}

// isCondCmp checks for CCMP/CCMN (register and immediate forms).
// Format: sf op 1 11010010 Rm/imm5 cond imm_bit 0 Rn 0 nzcv
func (d *Decoder) isCondCmp(word uint32) bool {
	return (word>>21)&0x1FF == 0b111010010
}

func (d *Decoder) decodeCondCmp(word uint32, inst *Instruction) {
	inst.Format = FormatCondCmp

	sf := (word >> 31) & 0x1
	op := (word >> 30) & 0x1
	rmOrImm := (word >> 16) & 0x1F
	cond := (word >> 12) & 0xF
	immBit := (word >> 11) & 0x1
	rn := (word >> 5) & 0x1F
	nzcv := word & 0xF

	inst.Is64Bit = sf == 1
	inst.Rn = uint8(rn)
	inst.Cond = Cond(cond)
	inst.Imm = uint64(nzcv)

	if immBit == 1 {
		inst.Rm = 0xFF // sentinel: operand is the immediate in Imm2
		inst.Imm2 = uint64(rmOrImm)
	} else {
		inst.Rm = uint8(rmOrImm)
	}

	if op == 0 {
		inst.Op = OpCCMN
	} else {
		inst.Op = OpCCMP
	}
}

// isMoveWide checks for MOVN/MOVZ/MOVK.
// Format: sf opc 100101 hw imm16 Rd
func (d *Decoder) isMoveWide(word uint32) bool {
	return (word>>23)&0x3F == 0b100101
}

func (d *Decoder) decodeMoveWide(word uint32, inst *Instruction) {
	inst.Format = FormatMoveWide

	sf := (word >> 31) & 0x1
	opc := (word >> 29) & 0x3
	hw := (word >> 21) & 0x3
	imm16 := (word >> 5) & 0xFFFF
	rd := word & 0x1F

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rd)
	inst.Imm = uint64(imm16)
	inst.Shift = uint8(hw) * 16

	switch opc {
	case 0b00:
		inst.Op = OpMOVN
	case 0b10:
		inst.Op = OpMOVZ
	case 0b11:
		inst.Op = OpMOVK
	default:
		inst.Op = OpUnknown
	}
}

// isPCRel checks for ADR/ADRP.
// Format: op immlo 10000 immhi Rd
func (d *Decoder) isPCRel(word uint32) bool {
	return (word>>24)&0x1F == 0b10000
}

func (d *Decoder) decodePCRel(word uint32, inst *Instruction) {
	inst.Format = FormatPCRel

	op := (word >> 31) & 0x1
	immlo := (word >> 29) & 0x3
	immhi := (word >> 5) & 0x7FFFF
	rd := word & 0x1F

	imm := (immhi << 2) | immlo
	offset := int64(imm)
	if (imm>>20)&1 == 1 {
		offset |= ^int64(0x1FFFFF)
	}

	inst.Rd = uint8(rd)
	if op == 1 {
		inst.Op = OpADRP
		offset *= 4096
	} else {
		inst.Op = OpADR
	}
	inst.BranchOffset = offset
}

// isLoadStoreLit checks for PC-relative literal loads (LDR Rt, label).
// Format: opc 011 V 00 imm19 Rt
func (d *Decoder) isLoadStoreLit(word uint32) bool {
	return (word>>24)&0x3F == 0b011000 && (word>>26)&0x1 == 0
}

func (d *Decoder) decodeLoadStoreLit(word uint32, inst *Instruction) {
	inst.Format = FormatLoadStoreLit
	inst.Op = OpLDRLit

	opc := (word >> 30) & 0x3
	imm19 := (word >> 5) & 0x7FFFF
	rd := word & 0x1F

	offset := int64(imm19)
	if (imm19>>18)&1 == 1 {
		offset |= ^int64(0x7FFFF)
	}
	offset *= 4

	inst.Is64Bit = opc == 0b01
	inst.Rd = uint8(rd)
	inst.BranchOffset = offset
}

// isLoadStorePair checks for LDP/STP (general-purpose registers).
// Format: opc 101 V idx(2) L imm7 Rt2 Rn Rt
func (d *Decoder) isLoadStorePair(word uint32) bool {
	class := (word >> 27) & 0x7
	v := (word >> 26) & 0x1
	idx := (word >> 23) & 0x3
	return class == 0b101 && v == 0 && idx != 0b00
}

func (d *Decoder) decodeLoadStorePair(word uint32, inst *Instruction) {
	inst.Format = FormatLoadStorePair

	opc := (word >> 30) & 0x3
	idx := (word >> 23) & 0x3
	l := (word >> 22) & 0x1
	imm7 := (word >> 15) & 0x7F
	rt2 := (word >> 10) & 0x1F
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Is64Bit = opc == 0b10
	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rt2 = uint8(rt2)

	elemBytes := int64(4)
	if inst.Is64Bit {
		elemBytes = 8
	}
	simm := int64(imm7)
	if (imm7>>6)&1 == 1 {
		simm |= ^int64(0x7F)
	}
	inst.SignedImm = simm * elemBytes

	switch idx {
	case 0b01:
		inst.IndexMode = IndexPost
	case 0b11:
		inst.IndexMode = IndexPre
	default:
		inst.IndexMode = IndexUnsigned // signed offset, no writeback
	}

	if l == 1 {
		inst.Op = OpLDP
	} else {
		inst.Op = OpSTP
	}
}

// isLoadStoreReg checks for single-register LDR/STR family instructions
// (unsigned immediate offset, pre/post-indexed, unscaled, and register
// offset forms), general-purpose registers only.
func (d *Decoder) isLoadStoreReg(word uint32) bool {
	class := (word >> 24) & 0x3F // bits [29:24]
	v := (word >> 26) & 0x1
	return (class == 0b111001 || class == 0b111000) && v == 0
}

func (d *Decoder) decodeLoadStoreReg(word uint32, inst *Instruction) {
	inst.Format = FormatLoadStore

	size := (word >> 30) & 0x3
	opc := (word >> 22) & 0x3
	class := (word >> 24) & 0x3F
	rn := (word >> 5) & 0x1F
	rt := word & 0x1F

	inst.Rd = uint8(rt)
	inst.Rn = uint8(rn)

	if class == 0b111001 {
		imm12 := (word >> 10) & 0xFFF
		scale := uint64(1) << size
		inst.Imm = uint64(imm12) * scale
		inst.IndexMode = IndexUnsigned
	} else if (word>>21)&0x1 == 1 {
		rm := (word >> 16) & 0x1F
		option := (word >> 13) & 0x7
		s := (word >> 12) & 0x1

		inst.Rm = uint8(rm)
		inst.IndexMode = IndexRegBase
		inst.ShiftType = ShiftType(option) // extend type, per executeLoadStore's option switch
		if s == 1 {
			inst.ShiftAmount = uint8(size)
		}
	} else {
		imm9 := (word >> 12) & 0x1FF
		idx := (word >> 10) & 0x3
		simm := int64(imm9)
		if (imm9>>8)&1 == 1 {
			simm |= ^int64(0x1FF)
		}

		switch idx {
		case 0b01:
			inst.IndexMode = IndexPost
			inst.SignedImm = simm
		case 0b11:
			inst.IndexMode = IndexPre
			inst.SignedImm = simm
		default:
			inst.IndexMode = IndexUnsigned // LDUR-style unscaled offset
			inst.Imm = uint64(simm)
		}
	}

	switch size {
	case 0b00: // byte
		switch opc {
		case 0b00:
			inst.Op = OpSTRB
		case 0b01:
			inst.Op = OpLDRB
		case 0b10:
			inst.Op, inst.Is64Bit = OpLDRSB, true
		case 0b11:
			inst.Op = OpLDRSB
		}
	case 0b01: // halfword
		switch opc {
		case 0b00:
			inst.Op = OpSTRH
		case 0b01:
			inst.Op = OpLDRH
		case 0b10:
			inst.Op, inst.Is64Bit = OpLDRSH, true
		case 0b11:
			inst.Op = OpLDRSH
		}
	case 0b10: // word
		switch opc {
		case 0b00:
			inst.Op = OpSTR
		case 0b01:
			inst.Op = OpLDR
		case 0b10:
			inst.Op, inst.Is64Bit = OpLDRSW, true
		default:
			inst.Op = OpUnknown
		}
	case 0b11: // doubleword
		switch opc {
		case 0b00:
			inst.Op, inst.Is64Bit = OpSTR, true
		case 0b01:
			inst.Op, inst.Is64Bit = OpLDR, true
		default:
			inst.Op = OpUnknown
		}
	}
}

// isSIMDLoadStore checks for the 128-bit (Q register) unsigned-offset
// vector load/store, the only SIMD load/store form the execution units
// implement.
func (d *Decoder) isSIMDLoadStore(word uint32) bool {
	class := (word >> 24) & 0x3F
	v := (word >> 26) & 0x1
	size := (word >> 30) & 0x3
	opc1 := (word >> 23) & 0x1
	return class == 0b111001 && v == 1 && size == 0b00 && opc1 == 1
}

func (d *Decoder) decodeSIMDLoadStore(word uint32, inst *Instruction) {
	inst.Format = FormatSIMDLoadStore

	opc0 := (word >> 22) & 0x1
	imm12 := (word >> 10) & 0xFFF
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Rn = uint8(rn)
	inst.Rd = uint8(rd)
	inst.Imm = uint64(imm12) * 16 // scaled by the 16-byte transfer size

	if opc0 == 1 {
		inst.Op = OpLDRQ
	} else {
		inst.Op = OpSTRQ
	}
}

// isSIMDReg checks for Advanced SIMD three-same-register instructions
// (the integer and floating-point arithmetic subset the SIMD unit
// implements: ADD, SUB, MUL, FADD, FSUB, FMUL).
// Format: 0 Q U 01110 size 1 Rm opcode 1 Rn Rd
func (d *Decoder) isSIMDReg(word uint32) bool {
	top5 := (word >> 24) & 0x1F
	bit31 := (word >> 31) & 0x1
	bit21 := (word >> 21) & 0x1
	bit10 := (word >> 10) & 0x1
	return bit31 == 0 && top5 == 0b01110 && bit21 == 1 && bit10 == 1
}

func (d *Decoder) decodeSIMDReg(word uint32, inst *Instruction) {
	inst.Format = FormatSIMDReg

	q := (word >> 30) & 0x1
	u := (word >> 29) & 0x1
	size := (word >> 22) & 0x3
	rm := (word >> 16) & 0x1F
	opcode := (word >> 11) & 0x1F
	rn := (word >> 5) & 0x1F
	rd := word & 0x1F

	inst.Rd = uint8(rd)
	inst.Rn = uint8(rn)
	inst.Rm = uint8(rm)

	// Arrangement numbering matches emu.SIMDArrangement (Arr8B..Arr2D).
	switch {
	case q == 0 && size == 0b00:
		inst.Arrangement = 0 // Arr8B
	case q == 1 && size == 0b00:
		inst.Arrangement = 1 // Arr16B
	case q == 0 && size == 0b01:
		inst.Arrangement = 2 // Arr4H
	case q == 1 && size == 0b01:
		inst.Arrangement = 3 // Arr8H
	case q == 0 && size == 0b10:
		inst.Arrangement = 4 // Arr2S
	case q == 1 && size == 0b10:
		inst.Arrangement = 5 // Arr4S
	case q == 1 && size == 0b11:
		inst.Arrangement = 6 // Arr2D
	default:
		inst.Arrangement = 5
	}

	switch opcode {
	case 0b10000: // ADD/SUB
		if u == 0 {
			inst.Op = OpVADD
		} else {
			inst.Op = OpVSUB
		}
	case 0b10011: // MUL (integer, U=0 only)
		if u == 0 {
			inst.Op = OpVMUL
		} else {
			inst.Op = OpUnknown
		}
	case 0b11010: // FADD/FSUB
		if u == 0 {
			inst.Op = OpVFADD
		} else {
			inst.Op = OpVFSUB
		}
	case 0b11011: // FMUL (U=0 only)
		if u == 0 {
			inst.Op = OpVFMUL
		} else {
			inst.Op = OpUnknown
		}
	default:
		inst.Op = OpUnknown
	}
}

// isTestBranch checks for TBZ/TBNZ.
// Format: b5 011011 op b40 imm14 Rt
func (d *Decoder) isTestBranch(word uint32) bool {
	return (word>>25)&0x3F == 0b011011
}

func (d *Decoder) decodeTestBranch(word uint32, inst *Instruction) {
	inst.Format = FormatTestBranch

	b5 := (word >> 31) & 0x1
	op := (word >> 24) & 0x1
	b40 := (word >> 19) & 0x1F
	imm14 := (word >> 5) & 0x3FFF
	rt := word & 0x1F

	bitPos := (b5 << 5) | b40
	offset := int64(imm14)
	if (imm14>>13)&1 == 1 {
		offset |= ^int64(0x3FFF)
	}
	offset *= 4

	inst.Rd = uint8(rt) // executeTestBranch reads the tested register from Rd
	inst.Imm = uint64(bitPos)
	inst.BranchOffset = offset

	if op == 0 {
		inst.Op = OpTBZ
	} else {
		inst.Op = OpTBNZ
	}
}

// isCompareBranch checks for CBZ/CBNZ.
// Format: sf 011010 op imm19 Rt
func (d *Decoder) isCompareBranch(word uint32) bool {
	return (word>>25)&0x3F == 0b011010
}

func (d *Decoder) decodeCompareBranch(word uint32, inst *Instruction) {
	inst.Format = FormatCompareBranch

	sf := (word >> 31) & 0x1
	op := (word >> 24) & 0x1
	imm19 := (word >> 5) & 0x7FFFF
	rt := word & 0x1F

	offset := int64(imm19)
	if (imm19>>18)&1 == 1 {
		offset |= ^int64(0x7FFFF)
	}
	offset *= 4

	inst.Is64Bit = sf == 1
	inst.Rd = uint8(rt) // executeCompareBranch reads the tested register from Rd
	inst.BranchOffset = offset

	if op == 0 {
		inst.Op = OpCBZ
	} else {
		inst.Op = OpCBNZ
	}
}
