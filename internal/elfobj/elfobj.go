// Package elfobj is the ELF writer collaborator named in spec.md §6: it
// accumulates section bytes and relocation records and serializes an
// ET_REL/EM_X86_64 relocatable object. Relocation-kind numbering is taken
// from the standard library's debug/elf rather than re-declared, since the
// reference pack's own ELF header file is explicit that its constants were
// lifted from "golang's debug/elf package" — that package just has no
// object *writer*, which is what this file supplies.
package elfobj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// RelocKind names the x86-64 relocation types the encoder emits.
type RelocKind = elf.R_X86_64

const (
	R_X86_64_PC32 = elf.R_X86_64_PC32
	R_X86_64_32S  = elf.R_X86_64_32S
	R_X86_64_64   = elf.R_X86_64_64
)

// Section names the three writable sections the backend appends bytes to.
type Section int

const (
	SecText Section = iota
	SecRodata
	SecData
)

// Writer is the external collaborator interface the instruction encoder
// and backend depend on.
type Writer interface {
	AppendText(b []byte) int
	AppendRodata(b []byte) int
	AppendData(b []byte) int
	AddRelocText(sym string, kind RelocKind, textOffset int, addend int64)
	TextDisplacement(sym string, fieldOffset int) int32
}

type pendingReloc struct {
	sym        string
	kind       RelocKind
	textOffset int
	addend     int64
}

// localFixup is a same-object jump/call target that TextDisplacement
// could not resolve yet because the label's block had not been encoded.
// It is patched directly into the text buffer at Finalize, before any
// ELF relocation records are built — it never becomes a .rela.text entry.
type localFixup struct {
	fieldOffset int
	sym         string
}

type symEntry struct {
	name    string
	section Section
	value   int
	size    int
	global  bool
	defined bool
	isFunc  bool
}

// Object accumulates section bytes, symbols, and relocations for one
// translation unit and serializes them as an ELF64 ET_REL object.
type Object struct {
	text   []byte
	rodata []byte
	data   []byte

	syms     map[string]*symEntry
	symOrder []string

	relocs  []pendingReloc
	fixups  []localFixup
}

// NewObject returns an empty object builder.
func NewObject() *Object {
	return &Object{syms: make(map[string]*symEntry)}
}

func (o *Object) AppendText(b []byte) int {
	off := len(o.text)
	o.text = append(o.text, b...)
	return off
}

func (o *Object) AppendRodata(b []byte) int {
	off := len(o.rodata)
	o.rodata = append(o.rodata, b...)
	return off
}

func (o *Object) AppendData(b []byte) int {
	off := len(o.data)
	o.data = append(o.data, b...)
	return off
}

// DefineSymbol records sym as defined at value within section, with the
// given size and linkage (global for extern linkage, local otherwise).
func (o *Object) DefineSymbol(name string, section Section, value, size int, global, isFunc bool) {
	o.syms[name] = &symEntry{name: name, section: section, value: value, size: size, global: global, defined: true, isFunc: isFunc}
	o.symOrder = append(o.symOrder, name)
}

// DeclareUndefined registers a name the text section references but this
// object does not define (extern linkage, resolved at link time).
func (o *Object) DeclareUndefined(name string) {
	if _, ok := o.syms[name]; ok {
		return
	}
	o.syms[name] = &symEntry{name: name, global: true, defined: false}
	o.symOrder = append(o.symOrder, name)
}

// AddRelocText registers an ELF relocation against the text section: a
// cross-symbol reference the linker must patch at link time.
func (o *Object) AddRelocText(sym string, kind RelocKind, textOffset int, addend int64) {
	o.DeclareUndefinedIfMissing(sym)
	o.relocs = append(o.relocs, pendingReloc{sym: sym, kind: kind, textOffset: textOffset, addend: addend})
}

// DeclareUndefinedIfMissing is AddRelocText's helper: a relocation against
// a symbol this object itself defines (e.g. a recursive call, or a forward
// jump label already emitted as a function) does not need a forward
// placeholder; only genuinely unknown names get one.
func (o *Object) DeclareUndefinedIfMissing(sym string) {
	if _, ok := o.syms[sym]; ok {
		return
	}
	o.DeclareUndefined(sym)
}

// TextDisplacement returns the signed 32-bit displacement a rel32 field
// starting at fieldOffset (text-section-relative) should hold to reach
// sym, using the standard x86 convention that the reference point is the
// address just past the 4-byte field itself (fieldOffset+4, the value RIP
// holds once the field has been read). If sym is not yet defined, it
// registers a local fixup patched once the whole object's symbols are
// known (a same-object forward jump, not an ELF relocation) and returns 0.
func (o *Object) TextDisplacement(sym string, fieldOffset int) int32 {
	if s, ok := o.syms[sym]; ok && s.defined && s.section == SecText {
		return int32(s.value - (fieldOffset + 4))
	}
	o.fixups = append(o.fixups, localFixup{fieldOffset: fieldOffset, sym: sym})
	return 0
}

// Finalize patches every local fixup now that all symbols are defined,
// after the whole translation unit has been encoded. Bytes calls it
// itself before serializing.
func (o *Object) Finalize() error {
	for _, f := range o.fixups {
		s, ok := o.syms[f.sym]
		if !ok || !s.defined {
			return errors.Errorf("elfobj: unresolved local jump target %q", f.sym)
		}
		disp := int32(s.value - (f.fieldOffset + 4))
		binary.LittleEndian.PutUint32(o.text[f.fieldOffset:], uint32(disp))
	}
	o.fixups = nil
	return nil
}

const (
	elfHeaderSize  = 64
	shdrEntrySize  = 64
	symEntrySize   = 24
	relaEntrySize  = 24
)

// Bytes serializes the accumulated sections as an ELF64 ET_REL/EM_X86_64
// object: .text, .rodata, .data, .rela.text, .symtab, .strtab, .shstrtab,
// plus the section header table. Section order and the null/section-0
// entries follow the conventional GNU binutils-compatible layout.
func (o *Object) Bytes() ([]byte, error) {
	if err := o.Finalize(); err != nil {
		return nil, err
	}

	// Section indices: 0 null, 1 .text, 2 .rodata, 3 .data, 4 .rela.text,
	// 5 .symtab, 6 .strtab, 7 .shstrtab.
	const (
		shText = 1
		shRoda = 2
		shData = 3
		shRela = 4
		shSym  = 5
		shStr  = 6
		shSh   = 7
		nSect  = 8
	)

	// --- .strtab and symbol ordering: local symbols must precede global
	// ones and symtab's sh_info records the index of the first global.
	var strtab bytes.Buffer
	strtab.WriteByte(0)
	nameOff := func(s string) uint32 {
		off := uint32(strtab.Len())
		strtab.WriteString(s)
		strtab.WriteByte(0)
		return off
	}

	names := append([]string{}, o.symOrder...)
	sort.SliceStable(names, func(i, j int) bool {
		return !o.syms[names[i]].global && o.syms[names[j]].global
	})

	var symtab bytes.Buffer
	symtab.Write(make([]byte, symEntrySize)) // null symbol
	firstGlobal := 1
	symIndex := make(map[string]int)
	for i, n := range names {
		s := o.syms[n]
		idx := i + 1
		symIndex[n] = idx
		if !s.global && firstGlobal == idx {
			firstGlobal = idx + 1
		}
		var shndx uint16
		switch {
		case !s.defined:
			shndx = uint16(elf.SHN_UNDEF)
		case s.section == SecText:
			shndx = shText
		case s.section == SecRodata:
			shndx = shRoda
		case s.section == SecData:
			shndx = shData
		}
		bind := elf.STB_LOCAL
		if s.global {
			bind = elf.STB_GLOBAL
		}
		typ := elf.STT_OBJECT
		if s.isFunc {
			typ = elf.STT_FUNC
		}
		var ent [symEntrySize]byte
		binary.LittleEndian.PutUint32(ent[0:], nameOff(n))
		ent[4] = byte(bind)<<4 | byte(typ)
		binary.LittleEndian.PutUint16(ent[6:], shndx)
		binary.LittleEndian.PutUint64(ent[8:], uint64(s.value))
		binary.LittleEndian.PutUint64(ent[16:], uint64(s.size))
		symtab.Write(ent[:])
	}

	// --- .rela.text
	var relatab bytes.Buffer
	for _, r := range o.relocs {
		idx, ok := symIndex[r.sym]
		if !ok {
			return nil, errors.Errorf("elfobj: relocation against unknown symbol %q", r.sym)
		}
		var ent [relaEntrySize]byte
		binary.LittleEndian.PutUint64(ent[0:], uint64(r.textOffset))
		info := uint64(idx)<<32 | uint64(r.kind)
		binary.LittleEndian.PutUint64(ent[8:], info)
		binary.LittleEndian.PutUint64(ent[16:], uint64(r.addend))
		relatab.Write(ent[:])
	}

	// --- .shstrtab
	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	shName := func(s string) uint32 {
		off := uint32(shstrtab.Len())
		shstrtab.WriteString(s)
		shstrtab.WriteByte(0)
		return off
	}
	nameText := shName(".text")
	nameRoda := shName(".rodata")
	nameData := shName(".data")
	nameRela := shName(".rela.text")
	nameSym := shName(".symtab")
	nameStr := shName(".strtab")
	nameSh := shName(".shstrtab")

	// --- layout file offsets
	off := elfHeaderSize
	textOff := off
	off += len(o.text)
	rodaOff := align8(off)
	off = rodaOff + len(o.rodata)
	dataOff := align8(off)
	off = dataOff + len(o.data)
	relaOff := align8(off)
	off = relaOff + relatab.Len()
	symOff := off
	off += symtab.Len()
	strOff := off
	off += strtab.Len()
	shstrOff := off
	off += shstrtab.Len()
	shoff := align8(off)

	buf := make([]byte, shoff+nSect*shdrEntrySize)

	// ELF64 header
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(buf[16:], uint16(elf.ET_REL))
	binary.LittleEndian.PutUint16(buf[18:], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(buf[20:], 1) // e_version
	binary.LittleEndian.PutUint16(buf[52:], elfHeaderSize) // e_ehsize
	binary.LittleEndian.PutUint16(buf[58:], shdrEntrySize) // e_shentsize
	binary.LittleEndian.PutUint16(buf[60:], nSect)         // e_shnum
	binary.LittleEndian.PutUint16(buf[62:], shSh)          // e_shstrndx
	binary.LittleEndian.PutUint64(buf[40:], uint64(shoff)) // e_shoff

	copy(buf[textOff:], o.text)
	copy(buf[rodaOff:], o.rodata)
	copy(buf[dataOff:], o.data)
	copy(buf[relaOff:], relatab.Bytes())
	copy(buf[symOff:], symtab.Bytes())
	copy(buf[strOff:], strtab.Bytes())
	copy(buf[shstrOff:], shstrtab.Bytes())

	writeShdr := func(idx int, name uint32, typ elf.SectionType, flags uint64, offset, size, link, info, addralign, entsize uint64) {
		base := shoff + idx*shdrEntrySize
		binary.LittleEndian.PutUint32(buf[base:], name)
		binary.LittleEndian.PutUint32(buf[base+4:], uint32(typ))
		binary.LittleEndian.PutUint64(buf[base+8:], flags)
		binary.LittleEndian.PutUint64(buf[base+24:], offset)
		binary.LittleEndian.PutUint64(buf[base+32:], size)
		binary.LittleEndian.PutUint32(buf[base+40:], uint32(link))
		binary.LittleEndian.PutUint32(buf[base+44:], uint32(info))
		binary.LittleEndian.PutUint64(buf[base+48:], addralign)
		binary.LittleEndian.PutUint64(buf[base+56:], entsize)
	}

	const (
		SHF_ALLOC     = 0x2
		SHF_EXECINSTR = 0x4
		SHF_WRITE     = 0x1
		SHF_INFO_LINK = 0x40
	)

	writeShdr(shText, nameText, elf.SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, uint64(textOff), uint64(len(o.text)), 0, 0, 16, 0)
	writeShdr(shRoda, nameRoda, elf.SHT_PROGBITS, SHF_ALLOC, uint64(rodaOff), uint64(len(o.rodata)), 0, 0, 8, 0)
	writeShdr(shData, nameData, elf.SHT_PROGBITS, SHF_ALLOC|SHF_WRITE, uint64(dataOff), uint64(len(o.data)), 0, 0, 8, 0)
	writeShdr(shRela, nameRela, elf.SHT_RELA, SHF_INFO_LINK, uint64(relaOff), uint64(relatab.Len()), shSym, shText, 8, relaEntrySize)
	writeShdr(shSym, nameSym, elf.SHT_SYMTAB, 0, uint64(symOff), uint64(symtab.Len()), shStr, uint64(firstGlobal), 8, symEntrySize)
	writeShdr(shStr, nameStr, elf.SHT_STRTAB, 0, uint64(strOff), uint64(strtab.Len()), 0, 0, 1, 0)
	writeShdr(shSh, nameSh, elf.SHT_STRTAB, 0, uint64(shstrOff), uint64(shstrtab.Len()), 0, 0, 1, 0)

	return buf, nil
}

func align8(n int) int {
	return (n + 7) &^ 7
}
