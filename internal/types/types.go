// Package types builds and introspects the type graph: integers, reals,
// pointers, arrays, struct/union aggregates, function signatures, and
// tagged struct/union aliases.
package types

import "fmt"

// Kind identifies the shape of a type node.
type Kind int

const (
	TY_VOID Kind = iota
	TY_SIGNED
	TY_UNSIGNED
	TY_REAL
	TY_POINTER
	TY_ARRAY
	TY_STRUCT
	TY_UNION
	TY_FUNCTION
)

func (k Kind) String() string {
	switch k {
	case TY_VOID:
		return "void"
	case TY_SIGNED:
		return "signed"
	case TY_UNSIGNED:
		return "unsigned"
	case TY_REAL:
		return "real"
	case TY_POINTER:
		return "pointer"
	case TY_ARRAY:
		return "array"
	case TY_STRUCT:
		return "struct"
	case TY_UNION:
		return "union"
	case TY_FUNCTION:
		return "function"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Qualifier is a bitset of cv-qualifiers.
type Qualifier uint8

const (
	QUAL_CONST Qualifier = 1 << iota
	QUAL_VOLATILE
)

// Member describes one field of a struct/union, or one parameter of a
// function type. Offset is only meaningful for struct/union members.
type Member struct {
	Name   string
	Type   *Type
	Offset int
}

// Type is a node in the type graph. Tagged nodes (TagName != "") are
// lightweight aliases: Next points at the defining struct/union node, they
// own no members of their own, and they exist only so that a use site can
// carry its own Qualifier without mutating the shared definition.
type Type struct {
	Kind      Kind
	Size      int
	Qualifier Qualifier
	Next      *Type // element type (array/pointer), return type (function), or definition (tagged)
	Members   []Member
	TagName   string // non-empty iff this node is a tagged alias
	Variadic  bool   // function types only: trailing "..." present
	Unsigned  bool   // valid when Kind == TY_SIGNED is false and integer-like; see Kind
	ArrayLen  int    // array element count; 0 for incomplete arrays
}

// Arena bump-allocates Type nodes for one compilation. Its only release is
// a single bulk free when the compilation ends, mirroring the teacher's
// generation-exit cleanup rather than per-node bookkeeping.
type Arena struct {
	nodes []*Type
}

// NewArena returns an empty, ready-to-use type arena.
func NewArena() *Arena {
	return &Arena{}
}

// Release drops every node allocated from the arena. Nothing touches the
// nodes afterward; this is a bulk free, not a GC pass.
func (a *Arena) Release() {
	a.nodes = nil
}

func (a *Arena) alloc(t *Type) *Type {
	a.nodes = append(a.nodes, t)
	return t
}

// Init allocates a fresh node of the given kind, setting only Kind and
// Size; Next is left nil. Size means, by kind:
//   - TY_SIGNED / TY_UNSIGNED: the integer width in bytes (1,2,4,8).
//   - TY_REAL: 4 (float) or 8 (double).
//   - TY_STRUCT / TY_UNION: members accumulate afterward via AddMember.
//   - TY_FUNCTION: the caller sets Next to the return type; params
//     accumulate via AddMember.
//
// Pointer and array nodes come from InitPointer and InitArray instead.
func (a *Arena) Init(kind Kind, size int) *Type {
	return a.alloc(&Type{Kind: kind, Size: size})
}

// InitPointer allocates a pointer-to-next node.
func (a *Arena) InitPointer(next *Type) *Type {
	return a.alloc(&Type{Kind: TY_POINTER, Size: 8, Next: next})
}

// InitArray allocates an array-of-next node with the given element count.
// A count of zero denotes an incomplete array; Size is zero until the
// count is known (SetArrayLen completes it later for `int a[] = {...}`).
func (a *Arena) InitArray(next *Type, count int) *Type {
	t := &Type{Kind: TY_ARRAY, Next: next, ArrayLen: count}
	if count > 0 {
		t.Size = count * next.Size
	}
	return a.alloc(t)
}

// SetArrayLen completes an incomplete array's element count and size, used
// when `int a[] = {1,2,3}` rewrites the symbol's type after the initializer
// is parsed.
func (t *Type) SetArrayLen(count int) {
	t.ArrayLen = count
	t.Size = count * t.Next.Size
}

// TaggedCopy creates a non-owning alias node naming tag, whose Next points
// at def (the struct/union definition). Tagged nodes never carry members of
// their own; Unwrap dereferences through them for any structural query.
func (a *Arena) TaggedCopy(def *Type, tag string) *Type {
	return a.alloc(&Type{Kind: def.Kind, Next: def, TagName: tag})
}

// AddMember records one struct/union field or function parameter.
//
// Functions: a name equal to VariadicName sets Variadic and returns without
// appending a member; array parameters decay to pointer-to-element.
//
// Structs: each call re-lays the whole member list out left to right,
// padding the running offset up to each member's alignment, then rounds
// the struct's total Size up to the strongest member's alignment.
//
// Unions: Size becomes max(Size, SizeOf(memberType)); offsets stay zero.
func (t *Type) AddMember(name string, memberType *Type) {
	switch t.Kind {
	case TY_FUNCTION:
		if name == VariadicName {
			t.Variadic = true
			return
		}
		if memberType.Kind == TY_ARRAY {
			memberType = &Type{Kind: TY_POINTER, Size: 8, Next: memberType.Next}
		}
		t.Members = append(t.Members, Member{Name: name, Type: memberType})
	case TY_STRUCT:
		t.Members = append(t.Members, Member{Name: name, Type: memberType})
		relayoutStruct(t)
	case TY_UNION:
		t.Members = append(t.Members, Member{Name: name, Type: memberType})
		sz := SizeOf(memberType)
		if sz > t.Size {
			t.Size = sz
		}
	default:
		panic(fmt.Sprintf("types: AddMember on non-aggregate kind %s", t.Kind))
	}
}

// VariadicName is the sentinel member name AddMember recognizes as "...".
const VariadicName = "..."

// relayoutStruct scans t.Members left to right, padding the running offset
// up to each member's alignment, assigning Offset, and accumulating Size;
// after the last field, Size is rounded up to the struct's own alignment.
func relayoutStruct(t *Type) {
	offset := 0
	maxAlign := 1
	for i := range t.Members {
		m := &t.Members[i]
		align := Alignment(m.Type)
		if align > maxAlign {
			maxAlign = align
		}
		offset = padTo(offset, align)
		m.Offset = offset
		offset += SizeOf(m.Type)
	}
	t.Size = padTo(offset, maxAlign)
}

func padTo(offset, align int) int {
	if align <= 1 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// Unwrap returns t.Next if t is a tagged alias, else t itself. Every
// structural query that must see members unwraps first.
func Unwrap(t *Type) *Type {
	if t != nil && t.TagName != "" {
		return t.Next
	}
	return t
}

// SizeOf dereferences through a tag and returns the node's byte size.
func SizeOf(t *Type) int {
	return Unwrap(t).Size
}

// Alignment returns element alignment for arrays, the maximum member
// alignment for aggregates, and Size for scalars. Aggregates with at least
// one member always report a non-zero alignment.
func Alignment(t *Type) int {
	u := Unwrap(t)
	switch u.Kind {
	case TY_ARRAY:
		return Alignment(u.Next)
	case TY_STRUCT, TY_UNION:
		max := 1
		for _, m := range u.Members {
			if a := Alignment(m.Type); a > max {
				max = a
			}
		}
		return max
	default:
		return u.Size
	}
}

// NMembers returns the member count, unwrapping tags first.
func NMembers(t *Type) int {
	return len(Unwrap(t).Members)
}

// GetMember looks up a member by name, unwrapping tags first. Returns nil
// if not found.
func GetMember(t *Type, name string) *Member {
	u := Unwrap(t)
	for i := range u.Members {
		if u.Members[i].Name == name {
			return &u.Members[i]
		}
	}
	return nil
}

// IsVararg reports whether a function type accepts a variadic tail,
// unwrapping tags first.
func IsVararg(t *Type) bool {
	return Unwrap(t).Variadic
}

// IsComplete reports whether t has a known size: incomplete arrays
// (ArrayLen == 0) and forward-declared struct/union tags with no members
// are incomplete.
func IsComplete(t *Type) bool {
	u := Unwrap(t)
	if u.Kind == TY_ARRAY {
		return u.ArrayLen > 0
	}
	if u.Kind == TY_STRUCT || u.Kind == TY_UNION {
		return u.Size > 0 || len(u.Members) > 0
	}
	return true
}

// IsInteger reports whether t's unwrapped kind is signed or unsigned.
func IsInteger(t *Type) bool {
	k := Unwrap(t).Kind
	return k == TY_SIGNED || k == TY_UNSIGNED
}

// IsScalar reports whether t is an integer, real, or pointer type.
func IsScalar(t *Type) bool {
	k := Unwrap(t).Kind
	return k == TY_SIGNED || k == TY_UNSIGNED || k == TY_REAL || k == TY_POINTER
}

// IsAggregate reports whether t's unwrapped kind is struct or union.
func IsAggregate(t *Type) bool {
	k := Unwrap(t).Kind
	return k == TY_STRUCT || k == TY_UNION
}

// Equal ignores qualifiers and parameter names. Tagged pairs compare by
// Next identity; otherwise kind, size, member count, and signedness are
// compared, then Next and each member recursively (member names matter
// only for struct/union).
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.TagName != "" && b.TagName != "" {
		return a.Next == b.Next
	}
	au, bu := Unwrap(a), Unwrap(b)
	if au == bu {
		return true
	}
	if au.Kind != bu.Kind {
		return false
	}
	if au.Kind == TY_SIGNED || au.Kind == TY_UNSIGNED {
		return au.Size == bu.Size
	}
	if au.Kind == TY_REAL {
		return au.Size == bu.Size
	}
	if len(au.Members) != len(bu.Members) {
		return false
	}
	switch au.Kind {
	case TY_POINTER, TY_ARRAY:
		if au.Kind == TY_ARRAY && au.ArrayLen != bu.ArrayLen {
			return false
		}
		return Equal(au.Next, bu.Next)
	case TY_FUNCTION:
		if au.Variadic != bu.Variadic {
			return false
		}
		if !Equal(au.Next, bu.Next) {
			return false
		}
		for i := range au.Members {
			if !Equal(au.Members[i].Type, bu.Members[i].Type) {
				return false
			}
		}
		return true
	case TY_STRUCT, TY_UNION:
		for i := range au.Members {
			if au.Members[i].Name != bu.Members[i].Name {
				return false
			}
			if !Equal(au.Members[i].Type, bu.Members[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// IsCompatible is an alias for Equal: C89 type compatibility, as implemented
// here, coincides with structural equality once qualifiers are ignored.
func IsCompatible(a, b *Type) bool {
	return Equal(a, b)
}

// PromoteInteger returns intType when SizeOf(t) < 4 (int holds every value
// of the narrower signed and unsigned types), else t unchanged. Callers
// that need a qualifier-stripped copy do so themselves; PromoteInteger
// never allocates.
func PromoteInteger(t *Type, intType, unsignedIntType *Type) *Type {
	if SizeOf(t) >= 4 {
		return t
	}
	return intType
}

// UsualArithmeticConversion integer-promotes both operands, then returns
// the wider type; ties favor the unsigned operand. Floating types are not
// handled here (see spec Non-goals: floating-point codegen).
func UsualArithmeticConversion(a, b *Type, intType, unsignedIntType *Type) *Type {
	pa := PromoteInteger(a, intType, unsignedIntType)
	pb := PromoteInteger(b, intType, unsignedIntType)
	sa, sb := SizeOf(pa), SizeOf(pb)
	if sa > sb {
		return pa
	}
	if sb > sa {
		return pb
	}
	if Unwrap(pa).Kind == TY_UNSIGNED {
		return pa
	}
	return pb
}
