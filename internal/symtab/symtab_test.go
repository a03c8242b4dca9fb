package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesLinus/c-compiler/internal/types"
)

func TestScopedShadowing(t *testing.T) {
	ta := types.NewArena()
	intType := ta.Init(types.TY_SIGNED, 4)

	tab := NewTable("id")
	outer := tab.Add(&Symbol{Name: "x", Kind: DECLARATION, Type: intType})
	assert.Equal(t, 0, outer.Depth)

	tab.PushScope()
	inner := tab.Add(&Symbol{Name: "x", Kind: DECLARATION, Type: intType})
	assert.Equal(t, 1, inner.Depth)
	assert.Same(t, inner, tab.Lookup("x"))
	tab.PopScope()

	assert.Same(t, outer, tab.Lookup("x"))
}

func TestLookupMostRecentAcrossScopes(t *testing.T) {
	tab := NewTable("id")
	a := tab.Add(&Symbol{Name: "y"})
	tab.PushScope()
	assert.Same(t, a, tab.Lookup("y"))
	b := tab.Add(&Symbol{Name: "y"})
	assert.Same(t, b, tab.Lookup("y"))
}

func TestCreateTmpAndLabelAreFresh(t *testing.T) {
	tab := NewTable("t")
	t1 := tab.CreateTmp(nil)
	t2 := tab.CreateTmp(nil)
	require.NotEqual(t, t1.Name, t2.Name)
	assert.Equal(t, TEMPORARY, t1.Kind)

	l1 := tab.CreateLabel()
	l2 := tab.CreateLabel()
	assert.NotEqual(t, l1, l2)
}

func TestLookupCurrentScopeOnly(t *testing.T) {
	tab := NewTable("id")
	tab.Add(&Symbol{Name: "z"})
	tab.PushScope()
	assert.Nil(t, tab.LookupCurrentScope("z"))
	assert.NotNil(t, tab.Lookup("z"))
}
