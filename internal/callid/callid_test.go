package callid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smthngslv/mycelia/internal/callid"
)

func TestBuilder_SameInputsSameID(t *testing.T) {
	ref := callid.NodeRef{GraphID: "g", Node: "add"}

	build := func() callid.ID {
		b := callid.NewBuilder(ref)
		b.AddLiteral([]byte("1"))
		b.AddLiteral([]byte("2"))
		b.EndArgs()
		return b.Sum()
	}

	assert.Equal(t, build(), build())
}

func TestBuilder_DifferentArgsDifferentID(t *testing.T) {
	ref := callid.NodeRef{GraphID: "g", Node: "add"}

	b1 := callid.NewBuilder(ref)
	b1.AddLiteral([]byte("1"))
	b1.EndArgs()
	id1 := b1.Sum()

	b2 := callid.NewBuilder(ref)
	b2.AddLiteral([]byte("2"))
	b2.EndArgs()
	id2 := b2.Sum()

	assert.NotEqual(t, id1, id2)
}

func TestBuilder_RefVsLiteralDoNotCollide(t *testing.T) {
	ref := callid.NodeRef{GraphID: "g", Node: "f"}
	var childID callid.ID
	childID[0] = 0xAB

	b1 := callid.NewBuilder(ref)
	b1.AddRef(childID)
	b1.EndArgs()
	id1 := b1.Sum()

	b2 := callid.NewBuilder(ref)
	b2.AddLiteral(childID[:])
	b2.EndArgs()
	id2 := b2.Sum()

	assert.NotEqual(t, id1, id2)
}

func TestBuilder_ArgsVsKwargsBoundaryMatters(t *testing.T) {
	ref := callid.NodeRef{GraphID: "g", Node: "f"}

	// args=[a], kwargs={x: b}
	b1 := callid.NewBuilder(ref)
	b1.AddLiteral([]byte("a"))
	b1.EndArgs()
	b1.AddLiteral([]byte("x"))
	b1.AddLiteral([]byte("b"))
	id1 := b1.Sum()

	// args=[a, x, b] (no EndArgs boundary before the rest)
	b2 := callid.NewBuilder(ref)
	b2.AddLiteral([]byte("a"))
	b2.AddLiteral([]byte("x"))
	b2.AddLiteral([]byte("b"))
	id2 := b2.Sum()

	assert.NotEqual(t, id1, id2)
}

func TestID_StringAndZero(t *testing.T) {
	var id callid.ID
	assert.True(t, id.Zero())
	assert.Len(t, id.String(), 64)

	id[0] = 1
	assert.False(t, id.Zero())
}

func TestNodeRef_String(t *testing.T) {
	ref := callid.NodeRef{GraphID: "g", Node: "f"}
	assert.Equal(t, "g/f", ref.String())
}
