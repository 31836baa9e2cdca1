package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/matchers/internal/ctxrecord"
	"github.com/coldbell/matchers/internal/matcher/event"
	"github.com/coldbell/matchers/internal/matcher/solver"
)

func TestRebind(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "SELECT 1", want: "SELECT 1"},
		{in: "WHERE a = ? AND b = ?", want: "WHERE a = $1 AND b = $2"},
		{in: "WHERE (? = '' OR program = ?)", want: "WHERE ($1 = '' OR program = $2)"},
		{in: "WHERE note = 'why?' AND id = ?", want: "WHERE note = 'why?' AND id = $1"},
		{in: "WHERE note = 'it''s?' AND id = ?", want: "WHERE note = 'it''s?' AND id = $1"},
		{in: `SELECT "odd?col" FROM t WHERE id = ?`, want: `SELECT "odd?col" FROM t WHERE id = $1`},
		{in: "SELECT ? -- why?\nFROM t WHERE id = ?", want: "SELECT $1 -- why?\nFROM t WHERE id = $2"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rebind(tc.in), tc.in)
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "$1, $2, $3", rebind(placeholders(3)))
}

func TestMagicRoundTrip(t *testing.T) {
	for _, magic := range []uint64{0, solver.Magic, event.Magic} {
		text := formatMagic(magic)
		require.Len(t, text, 16)
		parsed, err := parseMagic(text)
		require.NoError(t, err)
		assert.Equal(t, magic, parsed)
	}
	assert.Equal(t, "505249564d415443", formatMagic(solver.Magic))

	_, err := parseMagic("zz")
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 100, ClampLimit(0))
	assert.Equal(t, 100, ClampLimit(-3))
	assert.Equal(t, 100, ClampLimit(10_000))
	assert.Equal(t, 25, ClampLimit(25))
}

func TestRecordFields(t *testing.T) {
	data := ctxrecord.NewRecord()
	ctxrecord.Magic.Put(data, solver.Magic)

	magic, fields, err := recordFields(data)
	require.NoError(t, err)
	assert.Equal(t, solver.Magic, magic)
	require.NotEmpty(t, fields)
	assert.Equal(t, ctxrecord.ExecPrice.Name, fields[0].Name)

	magic, fields, err = recordFields(make([]byte, ctxrecord.Size))
	require.NoError(t, err)
	assert.Zero(t, magic)
	assert.Nil(t, fields)

	magic, fields, err = recordFields([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Zero(t, magic)
	assert.Nil(t, fields)
}
