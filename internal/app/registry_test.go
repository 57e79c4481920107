package app

import (
	"context"
	"testing"

	"github.com/dkeye/octopresence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBindAndLookup(t *testing.T) {
	r := NewRegistry()
	web := domain.WebGroup("1")
	r.Bind("c2", web, "tok-b", nil)
	r.Bind("c1", web, "tok-a", nil)
	r.Bind("c3", domain.PrinterGroup("1"), "", nil)

	g, ok := r.GroupOf("c3")
	require.True(t, ok)
	assert.Equal(t, domain.PrinterGroup("1"), g)
	assert.Equal(t, []Session{
		{Channel: "c1", Group: "p_web.1", Client: "tok-a"},
		{Channel: "c2", Group: "p_web.1", Client: "tok-b"},
	}, r.MembersOf(web))
	assert.Equal(t, 3, r.Len())

	r.Unbind("c1")
	_, ok = r.GroupOf("c1")
	assert.False(t, ok)
	assert.Equal(t, []Session{{Channel: "c2", Group: "p_web.1", Client: "tok-b"}}, r.MembersOf(web))
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	r.Bind("a", domain.WebGroup("1"), "", cancel1)
	r.Bind("b", domain.WebGroup("1"), "", cancel2)

	assert.True(t, r.Cancel("a"))
	assert.Error(t, ctx1.Err())
	assert.NoError(t, ctx2.Err())
	assert.False(t, r.Cancel("missing"))

	assert.Equal(t, 2, r.CancelAll())
	assert.Error(t, ctx2.Err())
}
