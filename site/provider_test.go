package site

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/speechcore/capability"
)

type clock interface {
	Now() int
}

var clockName = capability.Define[clock]("test.Clock")

type fixedClock struct {
	now       int
	destroyed *int
}

func (c *fixedClock) Now() int { return c.now }

func (c *fixedClock) Destroy() {
	if c.destroyed != nil {
		*c.destroyed++
	}
}

func TestServiceRegistry_AddAndQuery(t *testing.T) {
	r := NewServiceRegistry()
	defer r.Close()

	svc := capability.New[any](&fixedClock{now: 7})
	r.AddService(clockName, svc)
	svc.Release()

	h, ok := r.QueryService(clockName)
	require.True(t, ok)
	assert.Equal(t, 7, h.Get().(clock).Now())
	h.Release()

	_, ok = r.QueryService("unknown")
	assert.False(t, ok)
	assert.Equal(t, []capability.Name{clockName}, r.Services())
}

func TestServiceRegistry_ReplaceReleasesPrevious(t *testing.T) {
	r := NewServiceRegistry()
	destroyed := 0

	first := capability.New[any](&fixedClock{now: 1, destroyed: &destroyed})
	r.AddService(clockName, first)
	first.Release()
	assert.Equal(t, 0, destroyed)

	second := capability.New[any](&fixedClock{now: 2, destroyed: &destroyed})
	r.AddService(clockName, second)
	second.Release()
	assert.Equal(t, 1, destroyed)

	h, ok := QueryService[clock](r)
	require.True(t, ok)
	assert.Equal(t, 2, h.Get().Now())
	h.Release()

	r.Close()
	assert.Equal(t, 2, destroyed)
	_, ok = r.QueryService(clockName)
	assert.False(t, ok)
}

func TestServiceRegistry_RemoveService(t *testing.T) {
	r := NewServiceRegistry()
	defer r.Close()

	svc := capability.New[clock](&fixedClock{})
	require.NoError(t, AddService(r, svc))
	svc.Release()

	assert.True(t, r.RemoveService(clockName))
	assert.False(t, r.RemoveService(clockName))
}

func TestServiceRegistry_ParentDelegation(t *testing.T) {
	root := NewServiceRegistry()
	rootHandle := capability.New[any](root)

	svc := capability.New[clock](&fixedClock{now: 42})
	require.NoError(t, AddService(root, svc))
	svc.Release()

	child := NewServiceRegistry()
	defer child.Close()
	child.SetParent(rootHandle.Weak())

	h, ok := QueryService[clock](child)
	require.True(t, ok)
	assert.Equal(t, 42, h.Get().Now())
	h.Release()

	// Local entries shadow the parent.
	local := capability.New[clock](&fixedClock{now: 1})
	require.NoError(t, AddService(child, local))
	local.Release()
	h, ok = QueryService[clock](child)
	require.True(t, ok)
	assert.Equal(t, 1, h.Get().Now())
	h.Release()
	require.True(t, child.RemoveService(clockName))

	// A destroyed parent ends the lookup.
	rootHandle.Release()
	_, ok = child.QueryService(clockName)
	assert.False(t, ok)
	root.Close()
}

func TestServiceRegistry_ParentCycle(t *testing.T) {
	a, b := NewServiceRegistry(), NewServiceRegistry()
	ah, bh := capability.New[any](a), capability.New[any](b)
	defer ah.Release()
	defer bh.Release()

	a.SetParent(bh.Weak())
	b.SetParent(ah.Weak())

	_, ok := a.QueryService(clockName)
	assert.False(t, ok)
	_, ok = b.QueryService(clockName)
	assert.False(t, ok)

	svc := capability.New[clock](&fixedClock{now: 9})
	require.NoError(t, AddService(b, svc))
	svc.Release()

	h, ok := QueryService[clock](a)
	require.True(t, ok)
	assert.Equal(t, 9, h.Get().Now())
	h.Release()

	self := NewServiceRegistry()
	sh := capability.New[any](self)
	defer sh.Release()
	self.SetParent(sh.Weak())
	_, ok = self.QueryService(clockName)
	assert.False(t, ok)
}

func TestServiceRegistry_Capabilities(t *testing.T) {
	r := NewServiceRegistry()
	sp, ok := capability.Query[ServiceProvider](r)
	require.True(t, ok)
	assert.Same(t, r, sp.(*ServiceRegistry))
	assert.True(t, capability.Supports[ServiceRegistrar](r))
}

func TestServiceFrom(t *testing.T) {
	r := NewServiceRegistry()
	defer r.Close()
	svc := capability.New[clock](&fixedClock{now: 3})
	require.NoError(t, AddService(r, svc))
	svc.Release()

	h, ok := ServiceFrom[clock](r)
	require.True(t, ok)
	assert.Equal(t, 3, h.Get().Now())
	h.Release()

	_, ok = ServiceFrom[clock](struct{}{})
	assert.False(t, ok)
}

func TestAddService_AbsentHandle(t *testing.T) {
	r := NewServiceRegistry()
	assert.Error(t, AddService(r, capability.Handle[clock]{}))
}

func TestServiceRegistry_ConcurrentAccess(t *testing.T) {
	r := NewServiceRegistry()
	defer r.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h := capability.New[any](&fixedClock{now: i})
			r.AddService(capability.Name(fmt.Sprintf("svc-%d", i)), h)
			h.Release()
		}(i)
		go func(i int) {
			defer wg.Done()
			if h, ok := r.QueryService(capability.Name(fmt.Sprintf("svc-%d", i))); ok {
				h.Release()
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, r.Services(), 10)
}
