package di

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	name  string
	order *[]string
	err   error
}

func (c *closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestContainer_FactoryBuiltOnce(t *testing.T) {
	c := NewContainer()
	calls := 0
	token := NewToken[*int]("counter")
	RegisterToken(c, token, func(ServiceRegistry) *int {
		calls++
		v := 42
		return &v
	})

	first := GetToken(c, token)
	second := GetToken(c, token)

	assert.Equal(t, 1, calls)
	assert.Same(t, first, second)
	assert.Equal(t, 42, *first)
}

func TestContainer_FactoryResolvesDependencies(t *testing.T) {
	c := NewContainer()
	c.Register("prefix", "chain")
	token := NewToken[string]("name")
	RegisterToken(c, token, func(sr ServiceRegistry) string {
		return sr.Get("prefix").(string) + "sync"
	})

	assert.Equal(t, "chainsync", GetToken(c, token))
}

func TestContainer_UnknownServicePanics(t *testing.T) {
	c := NewContainer()
	assert.Panics(t, func() { c.Get("missing") })
}

func TestContainer_CloseReverseOrder(t *testing.T) {
	c := NewContainer()
	var order []string
	boom := errors.New("boom")

	c.RegisterFactory("first", func(ServiceRegistry) any {
		return &closeRecorder{name: "first", order: &order}
	})
	c.RegisterFactory("second", func(ServiceRegistry) any {
		return &closeRecorder{name: "second", order: &order, err: boom}
	})
	c.Register("plain", &closeRecorder{name: "plain", order: &order})

	c.Get("first")
	c.Get("second")

	err := c.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"second", "first"}, order)
}
