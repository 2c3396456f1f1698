package routepolicy

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/l3router/tunrouter/internal/router"
)

func TestStaticTableSeedAndLookup(t *testing.T) {
	r, err := router.New(1, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer r.Close()

	table := NewStaticTable(r, nil)
	table.Seed([]Entry{
		{Address: net.ParseIP("172.168.2.32"), Socket: 7},
	})

	socket, ok := r.ForwardingMap().Get(router.NewIPv4Key([4]byte{172, 168, 2, 32}, 0))
	require.True(t, ok)
	require.Equal(t, 7, socket)
}

func TestStaticTableSkipsNonIPv4(t *testing.T) {
	r, err := router.New(1, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer r.Close()

	table := NewStaticTable(r, nil)
	table.Seed([]Entry{
		{Address: net.ParseIP("2001:db8::1"), Socket: 9},
	})

	require.Equal(t, 0, r.ForwardingMap().Len())
}
