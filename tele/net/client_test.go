package telenet_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/schema"
	telenet "github.com/temoto/udpinsert/tele/net"
)

// Plain socket in place of server, checks exact bytes on the wire.
func mockServerPacket(t testing.TB) (net.PacketConn, string) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	return pc, "udp://" + pc.LocalAddr().String()
}

func TestClientSendWire(t *testing.T) {
	t.Parallel()
	pc, url := mockServerPacket(t)
	defer pc.Close()

	cli, err := telenet.NewClient(&telenet.ClientOptions{
		Log:       log2.NewTest(t, log2.LDebug),
		PacketURL: url,
		Now:       testNow,
	})
	require.NoError(t, err)
	defer cli.Close()
	_, err = cli.Send(context.Background(), testSchemaTemp(t), schema.Data{"temp": {"c": 235}}, 123)
	require.NoError(t, err)

	buf := make([]byte, 64)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1, 0, 123, 0, 235, 0x71, 0x82, 0xc2, 0x07, 0x5e, 0xe1}, buf[:n])
}

func TestClientEncodeError(t *testing.T) {
	t.Parallel()
	url := "udp://127.0.0.1:9"
	cli, err := telenet.NewClient(&telenet.ClientOptions{PacketURL: url})
	require.NoError(t, err)
	defer cli.Close()
	_, err = cli.Send(context.Background(), testSchemaTemp(t), schema.Data{}, 1)
	require.Error(t, err)
	assert.Equal(t, int64(1), cli.Stat().Error.Value())
	assert.Equal(t, int64(0), cli.Stat().Send.Count.Value())
}

func TestClientInvalidURL(t *testing.T) {
	t.Parallel()
	_, err := telenet.NewClient(&telenet.ClientOptions{PacketURL: "tcp://127.0.0.1:1"})
	require.Error(t, err)
}

func TestClientNextNonce(t *testing.T) {
	t.Parallel()
	cli, err := telenet.NewClient(&telenet.ClientOptions{PacketURL: "udp://127.0.0.1:9"})
	require.NoError(t, err)
	defer cli.Close()
	prev := cli.NextNonce()
	for i := 0; i < 0x20000; i++ {
		n := cli.NextNonce()
		require.NotEqual(t, uint16(0), n)
		if prev != 0xffff {
			require.Equal(t, prev+1, n)
		}
		prev = n
	}
}

func TestSendOneShot(t *testing.T) {
	t.Parallel()
	pc, url := mockServerPacket(t)
	defer pc.Close()
	m, err := telenet.Send(context.Background(), url, testSchemaTemp(t), schema.Data{"temp": {"c": 7}}, 9)
	require.NoError(t, err)
	assert.Equal(t, uint16(9), m.Nonce)

	buf := make([]byte, 64)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
}
