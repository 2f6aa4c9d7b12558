package main

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gtu-nova/mavsign/dialect"
	"github.com/gtu-nova/mavsign/mavlink"
)

func commandLong(t *testing.T) *mavlink.MessageDefinition {
	t.Helper()
	def, ok := dialect.Default().ByName("command_long")
	require.True(t, ok)
	return def
}

func TestParseValuesSequenceAndMapping(t *testing.T) {
	def := commandLong(t)
	want, err := mavlink.NewMessage(def, dialect.DoSetMode(1, dialect.BaseModeArmedCustom, dialect.CopterModeLand).Values()...)
	require.NoError(t, err)

	for _, text := range []string{
		"[217, 9, 0, 0, 0, 0, 0, 176, 1, 0, 0]",
		"{param1: 217.0, param2: 9, command: 176, target_system: 1}",
		"PARAM1: 0xd9\nparam2: 9\ncommand: 176\ntarget_system: 1\n",
	} {
		vals, err := parseValues(def, text)
		require.NoError(t, err, text)
		msg, err := mavlink.NewMessage(def, vals...)
		require.NoError(t, err, text)
		require.Equal(t, want.Payload(), msg.Payload(), text)
	}
}

func TestParseValuesErrors(t *testing.T) {
	def := commandLong(t)
	for _, text := range []string{"", "217", "{nope: 1}", "[1, 2"} {
		_, err := parseValues(def, text)
		require.Error(t, err, text)
	}

	// Arity is checked when the message is built.
	vals, err := parseValues(def, "[1, 2]")
	require.NoError(t, err)
	_, err = mavlink.NewMessage(def, vals...)
	require.ErrorIs(t, err, mavlink.ErrFieldCountMismatch)
}

func TestParseValuesArrays(t *testing.T) {
	def, err := mavlink.NewMessageDefinition("TEXT", 253, 83,
		mavlink.Field{Name: "severity", Type: mavlink.Uint8},
		mavlink.Field{Name: "text", Type: mavlink.Char, ArrayLen: 8},
		mavlink.Field{Name: "data", Type: mavlink.Int16, ArrayLen: 2},
	)
	require.NoError(t, err)

	vals, err := parseValues(def, "{text: hi}")
	require.NoError(t, err)
	msg, err := mavlink.NewMessage(def, vals...)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 'h', 'i'}, msg.Payload())

	vals, err = parseValues(def, "[6, hello, [-1, 2]]")
	require.NoError(t, err)
	msg, err = mavlink.NewMessage(def, vals...)
	require.NoError(t, err)
	require.Equal(t, []byte{6, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0xff, 0xff, 2}, msg.Payload())
}

func TestTimeFlags(t *testing.T) {
	now := time.Date(2025, 4, 10, 10, 49, 15, 0, time.UTC)

	in, err := (&timeFlags{offset: time.Hour}).input()
	require.NoError(t, err)
	ts, err := in.Resolve(now)
	require.NoError(t, err)
	require.True(t, now.Add(time.Hour).Equal(ts.Time()))

	in, err = (&timeFlags{at: "2025-04-10T10:49:15.31Z"}).input()
	require.NoError(t, err)
	ts, err = in.Resolve(time.Time{})
	require.NoError(t, err)
	require.Equal(t, mavlink.Timestamp(32421175531000), ts)

	in, err = (&timeFlags{unix: 1700000000.123456}).input()
	require.NoError(t, err)
	ts, err = in.Resolve(now)
	require.NoError(t, err)
	require.Equal(t, mavlink.Timestamp(27992960012346), ts)

	_, err = (&timeFlags{at: "yesterday"}).input()
	require.Error(t, err)
	_, err = (&timeFlags{at: "2025-04-10T10:49:15Z", unix: 1}).input()
	require.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	p, err := mavlink.DecodeHex("fd1f0100c8ffe64c000000005943000010410000000000000000000000000000000000000000b00001cc9501b363a6a47c1db509c14338ee")
	require.NoError(t, err)
	key := mavlink.NewSessionKey("secret")
	r, err := mavlink.Inspect(p, dialect.Default(), &key)
	require.NoError(t, err)

	var out bytes.Buffer
	printReport(&out, r)
	text := out.String()
	require.Contains(t, text, "msg      COMMAND_LONG (76)")
	require.Contains(t, text, "len      31 (56 on the wire)")
	require.Contains(t, text, "crc      0x95cc ok")
	require.Contains(t, text, "time     2025-04-10 10:49:15.18131 UTC")
	require.Contains(t, text, "sig      B5 09 C1 43 38 EE ok")
	require.Contains(t, text, "command")
}

func TestSendFlagsWaitForHeartbeatByDefault(t *testing.T) {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	var sf sendFlags
	sf.register(fs)
	require.NoError(t, fs.Parse(nil))
	require.Equal(t, heartbeatWait, sf.wait)
	require.Equal(t, uint(200), sf.seq)
	require.False(t, sf.send)

	require.NoError(t, fs.Parse([]string{"-wait", "0", "-send"}))
	require.Zero(t, sf.wait)
	require.True(t, sf.send)
}
