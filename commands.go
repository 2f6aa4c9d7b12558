package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gtu-nova/mavsign/dialect"
	"github.com/gtu-nova/mavsign/link"
	"github.com/gtu-nova/mavsign/mavlink"
)

// timeFlags selects the signing timestamp the way the signing scripts
// did: an offset from now, or a chosen time.
type timeFlags struct {
	offset time.Duration
	at     string
	unix   float64
}

func (t *timeFlags) register(fs *flag.FlagSet) {
	fs.DurationVar(&t.offset, "offset", 0, "Sign with the current time shifted by this much (e.g. 24h, -90m)")
	fs.StringVar(&t.at, "at", "", "Sign with this RFC 3339 time instead of the clock")
	fs.Float64Var(&t.unix, "unix", 0, "Sign with this unix time in seconds instead of the clock")
}

func (t *timeFlags) input() (mavlink.TimestampInput, error) {
	switch {
	case t.at != "" && t.unix != 0:
		return nil, errors.New("-at and -unix are exclusive")
	case t.at != "":
		at, err := time.Parse(time.RFC3339Nano, t.at)
		if err != nil {
			return nil, err
		}
		return mavlink.AbsoluteTime(at), nil
	case t.unix != 0:
		return mavlink.UnixTime(t.unix), nil
	}
	return mavlink.OffsetTime(t.offset), nil
}

// hexArgs joins the arguments into one capture, or reads stdin for "-".
func hexArgs(args []string) ([]byte, error) {
	text := strings.Join(args, " ")
	if text == "" || text == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		text = string(b)
	}
	return mavlink.ParseHex(text)
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// sendFlags are shared by the commands that build one packet.
type sendFlags struct {
	seq  uint
	send bool
	wait time.Duration
}

func (f *sendFlags) register(fs *flag.FlagSet) {
	fs.UintVar(&f.seq, "seq", 200, "Sequence number")
	fs.BoolVar(&f.send, "send", false, "Send the packet to the endpoint")
	fs.DurationVar(&f.wait, "wait", heartbeatWait, "Wait this long for a heartbeat before sending, 0 to skip")
}

// emit signs msg, prints it and, with -send, writes it to the endpoint.
func (e *env) emit(msg *mavlink.Message, f sendFlags, when mavlink.TimestampInput) error {
	if f.seq > 255 {
		return fmt.Errorf("sequence %d does not fit a byte", f.seq)
	}
	if !f.send {
		key, err := e.key()
		if err != nil {
			return err
		}
		pkt, ts, err := mavlink.Encode(msg, mavlink.Header{
			Seq:         uint8(f.seq),
			SystemID:    e.cfg.SystemID,
			ComponentID: e.cfg.ComponentID,
		}, mavlink.Signing{Key: key, LinkID: e.cfg.LinkID, Time: when}, time.Now())
		if err != nil {
			return err
		}
		printPacket(pkt, ts)
		return nil
	}

	l, err := e.openLink(uint8(f.seq), true)
	if err != nil {
		return err
	}
	defer l.Close()
	if f.wait > 0 {
		if err := waitHeartbeat(l, f.wait); err != nil {
			return err
		}
	}
	pkt, ts, err := l.Send(msg, when)
	if err != nil {
		return err
	}
	printPacket(pkt, ts)
	logger.Infof("Sent %d bytes to %s\n", len(pkt), e.cfg.Endpoint)
	return nil
}

func runEncode(e *env, args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	msgName := fs.String("msg", "COMMAND_LONG", "Message name or id")
	values := fs.String("values", "", "Values as a YAML list in wire order or a mapping by field name (default: DO_SET_MODE to LAND)")
	var sf sendFlags
	sf.register(fs)
	var tf timeFlags
	tf.register(fs)
	_ = fs.Parse(args)

	def, err := e.message(*msgName)
	if err != nil {
		return err
	}
	var vals []interface{}
	if *values == "" {
		if def.ID != dialect.CommandLong {
			return fmt.Errorf("%s needs -values", def.Name)
		}
		vals = dialect.DoSetMode(1, dialect.BaseModeArmedCustom, dialect.CopterModeLand).Values()
	} else if vals, err = parseValues(def, *values); err != nil {
		return err
	}
	msg, err := mavlink.NewMessage(def, vals...)
	if err != nil {
		return err
	}
	when, err := tf.input()
	if err != nil {
		return err
	}
	return e.emit(msg, sf, when)
}

// heartbeatWait is how long commands wait for the vehicle before sending.
// A udpin endpoint only learns where to reply from the first datagram.
const heartbeatWait = time.Minute

func waitHeartbeat(l *link.Link, timeout time.Duration) error {
	logger.Info("Waiting for heartbeat\n")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	p, err := l.WaitHeartbeat(ctx)
	if err != nil {
		return fmt.Errorf("no heartbeat: %w", err)
	}
	logger.Infof("Got heartbeat from system %d component %d\n", p.SystemID, p.ComponentID)
	return nil
}

func printPacket(pkt []byte, ts mavlink.Timestamp) {
	fmt.Println(mavlink.FormatHex(pkt))
	fmt.Printf("%d bytes, signed at %s (%d ticks)\n", len(pkt),
		ts.Time().Format("2006-01-02 15:04:05.00000 MST"), uint64(ts))
}

func runDecode(e *env, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	_ = fs.Parse(args)

	data, err := hexArgs(fs.Args())
	if err != nil {
		return err
	}
	p, err := mavlink.Decode(data)
	if err != nil {
		return err
	}
	var key *mavlink.SessionKey
	if k, err := e.key(); err == nil {
		key = &k
	}
	r, err := mavlink.Inspect(p, e.dialect, key)
	if err != nil {
		return err
	}
	printReport(os.Stdout, r)
	return nil
}

func printReport(w io.Writer, r *mavlink.Report) {
	name := "unknown"
	if r.Def != nil {
		name = r.Def.Name
	}
	fmt.Fprintf(w, "msg      %s (%d)\n", name, r.MsgID)
	fmt.Fprintf(w, "len      %d (%d on the wire)\n", r.PayloadLen, r.WireLen())
	fmt.Fprintf(w, "flags    incompat 0x%02x compat 0x%02x\n", r.IncompatFlags, r.CompatFlags)
	fmt.Fprintf(w, "seq      %d\n", r.Seq)
	fmt.Fprintf(w, "sys/comp %d/%d\n", r.SystemID, r.ComponentID)
	fmt.Fprintf(w, "payload  %s\n", mavlink.FormatHex(r.Payload))

	crc := "not checked"
	if r.ChecksumChecked {
		crc = "ok"
		if r.ChecksumMismatch {
			crc = "MISMATCH"
		}
	}
	fmt.Fprintf(w, "crc      0x%04x %s\n", r.Checksum, crc)

	if r.Signed() {
		fmt.Fprintf(w, "link     %d\n", r.LinkID)
		fmt.Fprintf(w, "time     %s (%d ticks)\n",
			r.Timestamp.Time().Format("2006-01-02 15:04:05.00000 MST"), uint64(r.Timestamp))
		sig := "not checked"
		if r.SignatureChecked {
			sig = "ok"
			if r.SignatureMismatch {
				sig = "MISMATCH"
			}
		}
		fmt.Fprintf(w, "sig      %s %s\n", mavlink.FormatHex(r.Signature[:]), sig)
	} else {
		fmt.Fprintf(w, "unsigned\n")
	}

	if r.Def != nil {
		for i, f := range r.Def.Fields {
			fmt.Fprintf(w, "  %-20s %-12s %v\n", f.Name, f.String(), r.Values[i])
		}
	}
}

func runReplay(e *env, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	count := fs.Int("count", 1, "Times to send the capture")
	interval := fs.Duration("interval", time.Second, "Pause between repeats")
	wait := fs.Duration("wait", heartbeatWait, "Wait this long for a heartbeat before sending, 0 to skip")
	_ = fs.Parse(args)

	data, err := hexArgs(fs.Args())
	if err != nil {
		return err
	}
	if _, err := mavlink.Decode(data); err != nil {
		logger.Warnf("Capture does not parse as MAVLink v2 (%v), sending anyway\n", err)
	}

	l, err := e.openLink(0, false)
	if err != nil {
		return err
	}
	defer l.Close()
	if *wait > 0 {
		if err := waitHeartbeat(l, *wait); err != nil {
			return err
		}
	}

	for i := 0; i < *count; i++ {
		if i > 0 {
			time.Sleep(*interval)
		}
		if _, err := l.WriteRaw(data); err != nil {
			return err
		}
		logger.Infof("Replayed %d bytes to %s\n", len(data), e.cfg.Endpoint)
	}
	return nil
}

func runView(e *env, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	wait := fs.Duration("wait", heartbeatWait, "How long to wait for the first heartbeat")
	_ = fs.Parse(args)

	l, err := e.openLink(0, false)
	if err != nil {
		return err
	}
	defer l.Close()
	if err := waitHeartbeat(l, *wait); err != nil {
		return err
	}

	l.AddCallbacks([]uint32{dialect.Timesync, dialect.SystemTime}, []link.Callback{printTimesync, printSystemTime})
	l.Start(func(*mavlink.Packet, *link.Link) error { return nil })

	ctx, cancel := interruptContext()
	defer cancel()
	select {
	case <-ctx.Done():
	case <-l.Done():
		return errors.New("connection lost")
	}
	return nil
}

func nanosTime(ns int64) string {
	return time.Unix(0, ns).UTC().Format("2006-01-02 15:04:05")
}

func printTimesync(p *mavlink.Packet, _ *link.Link) error {
	var ts dialect.TimesyncData
	if err := link.Read(p, &ts); err != nil {
		return err
	}
	if ts.Tc1 == 0 {
		logger.Infof("TIMESYNC request, syncing time %s\n", nanosTime(ts.Ts1))
	} else {
		logger.Infof("TIMESYNC response, responding time %s, syncing time %s\n", nanosTime(ts.Tc1), nanosTime(ts.Ts1))
	}
	if p.Signed() {
		logger.Infof("  signed at %s\n", p.Timestamp.Time().Format(time.RFC3339Nano))
	}
	return nil
}

func printSystemTime(p *mavlink.Packet, _ *link.Link) error {
	var st dialect.SystemTimeData
	if err := link.Read(p, &st); err != nil {
		return err
	}
	logger.Infof("SYSTEM_TIME %s, boot +%s\n",
		time.UnixMicro(int64(st.TimeUnixUsec)).UTC().Format(time.RFC3339), time.Duration(st.TimeBootMs)*time.Millisecond)
	return nil
}

func runDialect(e *env, args []string) error {
	fs := flag.NewFlagSet("dialect", flag.ExitOnError)
	_ = fs.Parse(args)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, def := range e.dialect.Messages() {
		if fs.NArg() > 0 && !matchesAny(def, fs.Args()) {
			continue
		}
		fmt.Fprintf(w, "%6d %-32s crc_extra %3d  %s\n", def.ID, def.Name, def.CRCExtra, def.Format())
	}
	return nil
}

func matchesAny(def *mavlink.MessageDefinition, names []string) bool {
	for _, n := range names {
		if strings.EqualFold(n, def.Name) || n == fmt.Sprint(def.ID) {
			return true
		}
	}
	return false
}
