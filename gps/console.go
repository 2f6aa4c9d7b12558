package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var directions = map[string]Direction{
	"w": North, "up": North, "n": North,
	"s": South, "down": South,
	"a": West, "left": West,
	"d": East, "right": East,
	"+": Up,
	"-": Down,
}

// Console drives a feed from text commands, one per line:
//
//	<seconds>         new offset (or unix time in absolute mode)
//	k                 toggle the send interval
//	w a s d / + -     move north, west, south, east / climb, descend
//	(empty line)      stop
type Console struct {
	feed *Feed
	out  io.Writer
}

func NewConsole(feed *Feed, out io.Writer) *Console {
	return &Console{feed: feed, out: out}
}

func (c *Console) prompt() {
	st := c.feed.State()
	what := "offset"
	if st.Mode == ModeAbsolute {
		what = "time"
	}
	fmt.Fprintf(c.out, "\nThe GPS time is currently %s. This is currently being sent every %s.\n",
		c.feed.ReportedTime().Format("02 January, 2006 15:04:05"), st.Interval)
	fmt.Fprintf(c.out, "Enter a GPS %s in seconds, k to toggle the interval, w/a/s/d/+/- to move, ENTER to exit.\n> ", what)
}

// Run reads commands until an empty line, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			done, err := c.Handle(line)
			if err != nil {
				fmt.Fprintf(c.out, "%v\n", err)
			}
			if done {
				return nil
			}
		}
	}
}

// Handle applies one command and reports whether the console should stop.
func (c *Console) Handle(line string) (bool, error) {
	cmd := strings.ToLower(strings.TrimSpace(line))
	if cmd == "" {
		return true, nil
	}
	if cmd == "k" {
		fmt.Fprintf(c.out, "Sending every %s\n", c.feed.ToggleInterval())
		return false, nil
	}
	if dir, ok := directions[cmd]; ok {
		p := c.feed.Nudge(dir)
		fmt.Fprintf(c.out, "LAT %d LON %d ALT %.1f\n", p.Lat, p.Lon, p.Alt)
		return false, nil
	}
	offset, err := strconv.ParseInt(cmd, 10, 64)
	if err != nil {
		return false, fmt.Errorf("unknown command %q", line)
	}
	c.feed.SetOffset(offset)
	return false, nil
}
