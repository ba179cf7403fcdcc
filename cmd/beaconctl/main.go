// Command beaconctl talks to a beacon over its serial command protocol.
// With arguments it runs one command and exits; otherwise it starts an
// interactive shell.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/google/uuid"

	"github.com/micro-nova/ibeacon-go/internal/hexcodec"
	"github.com/micro-nova/ibeacon-go/internal/uart"
)

const ctlKey = "$ctl"

// Doer sends one command line and returns the reply line.
type Doer interface {
	Do(line string) (string, error)
}

// ctl is the state shared by shell commands.
type ctl struct {
	client Doer
}

func ctlFrom(c *ishell.Context) *ctl {
	return c.Get(ctlKey).(*ctl)
}

var (
	infoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "show version, device id and beacon configuration",
		Func: func(c *ishell.Context) {
			send(c, "I")
		},
	}

	configureCmd = ishell.Cmd{
		Name:    "configure",
		Aliases: []string{"c"},
		Help:    "UUID MAJOR MINOR",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 3 {
				c.Err(fmt.Errorf("usage: configure UUID MAJOR MINOR"))
				return
			}
			line, err := configureLine(c.Args[0], c.Args[1], c.Args[2])
			if err != nil {
				c.Err(err)
				return
			}
			send(c, line)
		},
	}

	rawCmd = ishell.Cmd{
		Name: "raw",
		Help: "LINE sends a protocol line as is",
		Func: func(c *ishell.Context) {
			send(c, strings.Join(c.Args, " "))
		},
	}

	portsCmd = ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := uart.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			for _, p := range ports {
				c.Println(p)
			}
		},
	}
)

func send(c *ishell.Context, line string) {
	reply, err := ctlFrom(c).client.Do(line)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(reply)
}

// configureLine builds a configure command. The UUID may be given with or
// without dashes; major and minor must fit in 16 bits.
func configureLine(id, major, minor string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid uuid %q: %w", id, err)
	}
	maj, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return "", fmt.Errorf("invalid major %q: %w", major, err)
	}
	mnr, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return "", fmt.Errorf("invalid minor %q: %w", minor, err)
	}
	return fmt.Sprintf("C %s %d %d", hexcodec.Encode(u[:]), maj, mnr), nil
}

func newShell(client Doer) *ishell.Shell {
	sh := ishell.New()
	sh.Set(ctlKey, &ctl{client: client})
	sh.SetPrompt("beacon> ")
	for _, cmd := range []*ishell.Cmd{&infoCmd, &configureCmd, &rawCmd, &portsCmd} {
		sh.AddCmd(cmd)
	}
	return sh
}

func main() {
	var (
		port    = flag.String("port", "/dev/ttyUSB0", "serial port of the beacon")
		baud    = flag.Int("baud", uart.DefaultBaud, "serial baud rate")
		timeout = flag.Duration("timeout", uart.DefaultResponseTimeout, "reply timeout")
	)
	flag.Parse()

	p, err := uart.Open(*port, *baud)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer p.Close()

	sh := newShell(uart.NewClient(p, *timeout))
	if args := flag.Args(); len(args) > 0 {
		if err := sh.Process(args...); err != nil {
			fmt.Fprintln(os.Stderr, err)
			p.Close()
			os.Exit(1)
		}
		return
	}
	sh.Println("beaconctl on " + *port + ", type help for commands")
	sh.Run()
}
