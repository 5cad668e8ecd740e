// Command canexus drives one RT send, RPC call, PS publish or BW transfer
// against a named transport, for interactive use and integration testing.
package main

import (
	"fmt"
	"os"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/internal/ident"
	_ "github.com/robopen/canexus/pkg/can/all"
	"github.com/robopen/canexus/pkg/bw"
	"github.com/robopen/canexus/pkg/can"
	"github.com/robopen/canexus/pkg/ps"
	"github.com/robopen/canexus/pkg/rpc"
	"github.com/robopen/canexus/pkg/rt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	var (
		transportName = pflag.StringP("transport", "t", "queue", fmt.Sprintf("transport backend (%v)", can.Available()))
		channel       = pflag.StringP("channel", "c", "can0", "transport channel: interface name, host:port, or ignored by queue")
		node          = pflag.Uint8P("node", "n", 1, "local node address (0..63)")
		family        = pflag.StringP("family", "f", "rt", "message family to exercise: rt, rpc, ps, bw")
		target        = pflag.Uint8P("to", "d", 2, "target node address")
		topic         = pflag.Uint8P("topic", "T", 0, "PS topic / BW class mask / RPC procedure id")
		priority      = pflag.Uint8P("priority", "p", uint8(ident.PriorityHigh), "priority 0 (high) .. 3 (low)")
		payloadStr    = pflag.StringP("payload", "m", "", "payload bytes, sent verbatim as given")
		verbose       = pflag.BoolP("verbose", "v", false, "enable debug logging")
		help          = pflag.BoolP("help", "h", false, "display help text")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: canexus [flags]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	transport, err := can.New(*transportName, *channel)
	if err != nil {
		fatal("opening transport %q: %v", *transportName, err)
	}
	ctx, err := canexus.NewContext(*node, transport)
	if err != nil {
		fatal("building context: %v", err)
	}
	defer ctx.Close()

	payload := []byte(*payloadStr)
	prio := ident.Priority(*priority & 0x3)

	switch *family {
	case "rt":
		err = rt.Send(ctx, rt.Message{Priority: prio, Sender: *node, Target: *target, FrameType: rt.Msg, Data: payload}, true)
	case "rpc":
		var nonce uint8
		nonce, err = rpc.Call(ctx, *target, prio, true, *topic&0x7F, payload)
		if err == nil {
			fmt.Printf("call accepted, nonce=%d\n", nonce)
		}
	case "ps":
		err = ps.Publish(ctx, *topic, prio, true, payload)
	case "bw":
		var rest []byte
		rest, err = bw.SendReady(ctx, *target, *topic&0x0F, prio, 0, payload, false)
		if err == nil && len(rest) > 0 {
			err = bw.SendData(ctx, *target, *topic&0x0F, prio, rest, false)
		}
	default:
		fatal("unknown family %q (want rt, rpc, ps, bw)", *family)
	}
	if err != nil {
		fatal("%s: %v", *family, err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "canexus: "+format+"\n", args...)
	os.Exit(1)
}
