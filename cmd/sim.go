package cmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/netip"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/skein/core"
	"github.com/encodeous/skein/mock"
	"github.com/encodeous/skein/state"
	"github.com/encodeous/tint"
	"github.com/spf13/cobra"
)

type simOpts struct {
	Sample   bool
	From     string
	To       string
	Count    int
	Interval time.Duration
	Duration time.Duration
	// Fail lists links taken down during the run, as "a-b@1s"
	Fail    []string
	Inspect bool
	Seed    uint64
}

type simResult struct {
	Sent          int
	Delivered     int
	Transmissions int
	Events        map[core.RouterEvent]int
	Tables        map[state.NodeId]string
}

// simObserver counts the events of every simulated node
type simObserver struct {
	events map[core.RouterEvent]int
}

func (o *simObserver) Trace(ev core.TraceEvent) {
	o.events[ev.Event]++
}

type linkFailure struct {
	a, b state.NodeId
	at   time.Duration
}

func parseFailure(s string) (linkFailure, error) {
	pair, at, ok := strings.Cut(s, "@")
	if !ok {
		return linkFailure{}, fmt.Errorf("link failure %q must look like a-b@1s", s)
	}
	a, b, ok := strings.Cut(pair, "-")
	if !ok {
		return linkFailure{}, fmt.Errorf("link failure %q must look like a-b@1s", s)
	}
	d, err := time.ParseDuration(at)
	if err != nil {
		return linkFailure{}, err
	}
	return linkFailure{state.NodeId(strings.TrimSpace(a)), state.NodeId(strings.TrimSpace(b)), d}, nil
}

// runSim runs every node of cfg on a simulated medium in virtual time
func runSim(cfg state.CentralCfg, weights []state.Triple[state.NodeId, state.NodeId, time.Duration], opts simOpts, log *slog.Logger) (*simResult, error) {
	if err := state.CentralConfigValidator(&cfg); err != nil {
		return nil, err
	}
	sim := mock.NewSim()
	medium, err := mock.NewMediumFromConfig(sim, &cfg, weights)
	if err != nil {
		return nil, err
	}
	book := state.NewAddressBook(cfg.Nodes)
	obs := &simObserver{events: make(map[core.RouterEvent]int)}
	res := &simResult{Tables: make(map[state.NodeId]string)}

	nodes := make(map[state.NodeId]*core.Dsr)
	for i, n := range cfg.Nodes {
		var d *core.Dsr
		port := medium.Attach(n.Address, func(frame []byte) {
			d.HandleFrame(frame)
		})
		d = core.NewDsr(core.Config{
			Self:      n.Address,
			Dsr:       cfg.Dsr,
			Scheduler: sim,
			Link:      port,
			Deliver: func(src netip.Addr, nextHeader uint8, payload []byte) {
				res.Delivered++
			},
			Observer: obs,
			Log:      log.With("node", n.Id),
			Book:     book,
			Seed:     opts.Seed + uint64(i),
		})
		d.Start()
		nodes[n.Id] = d
	}

	src, ok := nodes[state.NodeId(opts.From)]
	if !ok {
		return nil, fmt.Errorf("unknown source node %s", opts.From)
	}
	dst, ok := book.AddrOf(state.NodeId(opts.To))
	if !ok || opts.From == opts.To {
		return nil, fmt.Errorf("invalid destination node %s", opts.To)
	}

	for _, f := range opts.Fail {
		lf, err := parseFailure(f)
		if err != nil {
			return nil, err
		}
		a, okA := book.AddrOf(lf.a)
		b, okB := book.AddrOf(lf.b)
		if !okA || !okB {
			return nil, fmt.Errorf("link failure %q names an unknown node", f)
		}
		sim.AfterFunc(lf.at, func() {
			log.Info("link down", "a", lf.a, "b", lf.b)
			medium.SetLink(a, b, false)
		})
	}

	for i := range opts.Count {
		sim.AfterFunc(time.Duration(i)*opts.Interval, func() {
			payload := binary.BigEndian.AppendUint32(nil, uint32(i))
			if err := src.Send(dst, core.ProbeProtocol, payload); err != nil {
				log.Warn("send failed", "seq", i, "error", err)
				return
			}
			res.Sent++
		})
	}

	sim.RunFor(opts.Duration)

	res.Transmissions = len(medium.Sent)
	res.Events = obs.events
	if opts.Inspect {
		for id, d := range nodes {
			res.Tables[id] = d.Inspect()
		}
	}
	for _, d := range nodes {
		d.Stop()
	}
	return res, nil
}

func printSim(w io.Writer, res *simResult) {
	fmt.Fprintf(w, "sent %d, delivered %d, %d transmissions\n\n", res.Sent, res.Delivered, res.Transmissions)
	events := slices.SortedFunc(maps.Keys(res.Events), func(a, b core.RouterEvent) int {
		return strings.Compare(a.String(), b.String())
	})
	for _, ev := range events {
		fmt.Fprintf(w, "%-20s %d\n", ev, res.Events[ev])
	}
	for _, id := range slices.Sorted(maps.Keys(res.Tables)) {
		fmt.Fprintf(w, "\n== %s ==\n%s", id, res.Tables[id])
	}
}

var simFlags simOpts
var simVerbose bool

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Simulates the network of the central config in virtual time",
	Long: `Runs every node of the central config on an in-memory broadcast medium and sends traffic between two nodes.
Use --sample to simulate a built-in five node network instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if simVerbose {
			level = slog.LevelDebug
		}
		log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

		var cfg state.CentralCfg
		var weights []state.Triple[state.NodeId, state.NodeId, time.Duration]
		if simFlags.Sample {
			cfg, weights = mock.MockCfg()
		} else {
			c, err := core.ReadCentralConfig(state.CentralConfigPath)
			if err != nil {
				return err
			}
			cfg = *c
		}
		res, err := runSim(cfg, weights, simFlags, log)
		if err != nil {
			return err
		}
		printSim(cmd.OutOrStdout(), res)
		return nil
	},
	GroupID: "sk",
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().BoolVar(&simFlags.Sample, "sample", false, "Simulate the built-in sample network (bob, jeb, kat, eve, ada)")
	simCmd.Flags().StringVar(&simFlags.From, "from", "bob", "Sending node")
	simCmd.Flags().StringVar(&simFlags.To, "to", "ada", "Receiving node")
	simCmd.Flags().IntVar(&simFlags.Count, "count", 10, "Number of packets to send")
	simCmd.Flags().DurationVar(&simFlags.Interval, "interval", 100*time.Millisecond, "Delay between packets")
	simCmd.Flags().DurationVar(&simFlags.Duration, "duration", 10*time.Second, "Virtual time to simulate")
	simCmd.Flags().StringSliceVar(&simFlags.Fail, "fail", nil, "Take a link down during the run, e.g. bob-kat@500ms")
	simCmd.Flags().BoolVar(&simFlags.Inspect, "inspect", false, "Print the tables of every node at the end")
	simCmd.Flags().Uint64Var(&simFlags.Seed, "seed", 1, "Seed of the jitter generators")
	simCmd.Flags().BoolVarP(&simVerbose, "verbose", "v", false, "Log every protocol event")
}
