package cmd

import (
	"cmp"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/okleinschmidt/pyadm/cmd/utils"
	"github.com/okleinschmidt/pyadm/pkg/config"
	"github.com/okleinschmidt/pyadm/pkg/logger"
	"github.com/okleinschmidt/pyadm/pkg/output"
	"github.com/okleinschmidt/pyadm/pkg/runner"
	ping "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"
)

var checkColumns = []output.Column{
	{Key: "section", Title: "SECTION"},
	{Key: "type", Title: "TYPE"},
	{Key: "address", Title: "ADDRESS"},
	{Key: "tcp", Title: "TCP"},
	{Key: "icmp", Title: "ICMP"},
}

type CheckOptions struct {
	utils.OutputOptions
	Sections    []string
	ICMP        bool
	Privileged  bool
	Timeout     time.Duration
	Concurrency uint
}

type probe struct {
	index   int
	section string
	address string
}

func NewCmdCheck() *cobra.Command {
	o := &CheckOptions{}
	cmd := &cobra.Command{
		Use:   "check [SECTION...]",
		Short: "Check that the configured backends are reachable",
		Long: `Open a TCP connection to the server of every LDAP, ELASTIC and PVE section,
or only of the named sections. --icmp also pings each host.
Exits 1 when a TCP check fails.`,
		Example: `  pyadm check
  pyadm check LDAP_PROD PVE --icmp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _, err := utils.LoadProvider(cmd)
			if err != nil {
				return err
			}
			if err := o.Complete(provider.Sections(), args); err != nil {
				return err
			}
			return o.Run(cmd, provider.Sections())
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().BoolVar(&o.ICMP, "icmp", false, "Also send ICMP echo requests")
	cmd.Flags().BoolVar(&o.Privileged, "privileged", false, "Use raw sockets for ICMP (needs root)")
	cmd.Flags().DurationVarP(&o.Timeout, "timeout", "t", 5*time.Second, "Timeout per check")
	cmd.Flags().UintVarP(&o.Concurrency, "concurrency", "n", 4, "Number of sections checked at once")
	return cmd
}

// Complete defaults to every section with a known prefix.
func (o *CheckOptions) Complete(sections *config.Sections, args []string) error {
	if len(args) > 0 {
		for _, name := range args {
			if _, ok := sections.Get(name); !ok {
				return fmt.Errorf("%w: section '%s' not found in config", config.ErrNoSection, name)
			}
		}
		o.Sections = args
		return nil
	}
	for _, name := range sections.Names() {
		switch config.Kind(name) {
		case config.PrefixLDAP, config.PrefixElastic, config.PrefixPVE:
			o.Sections = append(o.Sections, name)
		}
	}
	if len(o.Sections) == 0 {
		return fmt.Errorf("%w: no LDAP, ELASTIC or PVE sections configured", config.ErrNoSection)
	}
	return nil
}

func (o *CheckOptions) Run(cmd *cobra.Command, sections *config.Sections) error {
	p, err := o.Printer(cmd)
	if err != nil {
		return err
	}

	probes := make([]probe, len(o.Sections))
	for i, name := range o.Sections {
		sec, _ := sections.Get(name)
		addr, err := config.Endpoint(sec)
		if err != nil {
			logger.Logger.Warn("cannot check section", "section", name, "error", err)
		}
		probes[i] = probe{index: i, section: name, address: addr}
	}

	rows := make([]map[string]any, 0, len(probes))
	failed := 0
	for r := range runner.RunParallel(probes, max(o.Concurrency, 1), o.check) {
		if r.Value["tcp"] != "ok" {
			failed++
		}
		rows = append(rows, r.Value)
	}
	slices.SortFunc(rows, func(a, b map[string]any) int {
		return cmp.Compare(a["index"].(int), b["index"].(int))
	})
	for _, row := range rows {
		delete(row, "index")
	}
	if err := p.Table(rows, checkColumns); err != nil {
		return err
	}
	if failed > 0 {
		return utils.ExitCode(1)
	}
	return nil
}

func (o *CheckOptions) check(pr probe) (map[string]any, error) {
	row := map[string]any{
		"index":   pr.index,
		"section": pr.section,
		"type":    config.Kind(pr.section),
		"address": pr.address,
		"tcp":     "-",
		"icmp":    "-",
	}
	if pr.address == "" {
		row["tcp"] = "no address"
		return row, nil
	}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", pr.address, o.Timeout)
	if err != nil {
		logger.Logger.Debug("tcp check failed", "section", pr.section, "address", pr.address, "error", err)
		row["tcp"] = "failed: " + shortError(err)
	} else {
		conn.Close()
		row["tcp"] = "ok"
		row["tcp_ms"] = time.Since(start).Milliseconds()
	}

	if o.ICMP {
		host, _, _ := net.SplitHostPort(pr.address)
		row["icmp"] = o.ping(host)
	}
	return row, nil
}

func (o *CheckOptions) ping(host string) string {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return "failed: " + shortError(err)
	}
	pinger.SetPrivileged(o.Privileged)
	pinger.Count = 3
	pinger.Interval = 200 * time.Millisecond
	pinger.Timeout = o.Timeout
	if err := pinger.Run(); err != nil {
		return "failed: " + shortError(err)
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return fmt.Sprintf("no reply (%d sent)", stats.PacketsSent)
	}
	return fmt.Sprintf("ok (%d/%d, avg %v)", stats.PacketsRecv, stats.PacketsSent, stats.AvgRtt.Round(time.Microsecond))
}

// shortError drops the "dial tcp host:port:" prefix net errors carry.
func shortError(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
