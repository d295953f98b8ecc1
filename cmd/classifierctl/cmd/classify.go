package cmd

import (
	"fmt"
	"net"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	classifier "github.com/plexsphere/classifierd"
)

var (
	classifySrcIP   string
	classifyDstIP   string
	classifySrcPort uint16
	classifyDstPort uint16
	classifyProto   uint8

	matchColor   = color.New(color.FgGreen, color.Bold).FprintfFunc()
	noMatchColor = color.New(color.FgYellow).FprintfFunc()
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a single synthetic packet header",
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifySrcIP, "src-ip", "0.0.0.0", "source IPv4 address")
	classifyCmd.Flags().StringVar(&classifyDstIP, "dst-ip", "0.0.0.0", "destination IPv4 address")
	classifyCmd.Flags().Uint16Var(&classifySrcPort, "src-port", 0, "source port")
	classifyCmd.Flags().Uint16Var(&classifyDstPort, "dst-port", 0, "destination port")
	classifyCmd.Flags().Uint8Var(&classifyProto, "protocol", 6, "L4 protocol number (6=tcp, 17=udp, 1=icmp)")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, _ []string) error {
	c, _, err := buildClassifier()
	if err != nil {
		return err
	}
	defer c.Close()

	hdr, err := parseHeader()
	if err != nil {
		return fmt.Errorf("classifierctl: %w", err)
	}

	res := c.Classify(hdr)
	w := cmd.OutOrStdout()
	if !res.Matched {
		noMatchColor(w, "no rule matched\n")
		return nil
	}
	matchColor(w, "matched rule %d (%d action(s))\n", res.RuleID, len(res.Actions))
	for i, a := range res.Actions {
		fmt.Fprintf(w, "  [%d] %s\n", i, describeAction(a))
	}
	return nil
}

func describeAction(a classifier.Action) string {
	switch a.Kind {
	case classifier.ActionForward:
		return fmt.Sprintf("forward -> %s", ipv4String(a.NextHop))
	case classifier.ActionDrop:
		return "drop"
	case classifier.ActionLog:
		return fmt.Sprintf("log tag=%q", a.Tag)
	case classifier.ActionMirror:
		return fmt.Sprintf("mirror -> %s", a.Target)
	default:
		return "unknown"
	}
}

func ipv4String(v uint32) string {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).String()
}

func parseHeader() (classifier.PacketHeader, error) {
	src, err := parseIPv4Flag(classifySrcIP)
	if err != nil {
		return classifier.PacketHeader{}, fmt.Errorf("src-ip: %w", err)
	}
	dst, err := parseIPv4Flag(classifyDstIP)
	if err != nil {
		return classifier.PacketHeader{}, fmt.Errorf("dst-ip: %w", err)
	}
	return classifier.PacketHeader{
		SrcIP:    src,
		DstIP:    dst,
		SrcPort:  classifySrcPort,
		DstPort:  classifyDstPort,
		Protocol: classifier.Protocol(classifyProto),
	}, nil
}

func parseIPv4Flag(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("%q is not an IPv4 address", s)
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3]), nil
}
