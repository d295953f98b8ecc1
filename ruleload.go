package classifier

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk YAML representation of a rule set, the format
// classifierctl load and classifierctl bench read. It is deliberately
// loose (strings for prefixes and port ranges) since that is what a
// human-authored rule file looks like; LoadRuleFile parses it, and
// RuleSpec.Rule turns each entry into the Rule value AddRule expects.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is one rule entry in a RuleFile.
type RuleSpec struct {
	ID       uint32       `yaml:"id"`
	Priority int32        `yaml:"priority"`
	Enabled  *bool        `yaml:"enabled"` // nil defaults to true
	Protocol string       `yaml:"protocol"` // "", "any", "tcp", "udp", "icmp", or a number
	SrcCIDR  string       `yaml:"src_cidr"` // "", or e.g. "10.0.0.0/8"
	DstCIDR  string       `yaml:"dst_cidr"`
	SrcPort  string       `yaml:"src_port"` // "", or "80", or "1024-65535"
	DstPort  string       `yaml:"dst_port"`
	Actions  []ActionSpec `yaml:"actions"`
}

// ActionSpec is one action entry in a RuleSpec.
type ActionSpec struct {
	Kind    string `yaml:"kind"` // "forward", "drop", "log", "mirror"
	NextHop string `yaml:"next_hop"`
	Tag     string `yaml:"tag"`
	Target  string `yaml:"target"`
}

var protocolNames = map[string]Protocol{
	"":     0,
	"any":  0,
	"icmp": 1,
	"tcp":  6,
	"udp":  17,
}

// LoadRuleFile reads and parses a RuleFile from path.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: load rule file %s: %w", path, err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("classifier: parse rule file %s: %w", path, err)
	}
	return &rf, nil
}

// Rule converts a RuleSpec into the Rule type AddRule/ModifyRule expect.
func (s RuleSpec) Rule() (Rule, error) {
	proto, err := parseProtocol(s.Protocol)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %d: %w", s.ID, err)
	}
	srcPrefix, err := parseCIDR(s.SrcCIDR)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %d: src_cidr: %w", s.ID, err)
	}
	dstPrefix, err := parseCIDR(s.DstCIDR)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %d: dst_cidr: %w", s.ID, err)
	}
	srcPort, err := parsePortRange(s.SrcPort)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %d: src_port: %w", s.ID, err)
	}
	dstPort, err := parsePortRange(s.DstPort)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %d: dst_port: %w", s.ID, err)
	}
	actions := make([]Action, len(s.Actions))
	for i, a := range s.Actions {
		act, err := a.action()
		if err != nil {
			return Rule{}, fmt.Errorf("rule %d: action %d: %w", s.ID, i, err)
		}
		actions[i] = act
	}
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return Rule{
		ID:       s.ID,
		Priority: s.Priority,
		Enabled:  enabled,
		Filter: Filter{
			SrcPrefix: srcPrefix,
			DstPrefix: dstPrefix,
			SrcPort:   srcPort,
			DstPort:   dstPort,
			Protocol:  proto,
		},
		Actions: actions,
	}, nil
}

func (a ActionSpec) action() (Action, error) {
	switch strings.ToLower(a.Kind) {
	case "forward":
		hop, err := parseIPv4(a.NextHop)
		if err != nil {
			return Action{}, fmt.Errorf("next_hop: %w", err)
		}
		return Action{Kind: ActionForward, NextHop: hop}, nil
	case "drop":
		return Action{Kind: ActionDrop}, nil
	case "log":
		return Action{Kind: ActionLog, Tag: a.Tag}, nil
	case "mirror":
		return Action{Kind: ActionMirror, Target: a.Target}, nil
	default:
		return Action{}, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func parseProtocol(s string) (Protocol, error) {
	if p, ok := protocolNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unrecognized protocol %q", s)
	}
	return Protocol(n), nil
}

func parseCIDR(s string) (*Prefix, error) {
	if s == "" {
		return nil, nil
	}
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		return nil, err
	}
	ip4 := network.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%q is not an IPv4 CIDR", s)
	}
	ones, _ := network.Mask.Size()
	addr := uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
	return &Prefix{Addr: addr, Len: uint8(ones)}, nil
}

func parseIPv4(s string) (uint32, error) {
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

func parsePortRange(s string) (*PortRange, error) {
	if s == "" {
		return nil, nil
	}
	if lo, hi, found := strings.Cut(s, "-"); found {
		loN, err := strconv.ParseUint(lo, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid low port %q", lo)
		}
		hiN, err := strconv.ParseUint(hi, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid high port %q", hi)
		}
		return &PortRange{Low: uint16(loN), High: uint16(hiN)}, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q", s)
	}
	return &PortRange{Low: uint16(n), High: uint16(n)}, nil
}
