package ruleset

import (
	"fmt"

	"github.com/plexsphere/classifierd/internal/codes"
)

// Validate checks a Filter's invariants: prefix lengths in 0..32 with no
// bits set beyond the significant length, and low <= high for any port
// range. It returns a *codes.Error with Code InvalidRule naming the
// offending field.
func Validate(f Filter) error {
	if f.SrcPrefix != nil {
		if err := validatePrefix(*f.SrcPrefix); err != nil {
			return codes.Invalid("src_prefix", err.Error())
		}
	}
	if f.DstPrefix != nil {
		if err := validatePrefix(*f.DstPrefix); err != nil {
			return codes.Invalid("dst_prefix", err.Error())
		}
	}
	if f.SrcPort != nil && f.SrcPort.Low > f.SrcPort.High {
		return codes.Invalid("src_port_range", "low > high")
	}
	if f.DstPort != nil && f.DstPort.Low > f.DstPort.High {
		return codes.Invalid("dst_port_range", "low > high")
	}
	return nil
}

func validatePrefix(p Prefix) error {
	if p.Len > 32 {
		return fmt.Errorf("prefix length %d out of range 0..32", p.Len)
	}
	if p.Len < 32 {
		mask := uint32(0xFFFFFFFF) >> p.Len
		if p.Addr&mask != 0 {
			return fmt.Errorf("non-normalized prefix: bits beyond length %d are set", p.Len)
		}
	}
	return nil
}
