package inventory

import (
	"fmt"
	"net/netip"
	"time"
)

// Validation limits.
const (
	maxHostnameLength     = 63
	maxLoggedInUserLength = 512
	maxSerialLength       = 128
	maxDrives             = 32
	maxDriveFieldLength   = 256
)

// Validate checks every field of raw and returns the normalised check-in.
//
// All rules are evaluated and every failure is reported in a single
// *ValidationError. On success the timestamp is re-rendered in
// TimestampLayout and the IP address in canonical form; nothing else
// is rewritten. Validate performs no I/O.
func Validate(raw CheckIn) (CheckIn, error) {
	var v validator

	v.hostname("hostname", raw.Hostname)
	addr := v.ipAddress("ip_address", raw.IPAddress)
	if raw.LoggedInUser != nil {
		v.printable("logged_in_user", *raw.LoggedInUser, 0, maxLoggedInUserLength)
	}
	v.printable("laptop_serial", raw.LaptopSerial, 1, maxSerialLength)
	ts := v.timestamp("timestamp_utc", raw.TimestampUTC)

	if len(raw.Drives) > maxDrives {
		v.add("drives", RuleCount, fmt.Sprintf("must contain at most %d entries, got %d", maxDrives, len(raw.Drives)))
	}
	for i, d := range raw.Drives {
		prefix := fmt.Sprintf("drives[%d]", i)
		v.printable(prefix+".model", d.Model, 1, maxDriveFieldLength)
		if d.SerialNumber != nil {
			v.printable(prefix+".serial_number", *d.SerialNumber, 0, maxDriveFieldLength)
		}
		v.printable(prefix+".device_id", d.DeviceID, 1, maxDriveFieldLength)
	}

	if len(v.violations) > 0 {
		return CheckIn{}, &ValidationError{Violations: v.violations}
	}

	out := raw
	out.IPAddress = addr.String()
	out.TimestampUTC = FormatTimestamp(ts)
	if raw.Drives != nil {
		out.Drives = make([]Drive, len(raw.Drives))
		copy(out.Drives, raw.Drives)
	}
	return out, nil
}

// validator accumulates violations.
type validator struct {
	violations []Violation
}

func (v *validator) add(field, rule, msg string) {
	v.violations = append(v.violations, Violation{Field: field, Rule: rule, Message: msg})
}

// length checks len(s) against [lo, hi] and reports whether it passed.
func (v *validator) length(field, s string, lo, hi int) bool {
	n := len(s)
	switch {
	case n == 0 && lo > 0:
		v.add(field, RuleRequired, "is required")
		return false
	case n < lo || n > hi:
		v.add(field, RuleLength, fmt.Sprintf("must be %d-%d characters, got %d", lo, hi, n))
		return false
	}
	return true
}

// printable checks length and that every byte is printable ASCII (0x20-0x7E).
func (v *validator) printable(field, s string, lo, hi int) {
	v.length(field, s, lo, hi)
	for i := 0; i < len(s); i++ {
		if !isPrintableASCII(s[i]) {
			v.add(field, RulePrintable, fmt.Sprintf("must be printable ASCII, invalid byte 0x%02x at offset %d", s[i], i))
			return
		}
	}
}

func (v *validator) hostname(field, s string) {
	if !v.length(field, s, 1, maxHostnameLength) && s == "" {
		return
	}
	for i := 0; i < len(s); i++ {
		if !isHostnameChar(s[i]) {
			v.add(field, RuleCharset, fmt.Sprintf("may only contain letters, digits, '-' and '_', invalid byte 0x%02x at offset %d", s[i], i))
			return
		}
	}
	if !isAlphanumeric(s[0]) || !isAlphanumeric(s[len(s)-1]) {
		v.add(field, RuleEdge, "must start and end with a letter or digit")
	}
}

func (v *validator) ipAddress(field, s string) netip.Addr {
	if s == "" {
		v.add(field, RuleRequired, "is required")
		return netip.Addr{}
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		v.add(field, RuleFormat, "must be an IPv4 or IPv6 address")
		return netip.Addr{}
	}
	if addr.Zone() != "" {
		v.add(field, RuleFormat, "must not carry an IPv6 zone")
		return netip.Addr{}
	}
	return addr
}

func (v *validator) timestamp(field, s string) time.Time {
	if s == "" {
		v.add(field, RuleRequired, "is required")
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		v.add(field, RuleFormat, "must be an RFC3339 timestamp")
		return time.Time{}
	}
	// Stored values are four-digit UTC years.
	if y := t.UTC().Year(); y < 0 || y > 9999 {
		v.add(field, RuleFormat, "must fall between years 0000 and 9999 in UTC")
		return time.Time{}
	}
	return t
}

func isPrintableASCII(b byte) bool {
	return b >= 0x20 && b <= 0x7e
}

func isAlphanumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isHostnameChar(b byte) bool {
	return isAlphanumeric(b) || b == '-' || b == '_'
}
