package uart

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hpungsan/uartscope/internal/errors"
)

// Role is a logical signal line of a serial port.
type Role int

const (
	RoleRxD Role = iota
	RoleTxD
	RoleCTS
	RoleRTS
	RoleDTR
	RoleDSR
	RoleDCD
	RoleRI

	numRoles
)

var roleNames = [numRoles]string{"RxD", "TxD", "CTS", "RTS", "DTR", "DSR", "DCD", "RI"}

// ControlRoles are the flow-control lines, in reporting order.
var ControlRoles = []Role{RoleCTS, RoleRTS, RoleDTR, RoleDSR, RoleDCD, RoleRI}

// String returns the conventional line name, e.g. "RxD".
func (r Role) String() string {
	if r < 0 || r >= numRoles {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// ParseRole parses a role name case-insensitively ("rxd", "CTS", ...).
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for i, name := range roleNames {
		if strings.EqualFold(s, name) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if r < 0 || r >= numRoles {
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
	return []byte(roleNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	role, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// Parity is the parity mode of a frame.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	}
	return fmt.Sprintf("Parity(%d)", int(p))
}

// ParseParity accepts none|odd|even (or n|o|e).
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	}
	return 0, fmt.Errorf("unknown parity %q (want none, odd or even)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Parity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Parity) UnmarshalText(b []byte) error {
	v, err := ParseParity(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// bits returns the number of parity cells in a frame.
func (p Parity) bits() int {
	if p == ParityNone {
		return 0
	}
	return 1
}

// StopBits is the length of the stop region of a frame.
type StopBits int

const (
	StopBits1 StopBits = iota
	StopBits15
	StopBits2
)

func (s StopBits) String() string {
	switch s {
	case StopBits1:
		return "1"
	case StopBits15:
		return "1.5"
	case StopBits2:
		return "2"
	}
	return fmt.Sprintf("StopBits(%d)", int(s))
}

// Periods returns the stop region length in bit periods.
func (s StopBits) Periods() float64 {
	switch s {
	case StopBits15:
		return 1.5
	case StopBits2:
		return 2
	}
	return 1
}

// ParseStopBits accepts "1", "1.5" or "2".
func ParseStopBits(s string) (StopBits, error) {
	switch strings.TrimSpace(s) {
	case "", "1":
		return StopBits1, nil
	case "1.5":
		return StopBits15, nil
	case "2":
		return StopBits2, nil
	}
	return 0, fmt.Errorf("unknown stop bits %q (want 1, 1.5 or 2)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s StopBits) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StopBits) UnmarshalText(b []byte) error {
	v, err := ParseStopBits(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Settings is the raw, unvalidated decoder configuration as supplied by a
// caller. Roles absent from the map are unused.
type Settings struct {
	Roles    map[Role]int `json:"roles"`
	Bits     int          `json:"bits"`
	Parity   Parity       `json:"parity"`
	Stop     StopBits     `json:"stop_bits"`
	Inverted bool         `json:"inverted,omitempty"`
}

// Unused marks a role that is not bound to a channel.
const Unused = -1

// ChannelConfig is a validated role-to-channel binding plus protocol
// parameters. The zero value is not valid; build one with NewChannelConfig.
type ChannelConfig struct {
	channels [numRoles]int
	bits     int
	parity   Parity
	stop     StopBits
	inverted bool
}

// NewChannelConfig validates s and returns an immutable ChannelConfig.
// Channel indices are checked against the 32-channel sample vector here and
// against the actual capture width at decode time.
func NewChannelConfig(s Settings) (ChannelConfig, error) {
	cfg := ChannelConfig{
		bits:     s.Bits,
		parity:   s.Parity,
		stop:     s.Stop,
		inverted: s.Inverted,
	}
	for i := range cfg.channels {
		cfg.channels[i] = Unused
	}

	roles := make([]Role, 0, len(s.Roles))
	for role := range s.Roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	for _, role := range roles {
		if role < 0 || role >= numRoles {
			return ChannelConfig{}, errors.NewConfiguration("role", fmt.Sprintf("unknown role %d", int(role)))
		}
		cfg.channels[role] = s.Roles[role]
	}

	if err := cfg.Validate(32); err != nil {
		return ChannelConfig{}, err
	}
	return cfg, nil
}

// Validate checks the configuration against a capture with the given number of channels.
func (c ChannelConfig) Validate(channelCount int) error {
	if c.bits < 5 || c.bits > 8 {
		return errors.NewConfiguration("bits", fmt.Sprintf("bit count must be between 5 and 8, got %d", c.bits))
	}
	if c.parity < ParityNone || c.parity > ParityEven {
		return errors.NewConfiguration("parity", fmt.Sprintf("invalid parity mode %d", int(c.parity)))
	}
	if c.stop < StopBits1 || c.stop > StopBits2 {
		return errors.NewConfiguration("stop_bits", fmt.Sprintf("invalid stop bits %d", int(c.stop)))
	}
	if c.channels[RoleRxD] == Unused && c.channels[RoleTxD] == Unused {
		return errors.NewConfiguration("rxd", "at least one of RxD or TxD must be assigned")
	}
	for role, ch := range c.channels {
		if ch == Unused {
			continue
		}
		if ch < 0 || ch >= channelCount {
			return errors.NewConfiguration(strings.ToLower(Role(role).String()),
				fmt.Sprintf("%s channel %d out of range (capture has %d channels)", Role(role), ch, channelCount))
		}
	}
	return nil
}

// Channel returns the channel bound to role and whether it is assigned.
func (c ChannelConfig) Channel(role Role) (int, bool) {
	if role < 0 || role >= numRoles {
		return Unused, false
	}
	ch := c.channels[role]
	return ch, ch != Unused
}

// Bits returns the number of data bits per frame.
func (c ChannelConfig) Bits() int { return c.bits }

// Parity returns the parity mode.
func (c ChannelConfig) Parity() Parity { return c.parity }

// Stop returns the stop-bit setting.
func (c ChannelConfig) Stop() StopBits { return c.stop }

// Inverted reports whether line levels are inverted before decoding.
func (c ChannelConfig) Inverted() bool { return c.inverted }

// Settings returns the raw form of c, e.g. for persisting it.
func (c ChannelConfig) Settings() Settings {
	s := Settings{
		Roles:    make(map[Role]int),
		Bits:     c.bits,
		Parity:   c.parity,
		Stop:     c.stop,
		Inverted: c.inverted,
	}
	for role, ch := range c.channels {
		if ch != Unused {
			s.Roles[Role(role)] = ch
		}
	}
	return s
}

// frameCells returns the frame length in bit periods: start + data + parity + stop.
func (c ChannelConfig) frameCells() float64 {
	return float64(1+c.bits+c.parity.bits()) + c.stop.Periods()
}
