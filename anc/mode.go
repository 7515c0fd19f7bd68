package anc

// Mode is the operating mode of one controller channel, as reported by the device.
type Mode string

// Modes known to the controller. Any other string reported by the device is
// carried verbatim.
const (
	ModeStep        Mode = "stp"
	ModeCapacitance Mode = "cap"
	ModeGround      Mode = "gnd"
	ModeInput       Mode = "inp"
	ModeOffset      Mode = "off"
)

func (m Mode) String() string {
	return string(m)
}

// IsStep reports whether m is step mode.
func (m Mode) IsStep() bool {
	return m == ModeStep
}
