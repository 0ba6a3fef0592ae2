package power

// DefaultThreshold is the charge level, in percent, below which a host on
// battery is shut down.
const DefaultThreshold = 20

// Policy decides whether the protected host must be shut down.
type Policy struct {
	Threshold int
}

// DefaultPolicy returns a policy using DefaultThreshold.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold}
}

// Decide returns true only when the UPS is off AC power, not charging,
// discharging and below the threshold. Any unknown input yields false.
func (p Policy) Decide(s State) bool {
	return s.ACPower == FlagOff &&
		s.Charging == FlagOff &&
		s.Discharging == FlagOn &&
		s.ChargeLevelKnown &&
		s.ChargeLevel < p.Threshold
}
