package canvas

import "math"

// CooldownConfig mirrors the server's placement cooldown curve.
type CooldownConfig struct {
	GlobalOffset float64 `yaml:"global_offset"`
	UserOffset   float64 `yaml:"user_offset"`
	Steepness    float64 `yaml:"steepness"`
	Multiplier   float64 `yaml:"multiplier"`
}

func DefaultCooldown() CooldownConfig {
	return CooldownConfig{
		GlobalOffset: 6.5,
		UserOffset:   11.96,
		Steepness:    2.5,
		Multiplier:   1,
	}
}

// CooldownForUsers is the seconds between placements with users online.
func CooldownForUsers(users int, cfg CooldownConfig) float64 {
	return (cfg.Steepness*math.Sqrt(float64(users)+cfg.UserOffset) + cfg.GlobalOffset) * cfg.Multiplier
}

// CooldownForStack is the seconds the stack stays at available pixels
// before gaining one more. Summing it over 0..n-1 gives the time to build a
// stack of n.
func CooldownForStack(users, available int, cfg CooldownConfig) float64 {
	cooldown := CooldownForUsers(users, cfg)
	switch {
	case available < 0:
		return 0
	case available == 0:
		return cooldown
	}
	// sum of 0..available-2
	sum := 0
	for i := 0; i < available-1; i++ {
		sum += i
	}
	return cooldown * 3 * float64(1+available+sum)
}
