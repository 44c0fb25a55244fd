package addrmap

import (
	"fmt"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
)

// DefaultCatalog is the authoritative address set for the rack as
// currently wired. R0 NodeIds are final; R1 and R2 are placeholders
// kept in the catalog so their entries only need NodeIds and an
// enabled flag once the hardware is confirmed.
func DefaultCatalog() []ReactorConfig {
	r0 := ReactorConfig{
		Name:    "R0",
		Enabled: true,
		Signals: []SignalConfig{
			{Name: "ph", NodeID: "ns=2;i=3", Kind: domain.KindNumeric},
			{Name: "do", NodeID: "ns=2;i=6", Kind: domain.KindNumeric},
		},
		Methods: map[string]string{
			"set_pairing": "ns=2;i=232",
			"unpair":      "ns=2;i=235",
		},
	}

	// Biomass channels 0..9 are the 415..680nm, clear and nir
	// wavelengths, contiguous at ns=2;i=9..18.
	for i := 0; i < 10; i++ {
		r0.Signals = append(r0.Signals, SignalConfig{
			Name:   fmt.Sprintf("biomass_%d", i),
			NodeID: fmt.Sprintf("ns=2;i=%d", 9+i),
			Kind:   domain.KindNumeric,
		})
	}

	// pwm0 ControlMethod variables. The method selector is an enum
	// ("PWM", "PID", ...) and therefore readable but never logged.
	r0.Signals = append(r0.Signals,
		SignalConfig{Name: "pwm0_method", NodeID: "ns=2;i=23", Kind: domain.KindEnum},
		SignalConfig{Name: "pwm0_time_on", NodeID: "ns=2;i=24", Kind: domain.KindNumeric},
		SignalConfig{Name: "pwm0_time_off", NodeID: "ns=2;i=25", Kind: domain.KindNumeric},
		SignalConfig{Name: "pwm0_lb", NodeID: "ns=2;i=26", Kind: domain.KindNumeric},
		SignalConfig{Name: "pwm0_ub", NodeID: "ns=2;i=27", Kind: domain.KindNumeric},
		SignalConfig{Name: "pwm0_setpoint", NodeID: "ns=2;i=28", Kind: domain.KindNumeric},
	)

	return []ReactorConfig{
		r0,
		{Name: "R1", Enabled: false},
		{Name: "R2", Enabled: false},
	}
}
