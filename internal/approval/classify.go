// Package approval implements the tiered configuration-approval engine:
// sensitivity classification, tier routing, single-use execution tokens,
// atomic approve-and-enqueue writes, and rollback of failed or
// disconnected applications.
package approval

import (
	"pdsno.io/controller/internal/domain"
)

// Classify derives a request's ClassifiedSensitivity from its declared
// sensitivity and the devices it targets, escalating (never
// de-escalating) when a targeted device's Role indicates higher blast
// radius than the proposer declared. A declared sensitivity above what the
// devices alone would imply is always honored.
func Classify(declared domain.Sensitivity, devices []*domain.Device) domain.Sensitivity {
	implied := impliedByDevices(devices)
	if rank(implied) > rank(declared) {
		return implied
	}
	return declared
}

func impliedByDevices(devices []*domain.Device) domain.Sensitivity {
	sensitivity := domain.SensitivityLow
	for _, d := range devices {
		switch d.Role {
		case "backbone", "core":
			if rank(domain.SensitivityEmergency) > rank(sensitivity) {
				sensitivity = domain.SensitivityHigh
			}
		case "distribution":
			if rank(domain.SensitivityMedium) > rank(sensitivity) {
				sensitivity = domain.SensitivityMedium
			}
		}
	}
	return sensitivity
}

func rank(s domain.Sensitivity) int {
	switch s {
	case domain.SensitivityLow:
		return 0
	case domain.SensitivityMedium:
		return 1
	case domain.SensitivityHigh:
		return 2
	case domain.SensitivityEmergency:
		return 3
	default:
		return 0
	}
}
