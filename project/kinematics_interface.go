package project

import (
	"fmt"

	"cncplan/common/config"
)

// Motors is the number of step channels on the board.
const Motors = 4

// Kinematics maps an axis-space travel vector to motor steps and back.
type Kinematics interface {
	Inverse(travel []float64, microseconds float64, steps []float64)
	Forward(motorSteps []float64) []float64
	Name() string
}

func NewKinematics(cfg *config.MachineConfig) (Kinematics, error) {
	switch cfg.Kinematics {
	case config.KinematicsCartesian, "":
		return NewCartesianKinematics(cfg.StepsPerUnit()), nil
	case config.KinematicsCorexy:
		return NewCorexyKinematics(cfg.StepsPerUnit()), nil
	}
	return nil, fmt.Errorf("unknown kinematics %q", cfg.Kinematics)
}
