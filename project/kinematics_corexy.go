/*
Code for handling the kinematics of cartesian and corexy machines

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package project

import (
	"cncplan/common/config"
)

// CartesianKinematics drives motor i from axis i. Axes beyond the motor
// count are not driven.
type CartesianKinematics struct {
	stepsPerUnit [config.Axes]float64
}

func NewCartesianKinematics(stepsPerUnit [config.Axes]float64) *CartesianKinematics {
	return &CartesianKinematics{stepsPerUnit: stepsPerUnit}
}

func (self *CartesianKinematics) Name() string {
	return config.KinematicsCartesian
}

func (self *CartesianKinematics) Inverse(travel []float64, microseconds float64, steps []float64) {
	for i := range steps {
		steps[i] = travel[i] * self.stepsPerUnit[i]
	}
}

func (self *CartesianKinematics) Forward(motorSteps []float64) []float64 {
	pos := make([]float64, config.Axes)
	for i, s := range motorSteps {
		pos[i] = s / self.stepsPerUnit[i]
	}
	return pos
}

// CorexyKinematics drives the two belt motors from the sum and difference
// of X and Y. Z and A map straight through.
type CorexyKinematics struct {
	stepsPerUnit [config.Axes]float64
}

func NewCorexyKinematics(stepsPerUnit [config.Axes]float64) *CorexyKinematics {
	return &CorexyKinematics{stepsPerUnit: stepsPerUnit}
}

func (self *CorexyKinematics) Name() string {
	return config.KinematicsCorexy
}

func (self *CorexyKinematics) Inverse(travel []float64, microseconds float64, steps []float64) {
	x, y := travel[config.AxisX], travel[config.AxisY]
	steps[0] = (x + y) * self.stepsPerUnit[config.AxisX]
	steps[1] = (x - y) * self.stepsPerUnit[config.AxisY]
	for i := 2; i < len(steps); i++ {
		steps[i] = travel[i] * self.stepsPerUnit[i]
	}
}

func (self *CorexyKinematics) Forward(motorSteps []float64) []float64 {
	pos := make([]float64, config.Axes)
	a := motorSteps[0] / self.stepsPerUnit[config.AxisX]
	b := motorSteps[1] / self.stepsPerUnit[config.AxisY]
	pos[config.AxisX] = 0.5 * (a + b)
	pos[config.AxisY] = 0.5 * (a - b)
	for i := 2; i < len(motorSteps); i++ {
		pos[i] = motorSteps[i] / self.stepsPerUnit[i]
	}
	return pos
}
