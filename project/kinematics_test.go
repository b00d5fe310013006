package project

import (
	"testing"

	"cncplan/common/config"
)

func TestCartesianKinematics(t *testing.T) {
	k := NewCartesianKinematics([config.Axes]float64{80, 80, 400, 10, 1, 1})
	travel := []float64{1, -2, 0.5, 3, 9, 9}
	steps := make([]float64, Motors)
	k.Inverse(travel, 5000, steps)
	want := []float64{80, -160, 200, 30}
	for i := range want {
		if !nearlyEqual(steps[i], want[i], 1e-12) {
			t.Fatalf("motor %d: %v, want %v", i, steps[i], want[i])
		}
	}
	back := k.Forward(steps)
	for i := 0; i < Motors; i++ {
		if !nearlyEqual(back[i], travel[i], 1e-12) {
			t.Fatalf("axis %d round trip %v", i, back[i])
		}
	}
}

func TestCorexyKinematics(t *testing.T) {
	k := NewCorexyKinematics([config.Axes]float64{100, 100, 400, 1, 1, 1})
	steps := make([]float64, Motors)
	k.Inverse([]float64{1, 0, 0, 0, 0, 0}, 5000, steps)
	if steps[0] != 100 || steps[1] != 100 {
		t.Fatalf("pure x moves both belts the same way: %v", steps)
	}
	k.Inverse([]float64{0, 1, 0, 0, 0, 0}, 5000, steps)
	if steps[0] != 100 || steps[1] != -100 {
		t.Fatalf("pure y moves belts opposite: %v", steps)
	}
	k.Inverse([]float64{2, 0.5, -1, 0, 0, 0}, 5000, steps)
	back := k.Forward(steps)
	for i, want := range []float64{2, 0.5, -1} {
		if !nearlyEqual(back[i], want, 1e-12) {
			t.Fatalf("axis %d round trip %v, want %v", i, back[i], want)
		}
	}
}

func TestNewKinematics(t *testing.T) {
	cfg := config.Defaults()
	k, err := NewKinematics(cfg)
	if err != nil || k.Name() != config.KinematicsCartesian {
		t.Fatalf("default kinematics %v %v", k, err)
	}
	cfg.Kinematics = config.KinematicsCorexy
	if k, err = NewKinematics(cfg); err != nil || k.Name() != config.KinematicsCorexy {
		t.Fatalf("corexy %v %v", k, err)
	}
	cfg.Kinematics = "delta"
	if _, err = NewKinematics(cfg); err == nil {
		t.Fatalf("unknown kinematics accepted")
	}
}

func TestPlannerDrivesCorexyBelts(t *testing.T) {
	cfg := config.Defaults()
	rec := &prepRecorder{}
	k := NewCorexyKinematics(unitSteps)
	p := NewPlanner(cfg, rec, k)
	mustAline(t, p, lineTo(p, 3, 4, 1000, 1))
	drain(t, p)
	pos := k.Forward(rec.totals[:])
	if !nearlyEqual(pos[config.AxisX], 3, 1e-9) || !nearlyEqual(pos[config.AxisY], 4, 1e-9) {
		t.Fatalf("belts put the head at %v", pos)
	}
}
