package config

import "fmt"

// Relaxation returns literature T1 and T2 in seconds for gm, wm or csf at
// 3 T or 7 T. Other fields fall back to the 3 T values.
func Relaxation(tissue string, b0 float64) (t1, t2 float64, err error) {
	high := b0 > 4 && b0 < 9
	switch tissue {
	case "gm":
		if high {
			return 1.67, 43e-3, nil
		}
		return 1.3, 75e-3, nil
	case "wm":
		if high {
			return 1.1, 60e-3, nil
		}
		return 0.8, 110e-3, nil
	case "csf":
		if high {
			return 4.4, 0.9, nil
		}
		return 4.1, 2, nil
	}
	return 0, 0, fmt.Errorf("unknown tissue %q", tissue)
}

func amide(r1 float64) PoolConfig {
	return PoolConfig{Name: "amide", R1: r1, R2: 1 / 100e-3, F: 72e-3 / 111, DW: 3.5, K: 30}
}

func creatine(r1 float64) PoolConfig {
	return PoolConfig{Name: "creatine", R1: r1, R2: 1 / 100e-3, F: 20e-3 / 111, DW: 2, K: 1100}
}

func semiSolid(f float64, lineshape string) *MTPoolConfig {
	return &MTPoolConfig{
		PoolConfig: PoolConfig{Name: "mt", R1: 1, R2: 1e5, F: f, DW: -2, K: 23},
		Lineshape:  lineshape,
	}
}
