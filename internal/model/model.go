package model

import "time"

type Kind string

const (
	KindTempHumidity Kind = "TEMP_AHT21"
	KindAirQuality   Kind = "CO2_ENS160"
	KindColor        Kind = "RGB_TCS34725"
	KindInfrared     Kind = "IR_MLX90614"
	KindUV           Kind = "UV_LTR390"
	KindCamera       Kind = "Camera"
)

// Kinds lists every sensor kind the node knows how to build, camera last.
var Kinds = []Kind{KindTempHumidity, KindAirQuality, KindColor, KindInfrared, KindUV, KindCamera}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// NodeKey is the attribute name carrying the node identifier in every rendered reading.
const NodeKey = "Node"

// Reading is one sensor's reduced output for one cycle.
type Reading struct {
	Sensor Kind             `json:"sensor"`
	Node   int              `json:"node"`
	Values map[string]Value `json:"values"`
}

// Snapshot is the immutable per-cycle aggregate of every reading that reduced successfully.
type Snapshot struct {
	Node      int              `json:"node"`
	Timestamp time.Time        `json:"timestamp"`
	Readings  map[Kind]Reading `json:"readings"`
}

// Data renders the snapshot as sensor kind -> attribute -> value, with the node id inside
// every attribute map. This is the shape the hub and the storage writers expect.
func (s *Snapshot) Data() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.Readings))
	for kind, r := range s.Readings {
		attrs := make(map[string]any, len(r.Values)+1)
		for name, v := range r.Values {
			attrs[name] = v
		}
		attrs[NodeKey] = r.Node
		out[string(kind)] = attrs
	}
	return out
}

type GPIOPin struct {
	Number     int  `json:"number"`
	ActiveHigh bool `json:"active_high"`
}
