package separation

import (
	"fmt"
	"strings"
)

// Method selects the separation backend.
type Method string

const (
	MethodAuto Method = "auto"
	MethodDSP  Method = "dsp"
	MethodML   Method = "ml"
)

// ParseMethod accepts a method name or one of its aliases.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return MethodAuto, nil
	case "dsp", "bandpass":
		return MethodDSP, nil
	case "ml", "demucs":
		return MethodML, nil
	}
	return "", fmt.Errorf("unknown separation method %q (want auto, dsp or ml)", s)
}

// Quality is a speed/fidelity preset shared by both backends.
type Quality string

const (
	QualityFast     Quality = "fast"
	QualityBalanced Quality = "balanced"
	QualityBest     Quality = "best"
)

// ParseQuality parses a quality preset name.
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case "":
		return QualityBalanced, nil
	case QualityFast, QualityBalanced, QualityBest:
		return q, nil
	}
	return "", fmt.Errorf("unknown separation quality %q (want fast, balanced or best)", s)
}

type preset struct {
	order  int
	gate   *Gate
	shifts int // demucs random-shift passes
}

func (q Quality) preset() preset {
	switch q {
	case QualityFast:
		return preset{order: 2, shifts: 0}
	case QualityBest:
		return preset{
			order:  6,
			gate:   &Gate{ThresholdDB: -35, Attack: 0.001, Release: 0.08},
			shifts: 2,
		}
	default:
		return preset{
			order:  4,
			gate:   &Gate{ThresholdDB: -30, Attack: 0.001, Release: 0.05},
			shifts: 1,
		}
	}
}

// FilterOrder returns the Butterworth order used by the preset.
func (q Quality) FilterOrder() int { return q.preset().order }

// Device is the compute device requested for the ML backend.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
)

// ParseDevice parses a device name; "gpu" means CUDA.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DeviceAuto, nil
	case "gpu":
		return DeviceCUDA, nil
	case DeviceAuto, DeviceCPU, DeviceCUDA, DeviceMPS:
		return d, nil
	}
	return "", fmt.Errorf("unknown device %q (want auto, cpu, cuda or mps)", s)
}

// DefaultModel is the pretrained source-separation model.
const DefaultModel = "htdemucs"

// Config is the flat, user-facing separation configuration as read from
// flags, form fields or JSON.
type Config struct {
	Method   Method  `json:"method"`
	Model    string  `json:"model"`
	Device   Device  `json:"device"`
	Quality  Quality `json:"quality"`
	CacheDir string  `json:"cache_dir,omitempty"`
	// Strict makes an explicit ML request fail instead of falling back.
	Strict bool `json:"strict,omitempty"`
}

// DefaultConfig prefers ML when it is installed.
func DefaultConfig() Config {
	return Config{
		Method:  MethodAuto,
		Model:   DefaultModel,
		Device:  DeviceAuto,
		Quality: QualityBalanced,
	}
}

// Strategy converts c into its tagged form. Unknown fields are rejected.
func (c Config) Strategy() (Strategy, error) {
	quality, err := ParseQuality(string(c.Quality))
	if err != nil {
		return nil, err
	}
	method, err := ParseMethod(string(c.Method))
	if err != nil {
		return nil, err
	}
	if method == MethodDSP {
		return DSPConfig{Quality: quality}, nil
	}

	device, err := ParseDevice(string(c.Device))
	if err != nil {
		return nil, err
	}
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	return MLConfig{
		Model:    model,
		Device:   device,
		Quality:  quality,
		CacheDir: c.CacheDir,
		Strict:   c.Strict,
		Explicit: method == MethodML,
	}, nil
}
