package separation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/james-see/drum2midi/pkg/audio"
)

// ErrBackendUnavailable is returned when ML separation is explicitly
// required in strict mode and cannot run.
var ErrBackendUnavailable = errors.New("separation backend unavailable")

// Separator splits a mix into named stems.
type Separator interface {
	Separate(ctx context.Context, sig audio.Signal, stems []string) (map[string]audio.Signal, error)
}

// Strategy is a resolved separation configuration: DSPConfig or MLConfig.
type Strategy interface {
	Method() Method
	separate(ctx context.Context, env Env, sig audio.Signal, stems []string) (Result, error)
}

// DSPConfig selects the filter bank.
type DSPConfig struct {
	Quality Quality
}

// MLConfig selects the pretrained model, falling back to the filter bank
// when the model cannot run. Explicit marks a user request for ML rather
// than an automatic preference; only Explicit with Strict disables the
// fallback.
type MLConfig struct {
	Model    string
	Device   Device
	Quality  Quality
	CacheDir string
	Strict   bool
	Explicit bool
}

// Method is always MethodDSP.
func (DSPConfig) Method() Method { return MethodDSP }

// Method reports MethodML when the model was asked for by name and
// MethodAuto otherwise.
func (c MLConfig) Method() Method {
	if c.Explicit {
		return MethodML
	}
	return MethodAuto
}

// Env carries caller-owned state shared across separations.
type Env struct {
	Models *ModelCache
	Logger *slog.Logger
}

// Info describes how a separation was actually performed.
type Info struct {
	Method         Method  `json:"method"`
	Model          string  `json:"model"`
	Device         Device  `json:"device"`
	Quality        Quality `json:"quality"`
	MLAvailable    bool    `json:"ml_available"`
	RuntimeSec     float64 `json:"runtime_sec"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// Result is the output of Separate.
type Result struct {
	Stems map[string]audio.Signal
	Info  Info
}

// Separate runs the strategy on sig and records its wall-clock runtime.
func Separate(ctx context.Context, s Strategy, env Env, sig audio.Signal, stems []string) (Result, error) {
	start := time.Now()
	res, err := s.separate(ctx, env, sig, stems)
	if err != nil {
		return Result{}, err
	}
	res.Info.RuntimeSec = time.Since(start).Seconds()
	return res, nil
}

func (c DSPConfig) separate(ctx context.Context, env Env, sig audio.Signal, stems []string) (Result, error) {
	out, err := NewFilterBank(c.Quality, env.Logger).Separate(ctx, sig, stems)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Stems: out,
		Info: Info{
			Method:      MethodDSP,
			Model:       "butterworth",
			Device:      DeviceCPU,
			Quality:     c.Quality,
			MLAvailable: env.Models != nil && env.Models.Available(),
		},
	}, nil
}

func (c MLConfig) separate(ctx context.Context, env Env, sig audio.Signal, stems []string) (Result, error) {
	log := logger(env.Logger).With("model", c.Model, "device", string(c.Device))
	models := env.Models
	if models == nil {
		models = NewModelCache(nil)
	}

	model, err := models.Load(ctx, c.Model, c.Device, c.CacheDir)
	if err != nil {
		if c.Explicit && c.Strict {
			return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if c.Explicit {
			log.Warn("ML separation unavailable, using filter bank", "reason", err.Error())
		} else {
			log.Info("ML separation not available, using filter bank", "reason", err.Error())
		}
		return c.fallback(ctx, env, sig, stems, false, err)
	}

	out, err := model.Separate(ctx, sig, stems, c.Quality, env.Logger)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, err
		}
		if c.Explicit && c.Strict {
			return Result{}, fmt.Errorf("ML separation failed: %w", err)
		}
		log.Warn("ML separation failed, using filter bank", "reason", err.Error())
		return c.fallback(ctx, env, sig, stems, true, err)
	}

	return Result{
		Stems: out,
		Info: Info{
			Method:      MethodML,
			Model:       c.Model,
			Device:      c.Device,
			Quality:     c.Quality,
			MLAvailable: true,
		},
	}, nil
}

func (c MLConfig) fallback(ctx context.Context, env Env, sig audio.Signal, stems []string, available bool, cause error) (Result, error) {
	res, err := DSPConfig{Quality: c.Quality}.separate(ctx, env, sig, stems)
	if err != nil {
		return Result{}, err
	}
	res.Info.MLAvailable = available
	res.Info.FallbackReason = cause.Error()
	return res, nil
}
