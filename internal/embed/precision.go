package embed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultMinFP16Capability is the lowest accelerator compute capability
// that runs half-precision inference.
const DefaultMinFP16Capability = 7.0

// DeviceProbe reports the compute capability of the accelerator a model
// runs on. ok is false when the capability cannot be determined.
type DeviceProbe interface {
	ComputeCapability(device string) (capability float64, ok bool)
}

// ConfigProbe reports a capability taken from configuration. Zero means unknown.
type ConfigProbe float64

// ComputeCapability implements DeviceProbe.
func (p ConfigProbe) ComputeCapability(string) (float64, bool) {
	if p <= 0 {
		return 0, false
	}
	return float64(p), true
}

// CommandRunner runs a short-lived command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// NvidiaSMI asks nvidia-smi for the compute capability of a CUDA device
// ("cuda" or "cuda:N"). Other devices, a missing binary and unparseable
// output all report unknown.
type NvidiaSMI struct {
	Run     CommandRunner
	Timeout time.Duration
}

// NewNvidiaSMI returns a DeviceProbe that executes nvidia-smi.
func NewNvidiaSMI() *NvidiaSMI {
	return &NvidiaSMI{Run: runCommand, Timeout: 5 * time.Second}
}

// ComputeCapability implements DeviceProbe.
func (p *NvidiaSMI) ComputeCapability(device string) (float64, bool) {
	index, ok := cudaIndex(device)
	if !ok {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	out, err := p.Run(ctx, "nvidia-smi", "--query-gpu=compute_cap", "--format=csv,noheader", "-i", strconv.Itoa(index))
	if err != nil {
		slog.Debug("compute_capability_unavailable", slog.String("device", device), slog.String("error", err.Error()))
		return 0, false
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	capability, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil || capability <= 0 {
		slog.Debug("compute_capability_unparsed", slog.String("device", device), slog.String("output", line))
		return 0, false
	}
	return capability, true
}

// cudaIndex parses "cuda" and "cuda:N".
func cudaIndex(device string) (int, bool) {
	name, num, hasNum := strings.Cut(strings.ToLower(strings.TrimSpace(device)), ":")
	if name != "cuda" {
		return 0, false
	}
	if !hasNum {
		return 0, true
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return "", fmt.Errorf("%s: %s", name, detail)
		}
		return "", err
	}
	return stdout.String(), nil
}

// CapabilitySource returns detect, unless configured is positive, in which
// case the configured value overrides detection and the override is logged.
func CapabilitySource(configured float64, device string, detect DeviceProbe) DeviceProbe {
	if configured > 0 {
		slog.Info("compute_capability_override",
			slog.String("device", device),
			slog.Float64("capability", configured))
		return ConfigProbe(configured)
	}
	return detect
}

// PrecisionInputs describes the runtime a model executes on.
type PrecisionInputs struct {
	ForceFP32 bool
	// Runtime is the inference backend, e.g. "native" or "onnx".
	Runtime string
	// Device is "cpu" or an accelerator name such as "cuda:0".
	Device string
}

// SelectDType picks fp16 only when the backend is not forced to fp32,
// is not ONNX, runs on an accelerator, and the probed capability reaches
// minCapability. Everything else, including an unknown capability, is fp32.
func SelectDType(in PrecisionInputs, probe DeviceProbe, minCapability float64) DType {
	if in.ForceFP32 {
		return FP32
	}
	if strings.EqualFold(strings.TrimSpace(in.Runtime), "onnx") {
		return FP32
	}
	device := strings.ToLower(strings.TrimSpace(in.Device))
	if device == "" || device == "cpu" {
		return FP32
	}
	if probe == nil {
		return FP32
	}
	if minCapability <= 0 {
		minCapability = DefaultMinFP16Capability
	}
	capability, ok := probe.ComputeCapability(device)
	if !ok || capability < minCapability {
		return FP32
	}
	return FP16
}
