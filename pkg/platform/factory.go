package platform

import (
	"errors"
	"fmt"
	"strings"

	"fedialt/pkg/config"
	"fedialt/pkg/federr"
	"fedialt/pkg/logger"
	"fedialt/pkg/transport"
)

// Constructor builds an adapter from validated configuration.
type Constructor func(cfg config.PlatformConfig, session *transport.Session, log logger.Logger) (Adapter, error)

// Registration describes one platform to the factory: its name, its
// constructor, and its pure detection function.
type Registration struct {
	Name   string
	New    Constructor
	Detect DetectFunc
}

// Factory is the single construction point for adapters. Resolution order,
// first match wins: explicit api_type, legacy platform_type, legacy
// is_pixelfed flag, auto-detection in registration order, and finally the
// Pixelfed adapter as the documented permissive default.
type Factory struct {
	order    []string
	registry map[string]Registration
}

// NewFactory returns a factory with the built-in platforms registered.
// Pixelfed registers first so auto-detection tries it first.
func NewFactory() *Factory {
	f := &Factory{registry: make(map[string]Registration)}

	// Built-in registrations satisfy the contract by construction.
	_ = f.Register(Registration{Name: "pixelfed", New: NewPixelfed, Detect: DetectPixelfed})
	_ = f.Register(Registration{Name: "mastodon", New: NewMastodon, Detect: DetectMastodon})
	_ = f.Register(Registration{Name: "pleroma", New: NewPleroma, Detect: DetectPleroma})

	return f
}

// Register adds a platform. Registrations missing any part of the adapter
// contract are rejected.
func (f *Factory) Register(reg Registration) error {
	name := strings.ToLower(strings.TrimSpace(reg.Name))
	if name == "" {
		return errors.New("platform registration requires a name")
	}
	if reg.New == nil {
		return fmt.Errorf("platform %q registration requires a constructor", name)
	}
	if reg.Detect == nil {
		return fmt.Errorf("platform %q registration requires a detect function", name)
	}
	if _, exists := f.registry[name]; exists {
		return fmt.Errorf("platform %q is already registered", name)
	}

	reg.Name = name
	f.registry[name] = reg
	f.order = append(f.order, name)
	return nil
}

// Names returns all registered platform names in registration order.
func (f *Factory) Names() []string {
	names := make([]string, len(f.order))
	copy(names, f.order)
	return names
}

// Resolve determines which platform a configuration addresses without
// constructing an adapter.
func (f *Factory) Resolve(cfg config.PlatformConfig) (string, error) {
	if strings.TrimSpace(cfg.InstanceURL) == "" {
		return "", &federr.AdapterError{
			Op:  "resolve platform",
			Err: errors.New("instance URL is required"),
		}
	}

	if name := strings.ToLower(strings.TrimSpace(cfg.APIType)); name != "" {
		if _, ok := f.registry[name]; !ok {
			return "", &federr.UnsupportedPlatformError{Requested: name, Registered: f.Names()}
		}
		return name, nil
	}

	if name := strings.ToLower(strings.TrimSpace(cfg.PlatformType)); name != "" {
		if _, ok := f.registry[name]; !ok {
			return "", &federr.UnsupportedPlatformError{Requested: name, Registered: f.Names()}
		}
		return name, nil
	}

	if cfg.IsPixelfed {
		return "pixelfed", nil
	}

	if name, err := f.DetectPlatform(cfg.InstanceURL); err == nil {
		return name, nil
	}

	// Permissive default, not a silent failure: recorded here and in the
	// factory documentation.
	return "pixelfed", nil
}

// DetectPlatform runs every registered detector against the instance URL
// in registration order. Unlike Resolve it applies no fallback: an
// inconclusive detection is an error.
func (f *Factory) DetectPlatform(instanceURL string) (string, error) {
	for _, name := range f.order {
		if f.registry[name].Detect(instanceURL) {
			return name, nil
		}
	}
	return "", &federr.DetectionError{
		InstanceURL: instanceURL,
		Reason:      "no registered platform matched",
	}
}

// NewAdapter resolves and constructs the adapter for a configuration.
func (f *Factory) NewAdapter(cfg config.PlatformConfig, session *transport.Session, log logger.Logger) (Adapter, error) {
	name, err := f.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return f.registry[name].New(cfg, session, log)
}
