// Package provider implements a generic provider framework using Go generics
// for swappable backends with runtime switching capabilities.
//
// It provides a registry for managing multiple provider implementations with
// factory-based instantiation, availability checking, and runtime selection.
//
// Opt-in lifecycle:
//   - Initializable: providers that need setup (dial a sidecar, validate binary)
//   - Closeable: providers that hold resources (connections, daemon processes)
//
// # Usage
//
//	reg := provider.NewRegistry[MyProvider]()
//	reg.RegisterFactory("default", myFactory)
//	mgr := provider.NewManager(reg, &provider.HealthCheckSelector[MyProvider]{})
//	mgr.Initialize("default", cfg)
//	p, _ := mgr.Get(ctx)
package provider
