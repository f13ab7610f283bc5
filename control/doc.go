// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot reload, metrics export and debug introspection for the
// packet path.
//
// Provides:
//   - Config loading and validation, and a ConfigStore with reload listeners
//   - Watch, which reloads the config file through fsnotify
//   - Collector, a Prometheus collector over queue and pool counters
//   - DebugProbes with queue, pool and platform state probes
//
// Everything here reads the queue and pool under the caller's lock; none of
// it is on the packet hot path.
package control
