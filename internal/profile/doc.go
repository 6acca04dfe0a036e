// Package profile provides device profile management for the Tuyatap project.
//
// This package manages YAML profile files that store user-authored metadata
// about a device's data points: labels, display units, scale factors and enum
// value names. A profile captures the hypotheses a user forms while watching
// traffic ("DP 2 looks like the target temperature in half degrees").
//
// # Profiles Are Advisory
//
// IMPORTANT: The decoder never consults a profile. Frames and data points are
// decoded identically with or without one. A profile only changes how decoded
// values are rendered in reports and the watch view, so a wrong entry can
// mislabel a display but can never corrupt a capture or an analysis.
//
// # Profile File Location
//
// The default profile is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/tuyatap/profile.yaml or $HOME/.config/tuyatap/profile.yaml
//   - macOS: $HOME/.config/tuyatap/profile.yaml
//   - Windows: %LOCALAPPDATA%\tuyatap\profile.yaml
//
// Commands also accept an explicit path, so profiles for several devices can
// live side by side.
//
// # Usage Example
//
//	// Load a profile for one device
//	p, err := profile.Load("boiler.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Record a hypothesis about DP 2
//	p.DataPoints[2] = &profile.DataPointMeta{
//	    Label: "target_temp",
//	    Unit:  "°C",
//	    Scale: 0.5,
//	}
//
//	// Save changes atomically
//	if err := p.Save("boiler.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// File operations are protected by a mutex to ensure atomic writes.
package profile
