package monitor

import (
	"fmt"

	"github.com/grandcat/zeroconf"

	"github.com/muurk/tuyatap/internal/capture"
	"github.com/muurk/tuyatap/internal/version"
)

const (
	// ServiceType is the mDNS service type the monitor advertises under
	ServiceType = "_tuyatap._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."
)

// advertise registers the monitor endpoint over mDNS so dashboards on the
// local network find it without configuration. The returned server must be
// shut down when the monitor stops.
func advertise(info *capture.SessionInfo, port int) (*zeroconf.Server, error) {
	instance := "tuyatap"
	txt := []string{"v=" + version.Version}

	if info != nil && info.SessionID != "" {
		instance = "tuyatap-" + shortID(info.SessionID)
		txt = append(txt, "session="+info.SessionID)
		if info.Baud != 0 {
			txt = append(txt, fmt.Sprintf("baud=%d", info.Baud))
		}
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return server, nil
}

// shortID trims a UUID down to its first group for use in instance names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
