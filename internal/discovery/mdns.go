// ABOUTME: mDNS discovery of show daemons and advertisement of the panel
// ABOUTME: Browses for _fppd._tcp hosts and advertises _glowsync._tcp
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/hashicorp/mdns"
)

// Service types on the local network.
const (
	DaemonService = "_fppd._tcp"
	PanelService  = "_glowsync._tcp"
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int // panel listen port, for advertisement
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	daemons chan *DaemonInfo
}

// DaemonInfo describes a discovered show daemon
type DaemonInfo struct {
	Name string
	Host string
	Port int
}

// BaseURL returns the daemon's HTTP API address.
func (d *DaemonInfo) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.Host, d.Port)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		daemons: make(chan *DaemonInfo, 10),
	}
}

// Advertise advertises this panel via mDNS so audio clients can find it
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		PanelService,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=/sync"},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, PanelService)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for show daemons on the local network
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for daemons
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				daemon := &DaemonInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				log.Printf("Discovered show daemon: %s at %s:%d", daemon.Name, daemon.Host, daemon.Port)

				select {
				case m.daemons <- daemon:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: DaemonService,
			Domain:  "local",
			Timeout: 3,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Daemons returns the channel of discovered show daemons
func (m *Manager) Daemons() <-chan *DaemonInfo {
	return m.daemons
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
