// Package intel matches IPs and domains against locally maintained threat
// indicator and blocklist files, and enriches alerts on read paths.
package intel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"hostline-siem/internal/alertstore"
)

// Config locates the intel data files.
type Config struct {
	IndicatorFile string `yaml:"indicator_file"`
	BlocklistFile string `yaml:"blocklist_file"`
}

// DefaultConfig returns the default intel file locations.
func DefaultConfig() Config {
	return Config{
		IndicatorFile: "data/threat_intel.json",
		BlocklistFile: "data/blocklist.json",
	}
}

// Indicator is one record of the indicator feed file.
type Indicator struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	Risk        string `json:"risk"`
	Source      string `json:"source"`
	Description string `json:"description"`
}

// Match is the result of a successful indicator or blocklist lookup.
type Match struct {
	Indicator   string `json:"indicator"`
	Type        string `json:"type"`
	Risk        string `json:"risk"`
	Source      string `json:"source"`
	Description string `json:"description"`
}

// Enriched is an alert with its intel matches attached.
type Enriched struct {
	alertstore.Alert
	ThreatIntel    []Match `json:"threat_intel"`
	ThreatDetected bool    `json:"threat_detected"`
}

type indicatorFeed struct {
	Indicators  []Indicator `json:"indicators"`
	LastUpdated string      `json:"last_updated,omitempty"`
}

type blocklist struct {
	BlockedIPs     []string `json:"blocked_ips"`
	BlockedDomains []string `json:"blocked_domains"`
}

// Service answers IP and domain lookups from data loaded once at
// construction. The blocklist takes precedence over the indicator feed
// and always rates CRITICAL.
type Service struct {
	config Config

	mu        sync.RWMutex
	feed      indicatorFeed
	blocklist blocklist
}

// NewService loads both data files. A missing file yields an empty data
// set; a malformed file is a configuration error.
func NewService(cfg Config) (*Service, error) {
	s := &Service{config: cfg}

	if err := loadJSON(cfg.IndicatorFile, &s.feed); err != nil {
		return nil, fmt.Errorf("intel: load indicators: %w", err)
	}
	if err := loadJSON(cfg.BlocklistFile, &s.blocklist); err != nil {
		return nil, fmt.Errorf("intel: load blocklist: %w", err)
	}
	return s, nil
}

func loadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// CheckIP returns the match for an IP, or nil when it is unknown.
func (s *Service) CheckIP(ip string) *Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, blocked := range s.blocklist.BlockedIPs {
		if blocked == ip {
			return &Match{
				Indicator:   ip,
				Type:        "ip",
				Risk:        "CRITICAL",
				Source:      "local_blocklist",
				Description: "IP found in local blocklist",
			}
		}
	}
	return s.checkFeed("ip", ip)
}

// CheckDomain returns the match for a domain, or nil when it is unknown.
func (s *Service) CheckDomain(domain string) *Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, blocked := range s.blocklist.BlockedDomains {
		if blocked == domain {
			return &Match{
				Indicator:   domain,
				Type:        "domain",
				Risk:        "CRITICAL",
				Source:      "local_blocklist",
				Description: "Domain found in local blocklist",
			}
		}
	}
	return s.checkFeed("domain", domain)
}

func (s *Service) checkFeed(kind, value string) *Match {
	for _, ind := range s.feed.Indicators {
		if ind.Type != kind || ind.Value != value {
			continue
		}
		risk := ind.Risk
		if risk == "" {
			risk = "HIGH"
		}
		source := ind.Source
		if source == "" {
			source = "local"
		}
		return &Match{
			Indicator:   value,
			Type:        kind,
			Risk:        risk,
			Source:      source,
			Description: ind.Description,
		}
	}
	return nil
}

// EnrichAlert attaches intel matches for the alert's source and
// destination IPs. ThreatIntel is always non-nil so the field serializes
// as an empty list, not null.
func (s *Service) EnrichAlert(alert alertstore.Alert) Enriched {
	matches := []Match{}
	if alert.SourceIP != "" {
		if m := s.CheckIP(alert.SourceIP); m != nil {
			matches = append(matches, *m)
		}
	}
	if alert.DestinationIP != "" {
		if m := s.CheckIP(alert.DestinationIP); m != nil {
			matches = append(matches, *m)
		}
	}
	return Enriched{
		Alert:          alert,
		ThreatIntel:    matches,
		ThreatDetected: len(matches) > 0,
	}
}

// Block adds an IP and/or domain to the blocklist and persists it.
// Duplicates are ignored.
func (s *Service) Block(ip, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ip != "" && !contains(s.blocklist.BlockedIPs, ip) {
		s.blocklist.BlockedIPs = append(s.blocklist.BlockedIPs, ip)
	}
	if domain != "" && !contains(s.blocklist.BlockedDomains, domain) {
		s.blocklist.BlockedDomains = append(s.blocklist.BlockedDomains, domain)
	}

	if err := os.MkdirAll(filepath.Dir(s.config.BlocklistFile), 0o755); err != nil {
		return fmt.Errorf("intel: save blocklist: %w", err)
	}
	data, err := json.MarshalIndent(s.blocklist, "", "  ")
	if err != nil {
		return fmt.Errorf("intel: save blocklist: %w", err)
	}
	if err := os.WriteFile(s.config.BlocklistFile, data, 0o644); err != nil {
		return fmt.Errorf("intel: save blocklist: %w", err)
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
