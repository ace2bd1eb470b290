package rules

// BruteForceRuleID identifies the builtin windowed brute-force rule.
const BruteForceRuleID = "BRUTE-001"

// Builtin returns the builtin detection rule table covering common Linux
// authentication and system log activity.
func Builtin() []Rule {
	return []Rule{
		{
			ID:            "BRUTE-001",
			Name:          "Brute Force Attack",
			Severity:      SeverityHigh,
			Description:   "Multiple failed login attempts detected",
			Pattern:       `Failed password for.*from (\d+\.\d+\.\d+\.\d+)`,
			Threshold:     5,
			WindowSeconds: 300,
			Techniques:    []string{"T1110"},
		},
		{
			ID:          "SSH-001",
			Name:        "SSH Authentication Success",
			Severity:    SeverityLow,
			Description: "Successful SSH login",
			Pattern:     `Accepted password for (\w+)`,
			Techniques:  []string{"T1078"},
		},
		{
			ID:          "SUDO-001",
			Name:        "Sudo Command Execution",
			Severity:    SeverityMedium,
			Description: "User executed command with sudo",
			Pattern:     `COMMAND=/.*`,
			Techniques:  []string{"T1548"},
		},
		{
			ID:          "ROOT-001",
			Name:        "Root Login Detected",
			Severity:    SeverityCritical,
			Description: "Root user login detected",
			Pattern:     `Accepted.*for root`,
			Techniques:  []string{"T1078", "T1005"},
		},
		{
			ID:          "FAIL-001",
			Name:        "Authentication Failure",
			Severity:    SeverityMedium,
			Description: "Authentication failure detected",
			Pattern:     `authentication failure.*user=(\w+)`,
			Techniques:  []string{"T1110"},
		},
		{
			ID:          "CRON-001",
			Name:        "Cron Job Execution",
			Severity:    SeverityLow,
			Description: "Scheduled cron job executed",
			Pattern:     `CMD \((.*?)\)`,
			Techniques:  []string{"T1053"},
		},
		{
			ID:          "WARN-001",
			Name:        "Warning Message",
			Severity:    SeverityLow,
			Description: "System warning detected",
			Pattern:     `warning:|warn:`,
			Techniques:  []string{},
		},
		{
			ID:          "ERR-001",
			Name:        "Error Message",
			Severity:    SeverityMedium,
			Description: "System error detected",
			Pattern:     `error:|failed:`,
			Techniques:  []string{},
		},
		{
			ID:          "SUSP-001",
			Name:        "Suspicious Activity",
			Severity:    SeverityHigh,
			Description: "Suspicious activity pattern detected",
			Pattern:     `invalid user|unknown user`,
			Techniques:  []string{"T1110", "T1078"},
		},
	}
}
