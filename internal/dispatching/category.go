package dispatching

import "strings"

// CategoryOther is returned when no keyword matches.
const CategoryOther = "Other"

type categoryRule struct {
	category string
	keywords []string
}

// Order matters: the first matching rule wins.
var categoryRules = []categoryRule{
	{"Password Reset", []string{"password", "login"}},
	{"Hardware Support", []string{"hardware", "laptop", "monitor"}},
	{"Bug Triage", []string{"bug", "error", "crash"}},
	{"System Outage", []string{"outage", "down", "offline"}},
	{"Network Troubleshooting", []string{"network", "wifi", "connection"}},
	{"Software Troubleshooting", []string{"software", "app", "application"}},
	{"DevOps", []string{"deployment", "deploy"}},
	{"Security Patch", []string{"security", "patch", "vulnerability"}},
	{"Performance Issue", []string{"performance", "slow"}},
	{"Infrastructure", []string{"infrastructure", "server"}},
	{"Database", []string{"database", "sql", "query"}},
	{"Leave Request", []string{"leave", "vacation", "pto"}},
	{"Payroll", []string{"payroll", "salary", "payment"}},
	{"Onboarding", []string{"onboard", "new hire"}},
	{"Refund Request", []string{"refund", "reimburs"}},
	{"Tax Processing", []string{"tax"}},
	{"Fraud Investigation", []string{"fraud", "investigation"}},
	{"Project Management", []string{"project", "milestone"}},
	{"Agile", []string{"agile", "sprint"}},
	{"Risk Management", []string{"risk"}},
}

// InferCategory maps a free-text description to a specialization category.
func InferCategory(description string) string {
	text := strings.ToLower(description)
	if strings.TrimSpace(text) == "" {
		return CategoryOther
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// requiredSkills returns the explicit skills, or the inferred category when none are set.
func requiredSkills(ticketSkills []string, description string) []string {
	var out []string
	for _, s := range ticketSkills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		return out
	}
	if category := InferCategory(description); category != CategoryOther {
		return []string{category}
	}
	return nil
}
