package collab

import (
	"sort"
	"strings"

	"workforce/internal/directory"
)

const (
	roleWeight        = 30
	skillWeight       = 20
	categoryWeight    = 15
	descriptionWeight = 10
	maxAgentScore     = 100

	selectionThreshold = 50
	maxSelectedAgents  = 3
	minDescriptionWord = 4
)

// ScoreAgent rates emp against a free-text request by substring containment.
func ScoreAgent(request string, emp directory.Employee) int {
	req := strings.ToLower(request)
	score := 0

	if role := strings.ToLower(strings.TrimSpace(emp.Role)); role != "" && strings.Contains(req, role) {
		score += roleWeight
	}
	for _, skill := range emp.Skills {
		if s := strings.ToLower(strings.TrimSpace(skill)); s != "" && strings.Contains(req, s) {
			score += skillWeight
		}
	}
	if cat := strings.ToLower(strings.TrimSpace(emp.Category)); cat != "" && strings.Contains(req, cat) {
		score += categoryWeight
	}
	if descriptionMatches(req, strings.ToLower(emp.Description)) {
		score += descriptionWeight
	}

	if score > maxAgentScore {
		score = maxAgentScore
	}
	return score
}

// descriptionMatches reports whether any request word of at least four
// letters appears in the description.
func descriptionMatches(req, desc string) bool {
	if desc == "" {
		return false
	}
	words := strings.FieldsFunc(req, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-')
	})
	for _, w := range words {
		if len(w) >= minDescriptionWord && strings.Contains(desc, w) {
			return true
		}
	}
	return false
}

type scoredAgent struct {
	emp   directory.Employee
	score int
	order int
}

// SelectOptimalAgents returns up to three employees scoring above fifty, best
// first. Preferred names bypass scoring; unknown names are skipped.
func SelectOptimalAgents(request string, employees []directory.Employee, preferred []string) []directory.Employee {
	if len(preferred) > 0 {
		var out []directory.Employee
		seen := make(map[string]bool)
		for _, name := range preferred {
			for _, emp := range employees {
				key := strings.ToLower(emp.Name)
				if strings.EqualFold(emp.Name, strings.TrimSpace(name)) && !seen[key] {
					seen[key] = true
					out = append(out, emp)
				}
			}
		}
		return out
	}

	var candidates []scoredAgent
	for i, emp := range employees {
		if s := ScoreAgent(request, emp); s > selectionThreshold {
			candidates = append(candidates, scoredAgent{emp: emp, score: s, order: i})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxSelectedAgents {
		candidates = candidates[:maxSelectedAgents]
	}
	out := make([]directory.Employee, len(candidates))
	for i, c := range candidates {
		out[i] = c.emp
	}
	return out
}

// bestAgent is the top scorer regardless of threshold, the first employee on
// ties.
func bestAgent(request string, employees []directory.Employee) (directory.Employee, bool) {
	if len(employees) == 0 {
		return directory.Employee{}, false
	}
	best, bestScore := 0, -1
	for i, emp := range employees {
		if s := ScoreAgent(request, emp); s > bestScore {
			best, bestScore = i, s
		}
	}
	return employees[best], true
}
