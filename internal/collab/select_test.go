package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/directory"
)

func team() directory.Static {
	return directory.Static{
		{Name: "Ada", Role: "engineer", Skills: []string{"go", "api"}, Category: "development", Description: "Builds backend services", Tools: []string{"html.inner_text"}, Model: "m", SystemPrompt: "ada"},
		{Name: "Bo", Role: "reviewer", Skills: []string{"security", "go"}, Category: "quality", Description: "Reviews code for security flaws", Model: "m", SystemPrompt: "bo"},
		{Name: "Cy", Role: "writer", Skills: []string{"docs"}, Category: "content", Description: "Writes documentation", Model: "m", SystemPrompt: "cy"},
		{Name: "Di", Role: "tester", Skills: []string{"testing"}, Category: "quality", Description: "Runs test suites", Model: "m", SystemPrompt: "di"},
	}
}

const buildRequest = "Need an engineer to build a go api with security review for development"

func TestScoreAgent(t *testing.T) {
	emps := team()
	assert.Equal(t, 95, ScoreAgent(buildRequest, emps[0]))
	assert.Equal(t, 50, ScoreAgent(buildRequest, emps[1]))
	assert.Zero(t, ScoreAgent(buildRequest, emps[2]))

	polymath := directory.Employee{Role: "dev", Skills: []string{"go", "sql", "k8s", "aws"}, Category: "dev"}
	assert.Equal(t, 100, ScoreAgent("dev go sql k8s aws", polymath))
}

func TestSelectOptimalAgents(t *testing.T) {
	got := SelectOptimalAgents(buildRequest, team(), nil)
	require.Len(t, got, 1)
	assert.Equal(t, "Ada", got[0].Name, "a score of exactly 50 is not enough")

	many := directory.Static{}
	for _, name := range []string{"A", "B", "C", "D"} {
		many = append(many, directory.Employee{Name: name, Role: "dev", Skills: []string{"go"}, Category: "backend"})
	}
	many[3].Skills = append(many[3].Skills, "sql")
	got = SelectOptimalAgents("dev go sql backend", many, nil)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"D", "A", "B"}, []string{got[0].Name, got[1].Name, got[2].Name})

	assert.Empty(t, SelectOptimalAgents("paint the fence", team(), nil))
}

func TestSelectOptimalAgentsPreferred(t *testing.T) {
	got := SelectOptimalAgents(buildRequest, team(), []string{"cy", "Di", "nobody", "CY"})
	require.Len(t, got, 2)
	assert.Equal(t, "Cy", got[0].Name)
	assert.Equal(t, "Di", got[1].Name)
}
