package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEmployee(name string) Employee {
	return Employee{
		Name:         name,
		Description:  "does things",
		Tools:        []string{"general"},
		Model:        "m",
		SystemPrompt: "You are " + name,
	}
}

type countingDirectory struct {
	calls atomic.Int32
	emps  []Employee
	err   error
}

func (c *countingDirectory) GetAvailableEmployees(context.Context) ([]Employee, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.emps, nil
}

func TestEmployeeValidate(t *testing.T) {
	e := validEmployee("Ada")
	require.NoError(t, e.Validate())

	e.SystemPrompt = ""
	e.Model = ""
	err := e.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEmployee)
	assert.Contains(t, err.Error(), "SystemPrompt")
	assert.Contains(t, err.Error(), "Model")

	e = validEmployee("Ada")
	e.Provider = "mistral"
	assert.ErrorIs(t, e.Validate(), ErrInvalidEmployee)
}

func TestEmbeddedRosterIsValid(t *testing.T) {
	emps, err := EmbeddedDirectory{}.GetAvailableEmployees(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, emps)
	assert.Equal(t, "Alex Chen", emps[0].Name)
	for _, e := range emps {
		assert.NoError(t, e.Validate(), e.Name)
	}
}

func TestFileDirectoryMergesInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("b.yaml", "employees:\n  - {name: Bea, description: d, tools: [x], model: m, system_prompt: p}\n")
	write("a.yml", "employees:\n  - {name: Abe, description: d, tools: [y], model: m, system_prompt: p}\n")
	write("notes.txt", "ignored")

	emps, err := FileDirectory{Path: dir}.GetAvailableEmployees(context.Background())
	require.NoError(t, err)
	require.Len(t, emps, 2)
	assert.Equal(t, "Abe", emps[0].Name)
	assert.Equal(t, "Bea", emps[1].Name)
}

func TestFileDirectoryRejectsMalformedRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"),
		[]byte("employees:\n  - {name: NoPrompt, description: d, model: m}\n"), 0o644))

	_, err := FileDirectory{Path: dir}.GetAvailableEmployees(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEmployee)
}

func TestFileDirectoryMissingPath(t *testing.T) {
	_, err := FileDirectory{Path: filepath.Join(t.TempDir(), "missing")}.GetAvailableEmployees(context.Background())
	assert.Error(t, err)
}

func TestCacheLoadsOnce(t *testing.T) {
	src := &countingDirectory{emps: []Employee{validEmployee("Ada"), validEmployee("Grace")}}
	c := NewCache(src)
	_, ok := c.Lookup("Ada")
	assert.False(t, ok, "lookup before load")

	for i := 0; i < 3; i++ {
		emps, err := c.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, emps, 2)
	}
	assert.Equal(t, int32(1), src.calls.Load())

	e, ok := c.Lookup("grace")
	require.True(t, ok)
	assert.Equal(t, "Grace", e.Name)
	_, ok = c.Lookup("nobody")
	assert.False(t, ok)
}

func TestCacheRetriesAfterFailure(t *testing.T) {
	src := &countingDirectory{err: errors.New("network down")}
	c := NewCache(src)

	_, err := c.Load(context.Background())
	require.Error(t, err)
	_, ok := c.Lookup("Ada")
	assert.False(t, ok)

	src.err = nil
	src.emps = []Employee{validEmployee("Ada")}
	_, err = c.Load(context.Background())
	require.NoError(t, err)
	_, ok = c.Lookup("Ada")
	assert.True(t, ok)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCacheRejectsDuplicatesAndInvalid(t *testing.T) {
	c := NewCache(Static{validEmployee("Ada"), validEmployee("ada")})
	_, err := c.Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidEmployee)

	bad := validEmployee("Bad")
	bad.Description = ""
	c = NewCache(Static{bad})
	_, err = c.Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidEmployee)
}
