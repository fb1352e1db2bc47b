package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListFiltersAndOrders(t *testing.T) {
	root := writeTree(t, "z.cs", "a.cs", "lib/m.cs", "lib/notes.txt", "Upper.CS", "a.cs.bak")

	tasks, err := NewFileLister(zap.NewNop()).List(root, ".cs", false)
	require.NoError(t, err)

	var rels []string
	for i, task := range tasks {
		assert.Equal(t, i, task.Index)
		assert.True(t, filepath.IsAbs(task.Path))
		assert.Positive(t, task.Size)
		rels = append(rels, task.Rel)
	}
	assert.Equal(t, []string{"a.cs", "lib/m.cs", "z.cs"}, rels)
}

func TestListIgnoreCase(t *testing.T) {
	root := writeTree(t, "a.cs", "Upper.CS")

	tasks, err := NewFileLister(zap.NewNop()).List(root, ".cs", true)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Upper.CS", tasks[0].Rel)
	assert.Equal(t, "a.cs", tasks[1].Rel)
}

func TestListIsDeterministic(t *testing.T) {
	root := writeTree(t, "c.cs", "b/b.cs", "a/a.cs", "a/z/y.cs")
	lister := NewFileLister(zap.NewNop())

	first, err := lister.List(root, ".cs", false)
	require.NoError(t, err)
	second, err := lister.List(root, ".cs", false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestListEmpty(t *testing.T) {
	root := writeTree(t, "main.go")

	tasks, err := NewFileLister(zap.NewNop()).List(root, ".cs", false)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestListRootErrors(t *testing.T) {
	lister := NewFileLister(zap.NewNop())

	_, err := lister.List(filepath.Join(t.TempDir(), "missing"), ".cs", false)
	assert.ErrorIs(t, err, ErrEnumeration)
	assert.ErrorIs(t, err, os.ErrNotExist)

	root := writeTree(t, "file.cs")
	_, err = lister.List(filepath.Join(root, "file.cs"), ".cs", false)
	assert.ErrorIs(t, err, ErrEnumeration)
	assert.Contains(t, err.Error(), "not a directory")
}
