package builtin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askbuild/ask/internal/qa"
)

func TestEnvVTableReadsLiveEnvironment(t *testing.T) {
	require.NoError(t, os.Setenv("ASKBUILD_TEST_VAR", "hello"))
	defer os.Unsetenv("ASKBUILD_TEST_VAR")

	vt := EnvVTable{}
	a, err := vt.Answer(EnvQuestion("ASKBUILD_TEST_VAR"))
	require.NoError(t, err)
	require.Equal(t, "hello", a)
}

func TestEnvVTableMissingVarAnswersEmptyString(t *testing.T) {
	vt := EnvVTable{}
	a, err := vt.Answer(EnvQuestion("ASKBUILD_TEST_VAR_DOES_NOT_EXIST"))
	require.NoError(t, err)
	require.Equal(t, "", a)
}

func TestEnvVTableSerializeRoundTrip(t *testing.T) {
	vt := EnvVTable{}
	data, err := vt.Serialize(EnvQuestion("PATH"))
	require.NoError(t, err)
	q, err := vt.Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, EnvQuestion("PATH"), q)
}

func TestFileStatVTableAnswersExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	vt := FileStatVTable{}
	a, err := vt.Answer(FileStatQuestion(path))
	require.NoError(t, err)
	fs := a.(FileStatAnswer)
	require.True(t, fs.Exists)
	require.EqualValues(t, 11, fs.Size)
}

func TestFileStatVTableAnswersMissingFile(t *testing.T) {
	vt := FileStatVTable{}
	a, err := vt.Answer(FileStatQuestion("/no/such/path/askbuild-test"))
	require.NoError(t, err)
	require.False(t, a.(FileStatAnswer).Exists)
}

func TestFileStatAnswerSerializeRoundTrip(t *testing.T) {
	avt := FileStatAnswerVTable{}
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0644))

	vt := FileStatVTable{}
	original, err := vt.Answer(FileStatQuestion(path))
	require.NoError(t, err)

	data, err := avt.Serialize(original)
	require.NoError(t, err)
	got, err := avt.Deserialize(data)
	require.NoError(t, err)
	require.True(t, avt.Equal(original, got))
}

func TestExecVTableCapturesOutput(t *testing.T) {
	vt := ExecVTable{}
	a, err := vt.Answer(ExecQuestion{Argv: []string{"sh", "-c", "echo hi"}})
	require.NoError(t, err)
	ea := a.(ExecAnswer)
	require.Equal(t, 0, ea.ExitCode)
	require.Contains(t, ea.Output, "hi")
}

func TestExecVTableReportsNonZeroExit(t *testing.T) {
	vt := ExecVTable{}
	a, err := vt.Answer(ExecQuestion{Argv: []string{"sh", "-c", "exit 3"}})
	require.NoError(t, err)
	require.Equal(t, 3, a.(ExecAnswer).ExitCode)
}

func TestExecAnswerSerializeRoundTrip(t *testing.T) {
	avt := ExecAnswerVTable{}
	original := ExecAnswer{ExitCode: 1, Output: "boom\n"}
	data, err := avt.Serialize(original)
	require.NoError(t, err)
	got, err := avt.Deserialize(data)
	require.NoError(t, err)
	require.True(t, avt.Equal(original, got))
}

func TestExecQuestionSerializeRoundTrip(t *testing.T) {
	vt := ExecVTable{}
	original := ExecQuestion{Argv: []string{"echo", "a", "b"}, Pty: true}
	data, err := vt.Serialize(original)
	require.NoError(t, err)
	got, err := vt.Deserialize(data)
	require.NoError(t, err)
	require.True(t, vt.Equal(original, got))
}

func TestRegisterAllPopulatesRegistry(t *testing.T) {
	reg := qa.NewRegistry()
	RegisterAll(reg)

	_, ok := reg.Lookup(EnvVTable{}.UUID())
	require.True(t, ok)
	_, ok = reg.Lookup(FileStatVTable{}.UUID())
	require.True(t, ok)
	_, ok = reg.Lookup(ExecVTable{}.UUID())
	require.True(t, ok)
}
