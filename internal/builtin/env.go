// Package builtin ships a handful of concrete QuestionVTable
// implementations that exercise the engine end to end: reading
// environment variables, stat'ing files, and running child processes.
package builtin

import (
	"os"

	"github.com/askbuild/ask/internal/qa"
)

var envQuestionUUID = mustUUID("6e6e5fd60e5c4b1e9f2a1a2c3d4e5f60")

func mustUUID(s string) qa.UUID {
	u, err := qa.ParseUUID(s)
	if err != nil {
		panic("builtin: " + err.Error())
	}
	return u
}

// EnvQuestion asks for the current value of an environment variable.
// Its Question value is the variable's name.
type EnvQuestion string

// StringAnswerVTable answers plain strings, serialized verbatim as
// their own bytes. Shared by EnvQuestion and anything else whose
// answer is just text.
type StringAnswerVTable struct{}

func (StringAnswerVTable) Equal(a1, a2 qa.Answer) bool { return a1.(string) == a2.(string) }
func (StringAnswerVTable) Replicate(a qa.Answer) qa.Answer { return a.(string) }
func (StringAnswerVTable) Deallocate(qa.Answer)            {}
func (StringAnswerVTable) Serialize(a qa.Answer) ([]byte, error) {
	return []byte(a.(string)), nil
}
func (StringAnswerVTable) Deserialize(data []byte) (qa.Answer, error) {
	return string(data), nil
}

// EnvVTable answers EnvQuestion values by reading the process
// environment. It performs no I/O beyond the in-memory env table, so
// Answer is always side-effect free.
type EnvVTable struct{}

func (EnvVTable) UUID() qa.UUID                 { return envQuestionUUID }
func (EnvVTable) AnswerVTable() qa.AnswerVTable { return StringAnswerVTable{} }

func (EnvVTable) Answer(q qa.Question) (qa.Answer, error) {
	name := string(q.(EnvQuestion))
	value, _ := os.LookupEnv(name)
	return value, nil
}

func (EnvVTable) Equal(q1, q2 qa.Question) bool { return q1.(EnvQuestion) == q2.(EnvQuestion) }
func (EnvVTable) Replicate(q qa.Question) qa.Question { return q.(EnvQuestion) }
func (EnvVTable) Deallocate(qa.Question)               {}

func (EnvVTable) Serialize(q qa.Question) ([]byte, error) {
	return []byte(q.(EnvQuestion)), nil
}

func (EnvVTable) Deserialize(data []byte) (qa.Question, error) {
	return EnvQuestion(data), nil
}
