package builtin

import (
	"bytes"
	"io"
	"os/exec"

	"github.com/creack/pty"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/askbuild/ask/internal/qa"
)

var execQuestionUUID = mustUUID("3d4c5b6a79881f0e1d2c3b4a5968778f")

// ExecQuestion runs a command line and answers with its outcome. When
// Pty is true the child is attached to a pseudo-terminal via
// github.com/creack/pty instead of plain pipes, so output that
// branches on TTY detection (progress bars, color) is captured the
// way a human running the command would see it.
type ExecQuestion struct {
	Argv []string
	Pty  bool
}

// ExecAnswer is the structured outcome of running an ExecQuestion.
type ExecAnswer struct {
	ExitCode int
	Output   string
}

// ExecAnswerVTable serializes ExecAnswer the same way
// FileStatAnswerVTable does: a flat JSON document built with
// gjson/sjson.
type ExecAnswerVTable struct{}

func (ExecAnswerVTable) Equal(a1, a2 qa.Answer) bool {
	x, y := a1.(ExecAnswer), a2.(ExecAnswer)
	return x.ExitCode == y.ExitCode && x.Output == y.Output
}

func (ExecAnswerVTable) Replicate(a qa.Answer) qa.Answer { return a.(ExecAnswer) }
func (ExecAnswerVTable) Deallocate(qa.Answer)            {}

func (ExecAnswerVTable) Serialize(a qa.Answer) ([]byte, error) {
	ea := a.(ExecAnswer)
	doc, err := sjson.Set("{}", "exit_code", ea.ExitCode)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.Set(doc, "output", ea.Output)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (ExecAnswerVTable) Deserialize(data []byte) (qa.Answer, error) {
	res := gjson.ParseBytes(data)
	return ExecAnswer{
		ExitCode: int(res.Get("exit_code").Int()),
		Output:   res.Get("output").String(),
	}, nil
}

// ExecVTable answers ExecQuestion values by running the command line
// and capturing its combined output. Questions differing only in
// their Pty flag are distinct questions: the flag affects what the
// child actually writes to its output stream, which is observable.
type ExecVTable struct{}

func (ExecVTable) UUID() qa.UUID                 { return execQuestionUUID }
func (ExecVTable) AnswerVTable() qa.AnswerVTable { return ExecAnswerVTable{} }

func (ExecVTable) Answer(q qa.Question) (qa.Answer, error) {
	eq := q.(ExecQuestion)
	cmd := exec.Command(eq.Argv[0], eq.Argv[1:]...)

	var output []byte
	var runErr error

	if eq.Pty {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		output, _ = io.ReadAll(f)
		runErr = cmd.Wait()
	} else {
		var buf bytes.Buffer
		cmd.Stdout = &buf
		cmd.Stderr = &buf
		runErr = cmd.Run()
		output = buf.Bytes()
	}

	exitCode := 0
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		return nil, runErr
	}

	return ExecAnswer{ExitCode: exitCode, Output: string(output)}, nil
}

func (ExecVTable) Equal(q1, q2 qa.Question) bool {
	x, y := q1.(ExecQuestion), q2.(ExecQuestion)
	if x.Pty != y.Pty || len(x.Argv) != len(y.Argv) {
		return false
	}
	for i := range x.Argv {
		if x.Argv[i] != y.Argv[i] {
			return false
		}
	}
	return true
}

func (ExecVTable) Replicate(q qa.Question) qa.Question {
	eq := q.(ExecQuestion)
	return ExecQuestion{Argv: append([]string(nil), eq.Argv...), Pty: eq.Pty}
}

func (ExecVTable) Deallocate(qa.Question) {}

func (ExecVTable) Serialize(q qa.Question) ([]byte, error) {
	eq := q.(ExecQuestion)
	doc, err := sjson.Set("{}", "argv", eq.Argv)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.Set(doc, "pty", eq.Pty)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (ExecVTable) Deserialize(data []byte) (qa.Question, error) {
	res := gjson.ParseBytes(data)
	var argv []string
	for _, v := range res.Get("argv").Array() {
		argv = append(argv, v.String())
	}
	return ExecQuestion{Argv: argv, Pty: res.Get("pty").Bool()}, nil
}
