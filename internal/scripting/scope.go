package scripting

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/querypad/internal/query"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// scopeBuiltins are the names bound fresh for every run.
var scopeBuiltins = map[string]bool{
	"content":    true,
	"file_path":  true,
	"file_ext":   true,
	"data":       true,
	"parse_json": true,
	"parse_csv":  true,
	"parse_yaml": true,
	"save":       true,
}

// scope is the disposable per-run environment.
type scope struct {
	thread  *starlark.Thread
	globals starlark.StringDict
	stdout  strings.Builder
}

func (rt *Runtime) newScope(ec query.ExecutionContext, onSave query.SaveFunc, logger *slog.Logger) *scope {
	sc := &scope{}
	sc.thread = &starlark.Thread{
		Name: "query",
		Print: func(_ *starlark.Thread, msg string) {
			sc.stdout.WriteString(msg)
			sc.stdout.WriteByte('\n')
		},
		Load: rt.load,
	}
	if rt.maxSteps > 0 {
		sc.thread.SetMaxExecutionSteps(rt.maxSteps)
	}

	globals := make(starlark.StringDict, len(rt.modules)+len(scopeBuiltins))
	for name, v := range rt.modules {
		globals[name] = v
	}

	content := ec.Content()
	globals["content"] = starlark.String(content)
	globals["file_path"] = starlark.String(ec.FilePath)
	globals["file_ext"] = starlark.String(ec.FileExtension)
	globals["parse_json"] = starlark.NewBuiltin("parse_json", parseJSONBuiltin)
	globals["parse_csv"] = starlark.NewBuiltin("parse_csv", parseCSVBuiltin)
	globals["parse_yaml"] = starlark.NewBuiltin("parse_yaml", parseYAMLBuiltin)
	globals["save"] = starlark.NewBuiltin("save", saveBuiltin(onSave))

	data, err := autoload(sc.thread, ec)
	if err != nil {
		logger.Debug("could not preload data",
			slog.String("file", ec.FilePath),
			slog.String("error", err.Error()))
		data = starlark.None
	}
	globals["data"] = data

	sc.globals = globals
	return sc
}

// autoload parses the file content according to its extension.
func autoload(thread *starlark.Thread, ec query.ExecutionContext) (starlark.Value, error) {
	content := ec.Content()
	switch ec.FileExtension {
	case "json":
		return parseJSON(thread, content)
	case "jsonl", "ndjson":
		return parseJSONLines(thread, content)
	case "csv":
		return parseCSV(content, ",")
	case "tsv":
		return parseCSV(content, "\t")
	case "yaml", "yml":
		return parseYAML(content)
	case "xlsx":
		return parseSpreadsheet(ec.FileContent)
	default:
		return starlark.String(content), nil
	}
}

func saveBuiltin(onSave query.SaveFunc) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "content", &v); err != nil {
			return nil, err
		}
		if onSave == nil {
			// Nothing to write to.
			return starlark.None, nil
		}
		s, ok := starlark.AsString(v)
		if !ok {
			s = v.String()
		}
		onSave(s)
		return starlark.None, nil
	}
}

// exec runs code in the scope. When the final statement is an expression its
// value is returned; otherwise the result is None.
func (sc *scope) exec(ctx context.Context, code string) (starlark.Value, error) {
	opts := fileOptions()
	f, err := opts.Parse("query.star", code, 0)
	if err != nil {
		return nil, err
	}

	var last syntax.Expr
	if n := len(f.Stmts); n > 0 {
		if es, ok := f.Stmts[n-1].(*syntax.ExprStmt); ok {
			last = es.X
			f.Stmts = f.Stmts[:n-1]
		}
	}

	prog, err := starlark.FileProgram(f, sc.globals.Has)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		sc.thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	defined, err := prog.Init(sc.thread, sc.globals)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return starlark.None, nil
	}

	env := make(starlark.StringDict, len(sc.globals)+len(defined))
	for k, v := range sc.globals {
		env[k] = v
	}
	for k, v := range defined {
		env[k] = v
	}
	return starlark.EvalExprOptions(opts, sc.thread, last, env)
}

// errorMessage renders an interpreter error with its backtrace when available.
func errorMessage(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}
