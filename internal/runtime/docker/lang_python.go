package docker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/thomassthus-stack/Tommytiger/internal/capability"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

const (
	harnessFilename = "harness.py"
	programFilename = "program.py"
	datasetFilename = "dataset.json"
	reportFilename  = "report.json"
)

var pythonCommand = []string{"python", "-I", harnessFilename}

// harnessTemplate loads the dataset, executes the program with only the allowed
// builtins and libraries visible, and writes a tagged report.
const harnessTemplate = `import builtins as _builtins
import json
import math
import sys

import numpy as np
import pandas as pd
import matplotlib
matplotlib.use("Agg")
import matplotlib.pyplot as plt

_BUILTINS = %[1]s
_LIBRARIES = {"pd": pd, "np": np, "plt": plt, "json": json}
_ALLOWED_LIBRARIES = %[2]s


def _write(report):
    text = json.dumps(_finite(report), default=_coerce, allow_nan=False)
    with open(%[3]q, "w") as fh:
        fh.write(text)


%[8]s

def _coerce(value):
    if isinstance(value, np.generic):
        return _finite(value.item())
    if isinstance(value, np.ndarray):
        return _finite(value.tolist())
    if isinstance(value, pd.DataFrame):
        return _finite(value.to_dict("records"))
    if isinstance(value, pd.Series):
        return _finite(value.tolist())
    if hasattr(value, "isoformat"):
        return value.isoformat()
    return str(value)


def main():
    with open(%[4]q) as fh:
        spec = json.load(fh)
    with open(%[5]q) as fh:
        source = fh.read()

    env = {"__builtins__": {name: getattr(_builtins, name) for name in _BUILTINS}}
    for name in _ALLOWED_LIBRARIES:
        env[name] = _LIBRARIES[name]
    env[%[6]q] = pd.DataFrame(spec["rows"], columns=spec["columns"])

    try:
        exec(compile(source, %[5]q, "exec"), env)
    except BaseException as exc:
        _write({"status": "error", "message": "%%s: %%s" %% (type(exc).__name__, exc)})
        return

    value = env.get(%[7]q)
    if value is None:
        _write({"status": "error", "message": "program did not bind '%[7]s'"})
    elif isinstance(value, str):
        _write({"status": "ok", "kind": "text", "value": value})
    elif isinstance(value, dict):
        try:
            _write({"status": "ok", "kind": "structured", "value": value})
        except (TypeError, ValueError) as exc:
            _write({"status": "error", "message": "'%[7]s' is not serialisable: %%s" %% exc})
    else:
        _write({"status": "ok", "kind": "other", "value": type(value).__name__})


if __name__ == "__main__":
    main()
    sys.stdout.flush()
`

// harnessFinite replaces NaN and infinities with None, since JSON has no
// spelling for them.
const harnessFinite = `def _finite(value):
    if isinstance(value, float) and not math.isfinite(value):
        return None
    if isinstance(value, dict):
        return {key: _finite(item) for key, item in value.items()}
    if isinstance(value, (list, tuple)):
        return [_finite(item) for item in value]
    return value
`

// pythonBindings returns the builtins and globals the harness exposes.
func pythonBindings(list *capability.List) (builtins, libraries []string) {
	builtins = append(list.ByKind(capability.KindBuiltin), list.Intrinsics(analysis.LanguagePython)...)
	sort.Strings(builtins)
	libraries = list.ByKind(capability.KindLibrary)
	return builtins, libraries
}

func renderHarness(list *capability.List) string {
	builtins, libraries := pythonBindings(list)
	return fmt.Sprintf(harnessTemplate,
		pythonList(builtins),
		pythonList(libraries),
		reportFilename,
		datasetFilename,
		programFilename,
		capability.DatasetName,
		capability.ResultName,
		harnessFinite,
	)
}

func pythonList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

type datasetFile struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func encodeDataset(ds analysis.Dataset) ([]byte, error) {
	file := datasetFile{Columns: ds.Columns, Rows: ds.Rows}
	if file.Columns == nil {
		file.Columns = []string{}
	}
	if file.Rows == nil {
		file.Rows = [][]any{}
	}
	return json.Marshal(file)
}

type harnessReport struct {
	Status  string          `json:"status"`
	Kind    string          `json:"kind"`
	Value   json.RawMessage `json:"value"`
	Message string          `json:"message"`
}

// decodeReport maps the harness report onto an Outcome.
func decodeReport(data []byte) analysis.Outcome {
	var report harnessReport
	if err := json.Unmarshal(data, &report); err != nil {
		return analysis.Failed(fmt.Sprintf("unreadable harness report: %v", err))
	}
	if report.Status != "ok" {
		if report.Message == "" {
			report.Message = "program failed"
		}
		return analysis.Failed(report.Message)
	}

	switch report.Kind {
	case "text":
		var text string
		if err := json.Unmarshal(report.Value, &text); err != nil {
			return analysis.Failed(fmt.Sprintf("unreadable harness report: %v", err))
		}
		return analysis.Succeeded(analysis.TextPayload(text))
	case "structured":
		var fields map[string]any
		if err := json.Unmarshal(report.Value, &fields); err != nil {
			return analysis.Failed(fmt.Sprintf("unreadable harness report: %v", err))
		}
		return analysis.Succeeded(analysis.StructuredPayload(fields))
	case "other":
		var value any
		_ = json.Unmarshal(report.Value, &value)
		return analysis.Succeeded(analysis.OtherPayload(value))
	default:
		return analysis.Failed(fmt.Sprintf("unknown harness payload kind %q", report.Kind))
	}
}
