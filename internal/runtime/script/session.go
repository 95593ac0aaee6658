package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/thomassthus-stack/Tommytiger/internal/capability"
	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

const programName = "analysis.js"

// readResult reads the output slot without tripping over an undeclared name.
const readResult = `typeof result === 'undefined' ? undefined : result`

// Each snippet runs on its own so a parser without generator or async support
// still hardens the rest.
var constructorGuards = []string{
	`Object.defineProperty(Function.prototype, 'constructor', {
		value: function() { throw new TypeError('Function constructor is disabled'); },
		writable: false, configurable: false
	});`,
	`Object.defineProperty(Object.getPrototypeOf(function*(){}), 'constructor', {
		value: function() { throw new TypeError('Function constructor is disabled'); },
		writable: false, configurable: false
	});`,
	`Object.defineProperty(Object.getPrototypeOf(async function(){}), 'constructor', {
		value: function() { throw new TypeError('Function constructor is disabled'); },
		writable: false, configurable: false
	});`,
}

const stripGlobals = `(function(keep) {
	var g = (function() { return this; })();
	var names = Object.getOwnPropertyNames(g);
	for (var i = 0; i < names.length; i++) {
		if (!keep[names[i]]) {
			try { delete g[names[i]]; } catch (e) {}
		}
	}
})`

// session is a single-use goja runtime holding one program execution.
type session struct {
	vm     *goja.Runtime
	cfg    Config
	frames map[*goja.Object]analysis.Dataset

	logMu     sync.Mutex
	logs      strings.Builder
	truncated bool
}

func newSession(cfg Config, dataset analysis.Dataset) (*session, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(cfg.MaxCallStackSize)

	s := &session{
		vm:     vm,
		cfg:    cfg,
		frames: make(map[*goja.Object]analysis.Dataset),
	}
	if err := s.harden(); err != nil {
		return nil, err
	}
	s.bind(dataset)
	return s, nil
}

// harden removes every global that is not an intrinsic of the allow-list and
// disables dynamic code construction.
func (s *session) harden() error {
	for _, guard := range constructorGuards {
		_, _ = s.vm.RunString(guard)
	}

	keep := make(map[string]any)
	for _, name := range s.cfg.Capabilities.Intrinsics(analysis.LanguageJavaScript) {
		keep[name] = true
	}
	fn, err := s.vm.RunString(stripGlobals)
	if err != nil {
		return fmt.Errorf("compile global filter: %w", err)
	}
	strip, ok := goja.AssertFunction(fn)
	if !ok {
		return fmt.Errorf("global filter is not callable")
	}
	if _, err := strip(goja.Undefined(), s.vm.ToValue(keep)); err != nil {
		return fmt.Errorf("strip globals: %w", err)
	}
	return nil
}

func (s *session) bind(dataset analysis.Dataset) {
	s.bindBuiltins()
	_ = s.vm.Set(capability.DatasetName, s.frameObject(dataset))
	_ = s.vm.Set("json", s.jsonLibrary())
	_ = s.vm.Set("np", s.numpy())
	_ = s.vm.Set("plt", s.plotLibrary())

	pd := s.vm.NewObject()
	_ = pd.Set("DataFrame", s.newFrame)
	_ = pd.Set("isna", func(call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(exportCell(call.Argument(0)) == nil)
	})
	_ = s.vm.Set("pd", pd)
}

// run executes source and captures the output slot. It never panics.
func (s *session) run(source string) (outcome analysis.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = analysis.Failed(fmt.Sprintf("internal error: %v", r))
		}
	}()

	if _, err := s.vm.RunScript(programName, source); err != nil {
		return analysis.Failed(describeError(err))
	}
	value, err := s.vm.RunString(readResult)
	if err != nil {
		return analysis.Failed(describeError(err))
	}
	return s.capture(value)
}

// capture converts the output slot into a RawPayload.
func (s *session) capture(value goja.Value) analysis.Outcome {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return analysis.Failed(fmt.Sprintf("program did not bind '%s'", capability.ResultName))
	}

	obj, ok := value.(*goja.Object)
	if !ok {
		if text, ok := value.Export().(string); ok {
			return analysis.Succeeded(analysis.TextPayload(text))
		}
		return analysis.Succeeded(analysis.OtherPayload(value.Export()))
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		return analysis.Succeeded(analysis.OtherPayload(fmt.Sprintf("function %s", obj.ClassName())))
	}

	data, err := obj.MarshalJSON()
	if err != nil {
		return analysis.Failed(fmt.Sprintf("'%s' is not serialisable: %v", capability.ResultName, err))
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return analysis.Failed(fmt.Sprintf("'%s' is not serialisable: %v", capability.ResultName, err))
	}
	if fields, ok := decoded.(map[string]any); ok {
		return analysis.Succeeded(analysis.StructuredPayload(fields))
	}
	return analysis.Succeeded(analysis.OtherPayload(decoded))
}

func (s *session) interrupt(reason any) {
	s.vm.Interrupt(reason)
}

func (s *session) log(line string) {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	if s.truncated {
		return
	}
	if s.logs.Len()+len(line)+1 > s.cfg.MaxLogBytes {
		s.logs.WriteString("...[truncated]\n")
		s.truncated = true
		return
	}
	s.logs.WriteString(line)
	s.logs.WriteByte('\n')
}

func (s *session) output() string {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	return s.logs.String()
}

// globals lists the names visible on the global object.
func (s *session) globals() ([]string, error) {
	value, err := s.vm.RunString(`Object.getOwnPropertyNames((function() { return this; })())`)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := s.vm.ExportTo(value, &names); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func describeError(err error) string {
	var exception *goja.Exception
	if errors.As(err, &exception) {
		if value := exception.Value(); value != nil {
			return value.String()
		}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return "execution interrupted"
	}
	return err.Error()
}
