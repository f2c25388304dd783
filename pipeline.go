package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// StageKind tags a stage as a normal step or as the terminal error stage.
type StageKind int

const (
	// StageNormal runs in order and either proceeds, sends, or fails.
	StageNormal StageKind = iota

	// StageTerminal receives every failure raised by a normal stage. A
	// compiled pipeline has exactly one, and it is last.
	StageTerminal
)

func (k StageKind) String() string {
	if k == StageTerminal {
		return "terminal"
	}
	return "normal"
}

// StageFunc is the body of a normal stage. Returning nil proceeds to the next
// stage unless the stage sent a response; returning an error transfers
// control to the terminal stage.
type StageFunc func(w *ResponseWriter, r *http.Request) error

// ErrorStageFunc is the body of the terminal stage.
type ErrorStageFunc func(w *ResponseWriter, r *http.Request, err error)

// Stage is one unit of work in a Pipeline.
type Stage struct {
	Name        string
	Kind        StageKind
	Handle      StageFunc
	HandleError ErrorStageFunc
}

// NewStage returns a normal stage.
func NewStage(name string, fn StageFunc) Stage {
	return Stage{Name: name, Kind: StageNormal, Handle: fn}
}

// NewTerminalStage returns the terminal error stage.
func NewTerminalStage(name string, fn ErrorStageFunc) Stage {
	return Stage{Name: name, Kind: StageTerminal, HandleError: fn}
}

// OutboundStage shapes a response before it is written.
type OutboundStage struct {
	Name   string
	Handle func(r *http.Request, resp *Response) error
}

// Errors returned by Pipeline.Compile.
var (
	ErrNoTerminalStage    = errors.New("pipeline has no terminal stage")
	ErrTerminalStageOrder = errors.New("terminal stage must be the last stage")
	ErrInvalidStage       = errors.New("invalid stage")
)

// Pipeline is an ordered chain of inbound stages ending in a terminal error
// stage, plus an independently ordered outbound chain.
type Pipeline struct {
	stages   []Stage
	outbound []OutboundStage
	codecs   *codecRegistry
	logger   *slog.Logger
}

// NewPipeline returns an empty pipeline that encodes JSON and YAML.
func NewPipeline() *Pipeline {
	return &Pipeline{codecs: newCodecRegistry(nil), logger: slog.Default()}
}

// Append adds inbound stages. Stages run in append order.
func (p *Pipeline) Append(stages ...Stage) *Pipeline {
	p.stages = append(p.stages, stages...)
	return p
}

// AppendOutbound adds outbound stages. They run in append order on every
// response sent through the pipeline's ResponseWriter.
func (p *Pipeline) AppendOutbound(stages ...OutboundStage) *Pipeline {
	p.outbound = append(p.outbound, stages...)
	return p
}

// StageNames returns the inbound stage names in order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Compile checks the stage list and returns a handler that runs it.
func (p *Pipeline) Compile() (http.Handler, error) {
	if len(p.stages) == 0 || p.stages[len(p.stages)-1].Kind != StageTerminal {
		for _, s := range p.stages {
			if s.Kind == StageTerminal {
				return nil, fmt.Errorf("%w: %s", ErrTerminalStageOrder, s.Name)
			}
		}
		return nil, ErrNoTerminalStage
	}

	normal := p.stages[:len(p.stages)-1]
	terminal := p.stages[len(p.stages)-1]
	if terminal.HandleError == nil {
		return nil, fmt.Errorf("%w: %s has no error handler", ErrInvalidStage, terminal.Name)
	}
	for _, s := range normal {
		if s.Kind == StageTerminal {
			return nil, fmt.Errorf("%w: %s", ErrTerminalStageOrder, s.Name)
		}
		if s.Handle == nil {
			return nil, fmt.Errorf("%w: %s has no handler", ErrInvalidStage, s.Name)
		}
	}
	for _, s := range p.outbound {
		if s.Handle == nil {
			return nil, fmt.Errorf("%w: outbound %s has no handler", ErrInvalidStage, s.Name)
		}
	}

	return &compiledPipeline{
		stages:   append([]Stage(nil), normal...),
		terminal: terminal,
		outbound: append([]OutboundStage(nil), p.outbound...),
		codecs:   p.codecs,
		logger:   p.logger,
	}, nil
}

type compiledPipeline struct {
	stages   []Stage
	terminal Stage
	outbound []OutboundStage
	codecs   *codecRegistry
	logger   *slog.Logger
}

// ServeHTTP runs each stage at most once. The first failure goes to the
// terminal stage; a sent response stops the chain.
func (cp *compiledPipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := RequestContextFrom(r.Context())
	if rc == nil {
		rc = &RequestContext{}
		r = withRequestContext(r, rc)
	}
	rw := newResponseWriter(w, r, cp.outbound, cp.codecs)
	rc.Phase = PhaseInbound

	for _, s := range cp.stages {
		if rw.sent {
			return
		}
		rc.Stage = s.Name
		if err := runStage(s, rw, r); err != nil {
			rc.Phase = PhaseError
			rc.Stage = cp.terminal.Name
			cp.fail(rw, r, err)
			return
		}
	}
}

func runStage(s Stage, w *ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recovered(rec)
		}
	}()
	return s.Handle(w, r)
}

// fail runs the terminal stage. If it panics, a minimal 500 is written so
// the original failure is never masked by a crash.
func (cp *compiledPipeline) fail(w *ResponseWriter, r *http.Request, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			cp.logger.ErrorContext(r.Context(), "terminal stage panicked",
				"stage", cp.terminal.Name,
				"panic", rec,
				"error", err,
			)
			if !w.sent {
				w.write(&Response{
					Status: http.StatusInternalServerError,
					Body: &Payload{
						Name:    NameInternal,
						Message: DefaultMessage,
						Status:  http.StatusInternalServerError,
					},
				})
			}
		}
	}()
	cp.terminal.HandleError(w, r, err)
}
