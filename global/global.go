package global

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lunfardo314/dagcore/util"
	"github.com/lunfardo314/dagcore/util/set"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	// Logging is the minimal logging environment every component of the core depends on
	Logging interface {
		Log() *zap.SugaredLogger
		Tracef(tag string, format string, args ...any)
	}

	// NodeGlobal is the node-lifetime environment: logging, lifecycle and metrics
	NodeGlobal interface {
		Logging
		Ctx() context.Context
		Stop()
		MetricsRegistry() *prometheus.Registry
		RepeatInBackground(name string, period time.Duration, fun func() bool)
	}

	Global struct {
		*zap.SugaredLogger
		*sync.WaitGroup
		ctx             context.Context
		stopFun         context.CancelFunc
		once            *sync.Once
		enabledTrace    atomic.Bool
		traceTagsMutex  sync.RWMutex
		traceTags       set.Set[string]
		metricsRegistry *prometheus.Registry
	}
)

func New() *Global {
	return NewWithLogger(NewLogger("", zapcore.InfoLevel, nil, ""))
}

// NewWithLogger creates environment with the provided logger. Used by tests with zaptest loggers
func NewWithLogger(log *zap.SugaredLogger) *Global {
	ctx, cancelFun := context.WithCancel(context.Background())
	return &Global{
		ctx:             ctx,
		stopFun:         cancelFun,
		SugaredLogger:   log,
		traceTags:       set.New[string](),
		WaitGroup:       &sync.WaitGroup{},
		once:            &sync.Once{},
		metricsRegistry: prometheus.NewRegistry(),
	}
}

func (l *Global) MarkStartedComponent() {
	l.WaitGroup.Add(1)
}

func (l *Global) MarkStoppedComponent() {
	l.WaitGroup.Done()
}

func (l *Global) Stop() {
	l.stopFun()
}

func (l *Global) Ctx() context.Context {
	return l.ctx
}

func (l *Global) Wait() {
	l.WaitGroup.Wait()
	l.once.Do(func() {
		l.Log().Info("all components stopped")
	})
}

func (l *Global) Log() *zap.SugaredLogger {
	return l.SugaredLogger
}

func (l *Global) MetricsRegistry() *prometheus.Registry {
	return l.metricsRegistry
}

// RepeatInBackground runs fun every period until it returns false or the global context is cancelled
func (l *Global) RepeatInBackground(name string, period time.Duration, fun func() bool) {
	l.MarkStartedComponent()
	go func() {
		defer l.MarkStoppedComponent()
		defer l.Log().Infof("background loop '%s' stopped", name)

		for {
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(period):
				if !fun() {
					return
				}
			}
		}
	}()
	l.Log().Infof("background loop '%s' started", name)
}

func (l *Global) EnableTrace(enable bool) {
	l.enabledTrace.Store(enable)
}

func (l *Global) EnableTraceTags(tags ...string) {
	l.traceTagsMutex.Lock()
	for _, t := range tags {
		st := strings.Split(t, ",")
		for _, t1 := range st {
			if t1 = strings.TrimSpace(t1); t1 != "" {
				l.traceTags.Insert(t1)
				l.enabledTrace.Store(true)
			}
		}
	}
	l.traceTagsMutex.Unlock()
	for _, tag := range tags {
		l.Tracef(tag, "trace tag enabled")
	}
}

func (l *Global) DisableTraceTag(tag string) {
	l.traceTagsMutex.Lock()
	defer l.traceTagsMutex.Unlock()

	l.traceTags.Remove(tag)
	if len(l.traceTags) == 0 {
		l.enabledTrace.Store(false)
	}
}

func (l *Global) TraceLog(log *zap.SugaredLogger, tag string, format string, args ...any) {
	if !l.enabledTrace.Load() {
		return
	}

	l.traceTagsMutex.RLock()
	defer l.traceTagsMutex.RUnlock()

	for _, t := range strings.Split(tag, ",") {
		if l.traceTags.Contains(t) {
			log.Infof("TRACE(%s) %s", t, fmt.Sprintf(format, util.EvalLazyArgs(args...)...))
			return
		}
	}
}

func (l *Global) Tracef(tag string, format string, args ...any) {
	l.TraceLog(l.Log(), tag, format, args...)
}

type subLogger struct {
	log    *zap.SugaredLogger
	parent Logging
}

// MakeSubLogger named logger which shares trace settings with the parent
func MakeSubLogger(l Logging, name string) Logging {
	return subLogger{
		log:    l.Log().Named(name),
		parent: l,
	}
}

func (s subLogger) Log() *zap.SugaredLogger {
	return s.log
}

func (s subLogger) Tracef(tag string, format string, args ...any) {
	if g, ok := s.parent.(*Global); ok {
		g.TraceLog(s.log, tag, format, args...)
		return
	}
	s.parent.Tracef(tag, format, args...)
}
