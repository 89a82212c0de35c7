// Package worker implements the single-threaded order-dispatch loop a
// worker process runs: read one framed Order from stdin, execute it
// against the worker's own active namespace via kernel/ovsctl, write
// exactly one Response (or an Error) to stdout.
package worker

import (
	"fmt"
	"io"

	"github.com/netmirage/netmirage-core/internal/kernel"
	"github.com/netmirage/netmirage-core/internal/nscache"
	"github.com/netmirage/netmirage-core/internal/ovsctl"
	"github.com/netmirage/netmirage-core/internal/pipeline"
	log "github.com/netmirage/netmirage-core/pkg/minilog"
)

// Body runs a worker's main loop over in/out, calling handle for each
// order it reads. It enforces the strict "Configure first, once" rule and
// routes every handler error into an Error response rather than letting it
// escape, since exactly one response is expected per order.
type Body struct {
	configured bool

	kernel *kernel.Interface
	cache  *nscache.Cache
	ovs    *ovsctl.Instance

	ovsDirPath string
	ovsSchema  string
	nsPrefix   string

	decode func(v interface{}) error
	encode func(v interface{}) error
}

// New creates an unconfigured worker body. decode/encode wrap the pipe
// framing (see pipeline's encoder/decoder, constructed by the entrypoint
// since only it knows the concrete stdin/stdout streams).
func New(decode func(v interface{}) error, encode func(v interface{}) error) *Body {
	return &Body{decode: decode, encode: encode}
}

// Run reads orders until Terminate or the input stream closes.
func (b *Body) Run() error {
	for {
		var o pipeline.Order
		if err := b.decode(&o); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("worker: decode order: %w", err)
		}

		if o.Tag == pipeline.OrderTerminate {
			return nil
		}

		resp := b.dispatch(o)
		if err := b.encode(&resp); err != nil {
			return fmt.Errorf("worker: encode response: %w", err)
		}
	}
}

func (b *Body) dispatch(o pipeline.Order) pipeline.Response {
	if o.Tag == pipeline.OrderConfigure {
		if b.configured {
			return errorResponse(pipeline.ErrProtocolViolation, "Configure received twice")
		}
		if err := b.configure(o); err != nil {
			return errorResponse(pipeline.ErrKernel, err.Error())
		}
		b.configured = true
		return pipeline.Response{Tag: pipeline.RespPong}
	}

	if !b.configured {
		return errorResponse(pipeline.ErrProtocolViolation, "first order must be Configure")
	}

	switch o.Tag {
	case pipeline.OrderPing:
		return pipeline.Response{Tag: pipeline.RespPong}
	case pipeline.OrderGetEdgeRemoteMac:
		return b.getEdgeRemoteMac(o)
	case pipeline.OrderGetEdgeLocalMac:
		return b.getEdgeLocalMac(o)
	case pipeline.OrderAddRoot:
		return b.addRoot(o)
	case pipeline.OrderAddEdgeInterface:
		return b.addEdgeInterface(o)
	case pipeline.OrderAddHost:
		return b.addHost(o)
	case pipeline.OrderSetSelfLink:
		return b.setSelfLink(o)
	case pipeline.OrderEnsureSystemScaling:
		return b.ensureSystemScaling(o)
	case pipeline.OrderAddLink:
		return b.addLink(o)
	case pipeline.OrderAddInternalRoutes:
		return b.addInternalRoutes(o)
	case pipeline.OrderAddClientRoutes:
		return b.addClientRoutes(o)
	case pipeline.OrderAddEdgeRoutes:
		return b.addEdgeRoutes(o)
	case pipeline.OrderDestroyHosts:
		return b.destroyHosts(o)
	default:
		return errorResponse(pipeline.ErrProtocolViolation, fmt.Sprintf("unknown order tag %v", o.Tag))
	}
}

func (b *Body) configure(o pipeline.Order) error {
	level, err := log.LevelInt(levelName(o.LogThreshold))
	if err == nil {
		log.SetLevel("stderr", level)
	}

	k, err := kernel.New()
	if err != nil {
		return err
	}
	b.kernel = k
	b.cache = nscache.New(k, o.NSPrefix, nscache.CapacityFromMemory(o.SoftMemCap, 256))
	b.ovsDirPath = o.OVSDir
	b.ovsSchema = o.OVSSchema
	b.nsPrefix = o.NSPrefix
	return nil
}

func levelName(threshold int) string {
	names := []string{"debug", "info", "warn", "error", "fatal"}
	if threshold < 0 || threshold >= len(names) {
		return "INFO"
	}
	return names[threshold]
}

func errorResponse(code pipeline.ErrorCode, msg string) pipeline.Response {
	return pipeline.Response{Tag: pipeline.RespError, Code: code, Message: msg}
}
