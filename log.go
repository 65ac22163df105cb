package citadel

import (
	"context"

	"github.com/btcsuite/btclog"
	"github.com/mycitadel/citadel-runtime/assetclient"
	"github.com/mycitadel/citadel-runtime/build"
	"github.com/mycitadel/citadel-runtime/cache"
	"github.com/mycitadel/citadel-runtime/electrum"
	"github.com/mycitadel/citadel-runtime/model"
	"github.com/mycitadel/citadel-runtime/rpc"
	"github.com/mycitadel/citadel-runtime/runtime"
	"github.com/mycitadel/citadel-runtime/storage"
	"google.golang.org/grpc"
)

// replaceableLogger lets package-level logger vars be swapped in place once
// the root logger is ready, without callers needing a pointer indirection.
type replaceableLogger struct {
	btclog.Logger
	subsystem string
}

var (
	pkgLoggers []*replaceableLogger

	addPkgLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    build.NewSubLogger(subsystem, nil),
			subsystem: subsystem,
		}
		pkgLoggers = append(pkgLoggers, l)
		return l
	}

	rtLog  = addPkgLogger("RUNT")
	rpcLog = addPkgLogger("RPCS")
)

// SetupLoggers wires every subsystem logger in the module to root.
func SetupLoggers(root *build.RotatingLogWriter) {
	for _, l := range pkgLoggers {
		l.Logger = build.NewSubLogger(l.subsystem, root.GenSubLogger)
		SetSubLogger(root, l.subsystem, l.Logger)
	}

	AddSubLogger(root, "MODL", model.UseLogger)
	AddSubLogger(root, "STOR", storage.UseLogger)
	AddSubLogger(root, "CACH", cache.UseLogger)
	AddSubLogger(root, "ELEC", electrum.UseLogger)
	AddSubLogger(root, "ASST", assetclient.UseLogger)
	AddSubLogger(root, "RPCW", rpc.UseLogger)
	runtime.UseLogger(rtLog)
}

// AddSubLogger creates and registers the logger of one or more subsystems.
func AddSubLogger(root *build.RotatingLogWriter, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger registers the logger of a single subsystem.
func SetSubLogger(root *build.RotatingLogWriter, subsystem string,
	logger btclog.Logger, useLoggers ...func(btclog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}

// logClosure defers string formatting until a log line is actually emitted.
type logClosure func() string

func (c logClosure) String() string { return c() }

func newLogClosure(c func() string) logClosure { return logClosure(c) }

// errorLogUnaryServerInterceptor logs any error returned by a unary gRPC
// handler. Nothing in this module installs it.
func errorLogUnaryServerInterceptor(logger btclog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler) (interface{}, error) {

		resp, err := handler(ctx, req)
		if err != nil {
			logger.Errorf("[%v]: %v", info.FullMethod, err)
		}
		return resp, err
	}
}
