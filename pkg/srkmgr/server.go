package srkmgr

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/serverlessresearch/srkstore/pkg/dispatch"
	"github.com/serverlessresearch/srkstore/pkg/objstore"
	"github.com/serverlessresearch/srkstore/pkg/srk"
	"github.com/serverlessresearch/srkstore/pkg/telemetry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Servers holds everything "srkstore serve" runs: the Storage gRPC service
// and the HTTP gateway for presigned URLs, health and metrics.
type Servers struct {
	GRPC    *grpc.Server
	Health  *health.Server
	Gateway http.Handler
}

// NewServers assembles the gRPC server and HTTP gateway from the manager's
// configuration and bucket bindings.
func (self *SrkManager) NewServers(metrics *telemetry.Metrics) (*Servers, error) {
	maxMsgSize := self.Cfg.GetInt("server.max-msg-size")
	opts := append(objstore.ServerOptions(),
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(
			metrics.UnaryServerInterceptor(),
			telemetry.UnaryLoggingInterceptor(self.Logger.WithField("module", "rpc"))),
	)

	if self.Cfg.GetBool("server.tls") {
		creds, err := self.serverCredentials()
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(opts...)
	objstore.RegisterStorageServer(grpcServer,
		dispatch.New(self.Logger.WithField("module", "dispatch"), self.Provider))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(objstore.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	gateway, err := self.gatewayHandler(metrics)
	if err != nil {
		return nil, err
	}

	return &Servers{GRPC: grpcServer, Health: healthServer, Gateway: gateway}, nil
}

func (self *SrkManager) serverCredentials() (credentials.TransportCredentials, error) {
	certFile, err := homedir.Expand(self.Cfg.GetString("server.cert-file"))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to expand server.cert-file")
	}
	keyFile, err := homedir.Expand(self.Cfg.GetString("server.key-file"))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to expand server.key-file")
	}

	cert, err := srk.LoadCertificates(srk.TLSFiles{
		CertFile: certFile,
		KeyFile:  keyFile,
		Hosts:    self.Cfg.GetStringSlice("server.tls-hosts"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to load TLS certificates")
	}
	return credentials.NewServerTLSFromCert(cert), nil
}

func (self *SrkManager) gatewayHandler(metrics *telemetry.Metrics) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	mounted := map[string]bool{}
	for _, gw := range self.Gateways() {
		path := strings.TrimSuffix(gw.MountPath(), "/")
		if path == "" || path == "/healthz" || path == "/metrics" {
			return nil, errors.Errorf("Gateway cannot be mounted at %q", gw.MountPath())
		}
		if mounted[path] {
			return nil, errors.Errorf("Two gateways are configured at %q", path)
		}
		mounted[path] = true
		r.Mount(path, gw.Routes())
		self.Logger.WithField("path", path).Info("Mounted presign gateway")
	}
	return r, nil
}
