package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"roomrelay/internal/http/roomhandler"
	"roomrelay/internal/ws"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Options struct {
	ListenPort     uint16
	AllowedOrigins []string
	StaticDir      string
}

type httpServer struct {
	opts  Options
	srv   http.Server
	ln    net.Listener
	dir   roomhandler.Directory
	wsSrv *ws.WsServer
	ctx   context.Context
}

func NewHttpServer(ctx context.Context, opts Options, wsSrv *ws.WsServer, dir roomhandler.Directory) *httpServer {
	return &httpServer{
		opts:  opts,
		wsSrv: wsSrv,
		dir:   dir,
		ctx:   ctx,
	}
}

// Handler builds the gin engine. It is separate from Start so tests can
// drive it through httptest.
func (h *httpServer) Handler() http.Handler {
	routerEngine := gin.New()

	routerEngine.Use(ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/healthz"},
	}))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))
	routerEngine.Use(cors.New(corsConfig(h.opts.AllowedOrigins)))

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	// websocket endpoint
	routerEngine.GET("/ws", h.wsSrv.Handle)

	// REST API
	rh := roomhandler.New(h.dir)
	rh.Register(routerEngine)

	// Static web client with index.html fallback for client-side routes
	if h.opts.StaticDir != "" {
		routerEngine.NoRoute(spaHandler(h.opts.StaticDir))
	}
	return routerEngine
}

func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.opts.ListenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http_listening", zap.String("addr", h.ln.Addr().String()))

	h.srv = http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish, then closes the
// hijacked websocket connections so every member leaves its room.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}
	if err := h.wsSrv.Shutdown(ctx); err != nil {
		zap.L().Error("ws_dispose", zap.Error(err))
		return err
	}
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func spaHandler(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, roomhandler.ErrorResponse{Error: "not found"})
			return
		}
		clean := path.Clean("/" + c.Request.URL.Path)
		file := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
		if st, err := os.Stat(file); err == nil && !st.IsDir() {
			c.File(file)
			return
		}
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, roomhandler.ErrorResponse{Error: "not found"})
			return
		}
		c.File(index)
	}
}
