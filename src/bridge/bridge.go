// Package bridge exposes the message protocol over local HTTP so a browser
// shim can talk to the resident background context.
package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"context-capture/src/messages"
	"context-capture/src/router"
)

const (
	maxBodySize     = 16 << 20
	defaultTimeout  = 60 * time.Second
	shutdownTimeout = 5 * time.Second

	// TokenHeader carries the shared secret on every /v1 request.
	TokenHeader = "X-Bridge-Token"
)

type Options struct {
	Router  *router.Router
	Timeout time.Duration
	// Token must match TokenHeader. An empty token rejects every /v1 request.
	Token string
	// AllowedOrigin is echoed in CORS responses when it matches the request
	// Origin. Empty disables cross-origin access.
	AllowedOrigin string
	// AllowRemote permits binding a non-loopback address.
	AllowRemote bool
}

type Server struct {
	opts   Options
	engine *gin.Engine
}

func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	s := &Server{opts: opts}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger())
	r.Use(CORS(opts.AllowedOrigin))

	r.GET("/healthz", s.health)
	v1 := r.Group("/v1")
	v1.Use(Auth(opts.Token))
	{
		v1.POST("/messages", s.postMessage)
	}
	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled. Non-loopback
// addresses are refused unless Options.AllowRemote is set.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if !s.opts.AllowRemote {
		if err := CheckLoopback(addr); err != nil {
			return err
		}
	}
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Bridge: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	state := "ok"
	if !s.opts.Router.IsHealthy() {
		status, state = http.StatusServiceUnavailable, "unavailable"
	}
	c.JSON(status, gin.H{
		"status":   state,
		"contexts": s.opts.Router.Contexts(),
	})
}

// postMessage accepts {"type","data"} and returns the handler's response
// JSON. Handler failures are 200 with {"error"}; only transport problems use
// other status codes.
func (s *Server) postMessage(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	msg, err := messages.Decode(raw)
	if err != nil {
		var unknown messages.ErrUnknownType
		if errors.As(err, &unknown) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown message type"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.Timeout)
	defer cancel()
	resp, err := s.opts.Router.Request(ctx, messages.ContextBridge, messages.ContextBackground, msg)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	body, err := messages.EncodeResponse(resp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// Logger logs one line per request with the std logger.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Printf("Bridge: %s %s status=%d ip=%s cost=%v",
			c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// CORS answers preflights and grants cross-origin access only to origin.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		if origin != "" && c.GetHeader("Origin") == origin {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+TokenHeader)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Auth requires TokenHeader to equal token.
func Auth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(TokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// CheckLoopback returns an error unless addr binds a loopback interface.
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid bridge address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("bridge address %q is not loopback; set BRIDGE_ALLOW_REMOTE=true to expose it", addr)
}
