// Package server 以HTTP JSON接口暴露分区找回操作.
// 地址前缀: http://ip:port/api/v1/.
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/kisun-bit/undelpart/disk/undelete"
	"github.com/kisun-bit/undelpart/util/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultAddr = "127.0.0.1:8390"

type Server struct {
	session   *undelete.Session
	addr      string
	pprof     bool
	accessLog io.Writer
	logger    *zap.SugaredLogger
	locks     *pathLocks
	engine    *gin.Engine
}

type Option func(s *Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithPProf 在 /api/v1/pprof 下注册pprof分析路由.
func WithPProf(enable bool) Option {
	return func(s *Server) {
		s.pprof = enable
	}
}

// WithAccessLog 设置请求日志的输出, 默认丢弃.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.accessLog = w
	}
}

func WithServerLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func New(session *undelete.Session, options ...Option) *Server {
	s := &Server{
		session:   session,
		addr:      DefaultAddr,
		accessLog: io.Discard,
		locks:     newPathLocks(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.DisableConsoleColor()
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.accessLog))
	r.Use(gin.Recovery())

	apiv1 := r.Group("/api/v1")
	apiv1.GET("/disks", s.getDisks)
	apiv1.GET("/partitions", s.getPartitions)
	apiv1.PUT("/partitions", s.setPartitions)
	apiv1.POST("/plan", s.planPartitions)
	apiv1.GET("/rescuable", s.getRescuable)
	apiv1.POST("/rescue", s.rescue)
	if s.pprof {
		pprof.RouteRegister(apiv1, "pprof")
	}
	return r
}

// Handler 返回服务的 http.Handler, 测试中常用.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe 启动服务直至ctx结束, 随后在5秒内优雅退出.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("ListenAndServe. Listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "serve %s", s.addr)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	s.logger.Infof("ListenAndServe. Server on %s stopped", s.addr)
	return nil
}
