package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/internal/telemetry"
)

// maxBodySize 单次请求体上限
const maxBodySize = 1 << 20

// routeUnmatched 是未匹配请求在指标中的路由标签
const routeUnmatched = "unmatched"

// Request 是分发给处理函数的一次协议调用
type Request struct {
	Method string
	Path   string
	// Params 是从路径模板中提取的参数
	Params map[string]string
	Body   json.RawMessage
}

// Param 返回路径参数
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// HandlerFunc 处理一次协议调用，返回值作为响应 body
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Response 是协议调用的结果，Status 取值 200、404 或 500
type Response struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

type route struct {
	method   string
	template string
	segments []string
	handler  HandlerFunc
}

// match 比较路径与模板，{name} 段匹配任意非空段
func (rt *route) match(segments []string) (map[string]string, bool) {
	if len(segments) != len(rt.segments) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range rt.segments {
		if name, ok := paramName(seg); ok {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string, 1)
			}
			params[name] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}
	return params, true
}

func paramName(seg string) (string, bool) {
	if len(seg) > 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Router 按 (method, 路径模板) 把协议调用分发给处理函数
type Router struct {
	routes  []route
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option 配置 Router
type Option func(*Router)

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Router) { r.metrics = c }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter 创建空路由表
func NewRouter(opts ...Option) *Router {
	r := &Router{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "skill_protocol"))
	return r
}

// Handle 注册路由。先注册的路由优先匹配。
func (r *Router) Handle(method, template string, h HandlerFunc) {
	r.routes = append(r.routes, route{
		method:   strings.ToUpper(method),
		template: template,
		segments: splitPath(template),
		handler:  h,
	})
}

// Dispatch 匹配路由并调用处理函数。
// 未匹配返回 404；处理函数出错或 panic 返回 500；成功返回 200 与处理函数的返回值。
func (r *Router) Dispatch(ctx context.Context, method, path string, body []byte) (resp Response) {
	method = strings.ToUpper(method)
	segments := splitPath(path)

	for i := range r.routes {
		rt := &r.routes[i]
		if rt.method != method {
			continue
		}
		params, ok := rt.match(segments)
		if !ok {
			continue
		}
		return r.invoke(ctx, rt, &Request{Method: method, Path: path, Params: params, Body: body})
	}

	r.metrics.RecordProtocolDispatch(method, routeUnmatched, http.StatusNotFound)
	return Response{
		Status: http.StatusNotFound,
		Body:   errorBody(fmt.Errorf("endpoint not found: %s %s", method, path)),
	}
}

func (r *Router) invoke(ctx context.Context, rt *route, req *Request) (resp Response) {
	ctx, span := telemetry.Tracer().Start(ctx, "skill.protocol "+rt.method+" "+rt.template,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", rt.method),
			attribute.String("http.route", rt.template),
		),
	)

	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
			r.logger.Error("protocol handler panicked",
				zap.String("route", rt.template),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			resp = Response{Status: http.StatusInternalServerError, Body: errorBody(err)}
		}
		r.metrics.RecordProtocolDispatch(rt.method, rt.template, resp.Status)
		telemetry.EndSpan(span, err)
	}()

	body, err := rt.handler(ctx, req)
	if err != nil {
		r.logger.Error("protocol handler failed",
			zap.String("method", rt.method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return Response{Status: http.StatusInternalServerError, Body: errorBody(err)}
	}
	return Response{Status: http.StatusOK, Body: body}
}

// ServeHTTP 以 HTTP 暴露路由表。挂载时需先去掉前缀（http.StripPrefix）。
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		r.writeJSON(w, http.StatusInternalServerError, errorBody(fmt.Errorf("read body: %w", err)))
		return
	}
	resp := r.Dispatch(req.Context(), req.Method, req.URL.Path, body)
	r.writeJSON(w, resp.Status, resp.Body)
}

func (r *Router) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		r.logger.Error("failed to encode response", zap.Error(err))
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
