package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/genbridge/internal/bridge"
	"github.com/Iron-Ham/genbridge/internal/logging"
	"github.com/Iron-Ham/genbridge/internal/worker"
)

const (
	// WarmupSource identifies scheduled keep-warm events.
	WarmupSource = "warmup"

	// WarmupDelay keeps this instance busy long enough for self-invocations
	// to land on other instances.
	WarmupDelay = 75 * time.Millisecond
)

// WarmupEvent is the scheduled keep-warm payload.
type WarmupEvent struct {
	Source      string `json:"source"`
	Concurrency int    `json:"concurrency"`
}

// WarmupResponse is returned for warmup events instead of a proxy response.
type WarmupResponse struct {
	Status          string `json:"status"`
	InstancesWarmed int    `json:"instancesWarmed"`
}

// IsWarmupEvent reports whether event is a keep-warm ping.
func IsWarmupEvent(event json.RawMessage) (*WarmupEvent, bool) {
	var fields map[string]any
	if err := json.Unmarshal(event, &fields); err != nil {
		return nil, false
	}
	source, ok := fields["source"].(string)
	if !ok || source != WarmupSource {
		return nil, false
	}
	warmup := &WarmupEvent{Source: source}
	if concurrency, ok := fields["concurrency"].(float64); ok && concurrency > 0 {
		warmup.Concurrency = int(concurrency)
	}
	return warmup, true
}

// LambdaHandler serves API Gateway proxy events with the same routes,
// validation and outcome mapping as the HTTP server.
type LambdaHandler struct {
	gen          Generator
	logger       *logging.Logger
	maxBodyBytes int64
	retryAfter   time.Duration
	warmDelay    time.Duration

	invoker  worker.LambdaInvoker
	function string
}

// LambdaOption customizes a LambdaHandler.
type LambdaOption func(*LambdaHandler)

// WithLambdaLogger overrides the default no-op logger.
func WithLambdaLogger(l *logging.Logger) LambdaOption {
	return func(h *LambdaHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithLambdaMaxBody caps decoded request bodies. 0 disables the cap.
func WithLambdaMaxBody(n int64) LambdaOption {
	return func(h *LambdaHandler) { h.maxBodyBytes = n }
}

// WithLambdaRetryAfter sets the Retry-After hint for capacity rejections.
func WithLambdaRetryAfter(d time.Duration) LambdaOption {
	return func(h *LambdaHandler) {
		if d > 0 {
			h.retryAfter = d
		}
	}
}

// WithSelfInvoke lets warmup events fan out to additional instances of
// function through client.
func WithSelfInvoke(client worker.LambdaInvoker, function string) LambdaOption {
	return func(h *LambdaHandler) {
		h.invoker = client
		h.function = function
	}
}

// WithWarmupDelay overrides WarmupDelay.
func WithWarmupDelay(d time.Duration) LambdaOption {
	return func(h *LambdaHandler) {
		if d >= 0 {
			h.warmDelay = d
		}
	}
}

// NewLambdaHandler wraps gen for the Lambda runtime.
func NewLambdaHandler(gen Generator, opts ...LambdaOption) *LambdaHandler {
	if gen == nil {
		panic("server: Generator must not be nil")
	}
	h := &LambdaHandler{
		gen:        gen,
		logger:     logging.NopLogger(),
		retryAfter: time.Second,
		warmDelay:  WarmupDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Handle is the function passed to lambda.Start.
func (h *LambdaHandler) Handle(ctx context.Context, event json.RawMessage) (any, error) {
	// Warmup detection comes before any other processing.
	if warmup, ok := IsWarmupEvent(event); ok {
		return h.handleWarmup(ctx, warmup), nil
	}

	var req events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &req); err != nil {
		return h.proxyResponse(http.StatusBadRequest, "", errorPayload(msgInvalidBody), false), nil
	}
	return h.HandleProxy(ctx, req), nil
}

// HandleProxy routes a single API Gateway proxy request.
func (h *LambdaHandler) HandleProxy(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	requestID := resolveRequestID(headerValue(req.Headers, RequestIDHeader))
	if headerValue(req.Headers, RequestIDHeader) == "" && req.RequestContext.RequestID != "" {
		requestID = resolveRequestID(req.RequestContext.RequestID)
	}
	log := h.logger.WithRequest(requestID)

	path := req.Path
	if path == "" {
		path = "/"
	}
	method := strings.ToUpper(req.HTTPMethod)

	var resp events.APIGatewayProxyResponse
	switch path {
	case "/generate", "/api/llm/generate":
		resp = h.handleGenerate(ctx, requestID, method, req)
	case "/healthz":
		resp = h.proxyResponse(http.StatusOK, requestID, healthResponse{
			Status:   string(StatusReady),
			InFlight: h.gen.InFlight(),
			Limit:    h.gen.Limit(),
		}, false)
	case "/":
		resp = events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers: map[string]string{
				"Content-Type":  "text/html; charset=utf-8",
				RequestIDHeader: requestID,
			},
			Body: rootText,
		}
	default:
		resp = h.proxyResponse(http.StatusNotFound, requestID, errorPayload(msgNotFound), false)
	}
	log.Debug("lambda request", "method", method, "path", path, "status", resp.StatusCode)
	return resp
}

func (h *LambdaHandler) handleGenerate(ctx context.Context, requestID, method string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if method != http.MethodPost {
		resp := h.proxyResponse(http.StatusMethodNotAllowed, requestID, errorPayload(msgMethodNotAllowed), false)
		resp.Headers["Allow"] = http.MethodPost
		return resp
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return h.proxyResponse(http.StatusBadRequest, requestID, errorPayload(msgInvalidBody), false)
		}
		body = decoded
	}
	if h.maxBodyBytes > 0 && int64(len(body)) > h.maxBodyBytes {
		return h.proxyResponse(http.StatusRequestEntityTooLarge, requestID, errorPayload(msgBodyTooLarge), false)
	}

	out := h.gen.Generate(bridge.WithRequestID(ctx, requestID), body)
	rendered := renderOutcome(out)
	return h.proxyResponse(rendered.status, requestID, rendered.payload, rendered.retryAfter)
}

func (h *LambdaHandler) proxyResponse(status int, requestID string, payload any, retryAfter bool) events.APIGatewayProxyResponse {
	headers := map[string]string{"Content-Type": "application/json"}
	if requestID != "" {
		headers[RequestIDHeader] = requestID
	}
	if retryAfter {
		headers["Retry-After"] = strconv.Itoa(retryAfterSeconds(h.retryAfter))
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(encodeJSON(payload)),
	}
}

func (h *LambdaHandler) handleWarmup(ctx context.Context, warmup *WarmupEvent) map[string]any {
	warmed := 1
	if warmup.Concurrency > 0 && h.invoker != nil {
		if err := h.selfInvoke(ctx, warmup.Concurrency); err != nil {
			h.logger.Warn("warmup self-invoke failed", "error", err, "concurrency", warmup.Concurrency)
		} else {
			warmed += warmup.Concurrency
		}
	}

	if h.warmDelay > 0 {
		timer := time.NewTimer(h.warmDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	return map[string]any{
		"statusCode": http.StatusOK,
		"body": WarmupResponse{
			Status:          "warm",
			InstancesWarmed: warmed,
		},
	}
}

// selfInvoke fires count asynchronous invocations of this function. Child
// payloads carry concurrency 0 so they do not fan out again.
func (h *LambdaHandler) selfInvoke(ctx context.Context, count int) error {
	payload, err := json.Marshal(WarmupEvent{Source: WarmupSource})
	if err != nil {
		return err
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for range count {
		p.Go(func(ctx context.Context) error {
			_, err := h.invoker.Invoke(ctx, &lambdasdk.InvokeInput{
				FunctionName:   aws.String(h.function),
				InvocationType: types.InvocationTypeEvent,
				Payload:        payload,
			})
			return err
		})
	}
	return p.Wait()
}

// headerValue looks up name case-insensitively; API Gateway preserves the
// client's header casing.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
