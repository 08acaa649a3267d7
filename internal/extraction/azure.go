package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Spring-Family-IT/aiqc-spring/internal/config"
	"github.com/Spring-Family-IT/aiqc-spring/internal/logger"
)

const (
	defaultAPIVersion       = "2023-07-31"
	defaultModelsAPIVersion = "2024-02-29-preview"
	defaultPollInterval     = 2 * time.Second
	defaultMaxPollAttempts  = 30
	defaultTimeout          = 60 * time.Second
	subscriptionKeyHeader   = "Ocp-Apim-Subscription-Key"
)

// Service 文档提取服务
type Service interface {
	// Extract 分析一份 PDF，返回 字段 ID -> 文本
	Extract(ctx context.Context, pdf []byte, modelID string) (map[string]string, error)
}

// Options Azure Document Intelligence 客户端配置
type Options struct {
	Endpoint          string
	APIKey            string
	APIVersion        string
	ModelsAPIVersion  string
	PollInterval      time.Duration
	MaxPollAttempts   int
	RequestsPerSecond float64 // <=0 不限速
	Timeout           time.Duration
}

// OptionsFromConfig 从应用配置生成客户端配置
func OptionsFromConfig(c config.ExtractionConfig) Options {
	return Options{
		Endpoint:          c.Endpoint,
		APIKey:            c.APIKey,
		APIVersion:        c.APIVersion,
		PollInterval:      c.PollInterval(),
		MaxPollAttempts:   c.MaxPollAttempts,
		RequestsPerSecond: c.RequestsPerSecond,
		Timeout:           c.Timeout(),
	}
}

func (o *Options) defaults() {
	if o.APIVersion == "" {
		o.APIVersion = defaultAPIVersion
	}
	if o.ModelsAPIVersion == "" {
		o.ModelsAPIVersion = defaultModelsAPIVersion
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.MaxPollAttempts <= 0 {
		o.MaxPollAttempts = defaultMaxPollAttempts
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
}

// AzureClient Azure Document Intelligence 客户端
type AzureClient struct {
	endpoint string
	apiKey   string
	opts     Options
	limiter  *rate.Limiter
	do       func(*http.Request) (*http.Response, error)
	sleep    func(context.Context, time.Duration) error
}

// NewAzureClient 创建客户端；缺少地址或密钥返回 ErrNotConfigured
func NewAzureClient(opts Options) (*AzureClient, error) {
	opts.defaults()
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" || opts.APIKey == "" {
		return nil, fmt.Errorf("%w: endpoint and api key are required", ErrNotConfigured)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	hc := &http.Client{Timeout: opts.Timeout}

	return &AzureClient{
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
		do:       hc.Do,
		sleep:    sleepCtx,
	}, nil
}

// Extract 提交分析并轮询结果
func (c *AzureClient) Extract(ctx context.Context, pdf []byte, modelID string) (map[string]string, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, errors.New("model id is required")
	}

	opURL, err := c.submit(ctx, pdf, modelID)
	if err != nil {
		return nil, err
	}
	logger.Debug("analysis submitted", zap.String("model", modelID))

	res, err := c.poll(ctx, opURL)
	if err != nil {
		return nil, err
	}

	fields := flatten(res)
	logger.Debug("analysis complete",
		zap.String("model", modelID),
		zap.Int("fields", len(fields)),
		zap.Strings("barcode_kinds", barcodeKinds(res)),
	)
	return fields, nil
}

func (c *AzureClient) analyzeURL(modelID string) string {
	return fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s&features=barcodes&features=ocrHighResolution",
		c.endpoint, url.PathEscape(modelID), url.QueryEscape(c.opts.APIVersion))
}

func (c *AzureClient) submit(ctx context.Context, pdf []byte, modelID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL(modelID), bytes.NewReader(pdf))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", &ServiceError{Status: resp.StatusCode, Message: "no operation location returned"}
	}
	return opURL, nil
}

// poll 每次查询前等待一个间隔；succeeded/failed 之外的状态继续等待
func (c *AzureClient) poll(ctx context.Context, opURL string) (*analyzeResult, error) {
	for attempt := 0; attempt < c.opts.MaxPollAttempts; attempt++ {
		if err := c.sleep(ctx, c.opts.PollInterval); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		resp, err := c.send(ctx, req)
		if err != nil {
			return nil, err
		}

		var op analyzeOperation
		err = json.NewDecoder(resp.Body).Decode(&op)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode analyze result: %w", err)
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.AnalyzeResult == nil {
				return &analyzeResult{}, nil
			}
			return op.AnalyzeResult, nil
		case "failed":
			if op.Error != nil && op.Error.Message != "" {
				return nil, fmt.Errorf("%w: %s", ErrAnalysisFailed, op.Error.Message)
			}
			return nil, ErrAnalysisFailed
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrTimeout, c.opts.MaxPollAttempts)
}

// send 限速后发出请求；429 映射为 ErrRateLimited，其他非 2xx 为 *ServiceError
func (c *AzureClient) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &ServiceError{Status: resp.StatusCode, Message: strings.TrimSpace(string(slurp))}
	}
	return resp, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
