package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/runloop-ai/runloop/core"
	"github.com/runloop-ai/runloop/logging"
)

// EndpointClientOptions configure an EndpointClient.
type EndpointClientOptions struct {
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// Timeout bounds each discovery or execution call.
	Timeout time.Duration
	// RateLimit throttles calls to the endpoint (requests per second);
	// zero disables throttling.
	RateLimit rate.Limit
	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int
	// Headers are attached to every request (e.g. authorization).
	Headers map[string]string
	// Logger records endpoint failures.
	Logger logging.Logger
}

// EndpointClient talks to a remote action/agent endpoint: discovery returns
// the actions it serves, execution is a request/response call keyed by name
// plus arguments. Actions with Availability=remote route here instead of the
// local registry.
type EndpointClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string
	logger  logging.Logger
}

// NewEndpointClient constructs a client for the endpoint at baseURL.
func NewEndpointClient(baseURL string, optFns ...func(o *EndpointClientOptions)) *EndpointClient {
	opts := EndpointClientOptions{
		Timeout: DefaultTimeout,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	return &EndpointClient{
		baseURL: baseURL,
		client:  client,
		limiter: limiter,
		headers: opts.Headers,
		logger:  opts.Logger,
	}
}

type endpointCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type endpointCallResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Discover fetches the action specs served by the endpoint. Returned specs
// are normalized to Availability=remote so the executor routes back here.
func (c *EndpointClient) Discover(ctx context.Context) ([]core.ActionSpec, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/actions", nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action endpoint discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("action endpoint discovery: unexpected status %d", resp.StatusCode)
	}

	var specs []core.ActionSpec
	if err := json.NewDecoder(resp.Body).Decode(&specs); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}
	for i := range specs {
		specs[i].Availability = core.AvailabilityRemote
	}
	return specs, nil
}

// Call executes the named action remotely and returns the decoded result.
// Endpoint-reported failures surface as *Error{Code: HANDLER_ERROR}.
func (c *EndpointClient) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(endpointCallRequest{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encode endpoint call: %w", err)
	}

	callURL := c.baseURL + "/actions/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build endpoint call: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("action.endpoint.error", "action", name, "error", err.Error())
		return nil, &Error{Action: name, Message: err.Error(), Code: CodeHandlerError, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, NewError(name, "action is not served by the endpoint", CodeNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(name, fmt.Sprintf("unexpected status %d", resp.StatusCode), CodeHandlerError)
	}

	var decoded endpointCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode endpoint response: %w", err)
	}
	if decoded.Error != "" {
		return nil, NewError(name, decoded.Error, CodeHandlerError)
	}
	if len(decoded.Result) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		return nil, fmt.Errorf("decode endpoint result: %w", err)
	}
	return result, nil
}

func (c *EndpointClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *EndpointClient) setHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}
