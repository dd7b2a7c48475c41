package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bissquit/statusboard/api/openapi"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// validatedPrefix limits checks to the versioned JSON API. Probes, docs
// and the websocket upgrade are not described as JSON operations.
const (
	validatedPrefix = "/api/v1/"
	websocketPrefix = "/api/v1/ws/"
)

// OpenAPIValidator checks API traffic against the embedded OpenAPI document.
type OpenAPIValidator struct {
	router routers.Router
}

// LoadOpenAPIValidator parses and validates the embedded API description.
func LoadOpenAPIValidator() (*OpenAPIValidator, error) {
	return newOpenAPIValidator(openapi.Spec)
}

func newOpenAPIValidator(spec []byte) (*OpenAPIValidator, error) {
	doc, err := openapi3.NewLoader().LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("parse OpenAPI document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI document: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{router: router}, nil
}

func covered(path string) bool {
	return strings.HasPrefix(path, validatedPrefix) && !strings.HasPrefix(path, websocketPrefix)
}

// Check validates the request (with its JSON body) and the response it got.
// Failures are reported on t without stopping the test. The response body
// is buffered and restored for the caller.
func (v *OpenAPIValidator) Check(t *testing.T, req *http.Request, reqBody []byte, resp *http.Response) {
	t.Helper()

	if !covered(req.URL.Path) {
		return
	}

	route, params, err := v.router.FindRoute(req)
	if err != nil {
		t.Errorf("OpenAPI: %s %s is not documented: %v", req.Method, req.URL.Path, err)
		return
	}

	// Authentication is enforced by the server, not re-checked here.
	opts := &openapi3filter.Options{
		MultiError:         true,
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	reqCopy := req.Clone(context.Background())
	reqCopy.Body = io.NopCloser(bytes.NewReader(reqBody))
	input := &openapi3filter.RequestValidationInput{
		Request:    reqCopy,
		PathParams: params,
		Route:      route,
		Options:    opts,
	}

	// Negative tests send invalid requests on purpose; only documented
	// successes must have matched the request schema.
	if resp.StatusCode < http.StatusBadRequest {
		if err := openapi3filter.ValidateRequest(context.Background(), input); err != nil {
			t.Errorf("OpenAPI: request %s %s does not match: %v", req.Method, req.URL.Path, shorten(err))
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	if err != nil {
		t.Errorf("read response body: %v", err)
		return
	}

	respInput := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 resp.StatusCode,
		Header:                 resp.Header,
		Body:                   io.NopCloser(bytes.NewReader(respBody)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	}
	if err := openapi3filter.ValidateResponse(context.Background(), respInput); err != nil {
		t.Errorf("OpenAPI: response %d of %s %s does not match: %v\nbody: %s",
			resp.StatusCode, req.Method, req.URL.Path, shorten(err), shortenBytes(respBody))
	}
}

func shorten(err error) string {
	var multi openapi3.MultiError
	if errors.As(err, &multi) && len(multi) > 3 {
		return fmt.Sprintf("%v (and %d more)", multi[:3], len(multi)-3)
	}
	msg := err.Error()
	if len(msg) > 500 {
		return msg[:500] + "..."
	}
	return msg
}

func shortenBytes(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
