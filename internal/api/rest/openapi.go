package rest

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// OpenAPI is the parsed API contract
type OpenAPI struct {
	Doc  *openapi3.T
	json []byte
}

// LoadOpenAPI parses and validates the embedded contract.
func LoadOpenAPI() (*OpenAPI, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("loading openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validating openapi document: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding openapi document: %w", err)
	}
	return &OpenAPI{Doc: doc, json: data}, nil
}

// ServeHTTP handles GET /openapi.json.
func (o *OpenAPI) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(o.json)
}

// ValidationMiddleware rejects JSON requests whose parameters or body do
// not match the contract. Multipart uploads are left to the handlers so
// large files are never buffered.
func (o *OpenAPI) ValidationMiddleware(errorHandler *ErrorHandler) (Middleware, error) {
	router, err := gorillamux.NewRouter(o.Doc)
	if err != nil {
		return nil, fmt.Errorf("building openapi router: %w", err)
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if mediaType != "application/json" {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				// unknown routes fall through to the mux
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				errorHandler.HandleError(w, r, contractError(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func contractError(err error) error {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		msgs := make([]string, 0, len(multi))
		for _, e := range multi {
			msgs = append(msgs, e.Error())
		}
		return &ValidationError{Message: "Request does not match the API contract", Fields: map[string][]string{"body": msgs}}
	}
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		return &ValidationError{Message: "Request does not match the API contract", Fields: map[string][]string{"body": {reqErr.Error()}}}
	}
	return &ValidationError{Message: "Request does not match the API contract"}
}
