package api

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// buildSpec describes the public surface. The x-max_batch_inputs info
// extension advertises the admission limit so clients can self-throttle.
func (a *API) buildSpec() *openapi3.T {
	computePath := a.cfg.APIV2Str + a.cfg.APIComputePrefix

	paths := openapi3.NewPaths()
	paths.Set(computePath, &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "compute",
			Summary:     "Submit a computation; returns the root task id.",
			Tags:        []string{"compute"},
			Responses: respond(
				"200", "Task ID for the requested computation.",
			),
		},
	})
	paths.Set(computePath+"/output/{task_id}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "result",
			Summary:     "Retrieve a task's state and output.",
			Tags:        []string{"compute"},
			Responses: respond(
				"200", "A compute task's status and (if complete) return value.",
			),
		},
	})
	paths.Set(a.cfg.APIV2Str+a.cfg.APIOAuthPrefix+"/token", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "token",
			Summary:     "OAuth2 password/refresh flow passthrough.",
			Tags:        []string{"auth"},
			Responses: respond(
				"200", "Token set issued by the identity provider.",
			),
		},
	})

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "ChemCloud",
			Description: "Computational chemistry at cloud scale.",
			Version:     "2.0.0",
			Extensions: map[string]any{
				"x-max_batch_inputs": a.cfg.MaxBatchInputs,
			},
		},
		Paths: paths,
	}
}

func respond(code, description string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set(code, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(description),
	})
	return responses
}

// HandleOpenAPI serves the generated schema at /openapi.json.
func (a *API) HandleOpenAPI() http.HandlerFunc {
	var once sync.Once
	var cached []byte
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			cached, _ = a.buildSpec().MarshalJSON()
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(cached)
	}
}
