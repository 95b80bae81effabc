package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openapi3 "github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/trellisgw/trellis/internal/console/docstore"
	"github.com/trellisgw/trellis/internal/console/engine"
	"github.com/trellisgw/trellis/internal/console/events"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// serveOpenAPI returns an OpenAPI v3 JSON document generated from console types.
func (api *apiServer) serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	baseURL := ""
	if r != nil && r.Host != "" {
		scheme := "http"
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	spec, err := BuildOpenAPISpec(baseURL)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build openapi: %v", err), http.StatusInternalServerError)
		return
	}
	data, err := json.Marshal(spec)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal openapi: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// BuildOpenAPISpec constructs the OpenAPI spec. If baseURL is non-empty, it will be set as the server URL.
func BuildOpenAPISpec(baseURL string) (*openapi3.T, error) {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Trellis Console API",
			Version:     "v1",
			Description: "REST interface for the Trellis gateway configuration console.",
		},
		Servers:    openapi3.Servers{},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}
	if baseURL != "" {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: baseURL})
	}

	gen := openapi3gen.NewGenerator(
		openapi3gen.CreateComponentSchemas(openapi3gen.ExportComponentSchemasOptions{
			ExportComponentSchemas: true,
			ExportTopLevelSchema:   false,
			ExportGenerics:         true,
		}),
	)

	// Register schemas from request/response types.
	snapshotRef, _ := gen.NewSchemaRefForValue(&engine.Snapshot{}, spec.Components.Schemas)
	statsRespRef, _ := gen.NewSchemaRefForValue(&statsResponse{}, spec.Components.Schemas)
	documentRef, _ := gen.NewSchemaRefForValue(&gatewaycfg.Document{}, spec.Components.Schemas)
	historyRef, _ := gen.NewSchemaRefForValue(&docstore.HistoryEntry{}, spec.Components.Schemas)
	editReqRef, _ := gen.NewSchemaRefForValue(&editRequest{}, spec.Components.Schemas)
	editRespRef, _ := gen.NewSchemaRefForValue(&editResponse{}, spec.Components.Schemas)
	resolveReqRef, _ := gen.NewSchemaRefForValue(&resolveRequest{}, spec.Components.Schemas)
	resolveResultRef, _ := gen.NewSchemaRefForValue(&engine.ResolveResult{}, spec.Components.Schemas)
	namedBackendRef, _ := gen.NewSchemaRefForValue(&gatewaycfg.NamedBackend{}, spec.Components.Schemas)
	backendRef, _ := gen.NewSchemaRefForValue(&gatewaycfg.Backend{}, spec.Components.Schemas)
	policyRef, _ := gen.NewSchemaRefForValue(&gatewaycfg.Policy{}, spec.Components.Schemas)
	docEventRef, _ := gen.NewSchemaRefForValue(&events.DocumentEvent{}, spec.Components.Schemas)

	// Helper: standard error schema
	errorSchema := openapi3.NewSchemaRef("", &openapi3.Schema{
		Type: &openapi3.Types{openapi3.TypeObject},
		Properties: map[string]*openapi3.SchemaRef{
			"error": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	})
	spec.Components.Schemas["Error"] = errorSchema

	jsonError := func(desc string) *openapi3.ResponseRef {
		resp := openapi3.NewResponse().WithDescription(desc)
		resp.Content = openapi3.NewContentWithJSONSchemaRef(errorSchema)
		return &openapi3.ResponseRef{Value: resp}
	}

	intPathParam := func(name string) *openapi3.ParameterRef {
		return &openapi3.ParameterRef{Value: &openapi3.Parameter{Name: name, In: openapi3.ParameterInPath, Required: true, Schema: openapi3.NewSchemaRef("", openapi3.NewIntegerSchema())}}
	}
	stringPathParam := func(name string) *openapi3.ParameterRef {
		return &openapi3.ParameterRef{Value: &openapi3.Parameter{Name: name, In: openapi3.ParameterInPath, Required: true, Schema: openapi3.NewSchemaRef("", openapi3.NewStringSchema())}}
	}
	portParam := intPathParam("port")
	indexParam := intPathParam("index")
	kindParam := stringPathParam("kind")
	rindexParam := intPathParam("rindex")
	bindexParam := intPathParam("bindex")
	nameParam := stringPathParam("name")
	categoryParam := stringPathParam("category")
	revisionParam := &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        "X-Trellis-Revision",
		In:          openapi3.ParameterInHeader,
		Required:    false,
		Description: "Revision the edit was computed against; the mutation is rejected with 409 when it no longer matches.",
		Schema:      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
	}}

	mutationResponses := func(success string) *openapi3.Responses {
		responses := openapi3.NewResponses()
		resp := openapi3.NewResponse().WithDescription("Mutation committed")
		resp.Content = openapi3.NewContentWithJSONSchemaRef(editRespRef)
		responses.Set(success, &openapi3.ResponseRef{Value: resp})
		responses.Set("400", jsonError("Bad request"))
		responses.Set("404", jsonError("Address not found"))
		responses.Set("409", jsonError("Invariant violation or stale revision"))
		responses.Set("500", jsonError("Internal error"))
		return responses
	}

	// Node create/update operations share the edit form body and response.
	editOp := func(summary, operationID, success string, params ...*openapi3.ParameterRef) *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = summary
		op.OperationID = operationID
		op.Tags = []string{"nodes"}
		op.Parameters = append(openapi3.Parameters{revisionParam}, params...)
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: openapi3.NewContentWithJSONSchemaRef(editReqRef)}}
		op.Responses = mutationResponses(success)
		return op
	}
	deleteOp := func(summary, operationID string, params ...*openapi3.ParameterRef) *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = summary
		op.OperationID = operationID
		op.Tags = []string{"nodes"}
		op.Parameters = append(openapi3.Parameters{revisionParam}, params...)
		op.Responses = mutationResponses("200")
		return op
	}

	// /healthz
	spec.AddOperation("/healthz", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Health check"
		op.OperationID = "getHealth"
		op.Tags = []string{"health"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Service is healthy")
			schema := openapi3.NewObjectSchema()
			schema.Properties = map[string]*openapi3.SchemaRef{
				"status": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			}
			resp.Content = openapi3.NewContentWithJSONSchema(schema)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		return op
	}())

	// /api/v1/hierarchy
	spec.AddOperation("/api/v1/hierarchy", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Hierarchy tree with diagnostics"
		op.OperationID = "getHierarchy"
		op.Tags = []string{"hierarchy"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Tree recomputed from the current document")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(snapshotRef)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())

	// /api/v1/stats
	spec.AddOperation("/api/v1/stats", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Aggregate node counts"
		op.OperationID = "getStats"
		op.Tags = []string{"hierarchy"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Counts for the current document")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(statsRespRef)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())

	// /api/v1/document
	spec.AddOperation("/api/v1/document", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Fetch the configuration document"
		op.OperationID = "getDocument"
		op.Tags = []string{"document"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Document; revision in the X-Trellis-Revision header")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(documentRef)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())
	spec.AddOperation("/api/v1/document", http.MethodPut, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Replace the configuration document"
		op.OperationID = "replaceDocument"
		op.Tags = []string{"document"}
		op.Parameters = openapi3.Parameters{revisionParam}
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: openapi3.NewContentWithJSONSchemaRef(documentRef)}}
		op.Responses = mutationResponses("200")
		return op
	}())

	// /api/v1/document/history
	spec.AddOperation("/api/v1/document/history", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Revision history, newest first"
		op.OperationID = "getDocumentHistory"
		op.Tags = []string{"document"}
		op.Parameters = openapi3.Parameters{&openapi3.ParameterRef{Value: &openapi3.Parameter{Name: "limit", In: openapi3.ParameterInQuery, Required: false, Schema: openapi3.NewSchemaRef("", openapi3.NewIntegerSchema())}}}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("History entries")
			arr := &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: historyRef}
			resp.Content = openapi3.NewContentWithJSONSchema(arr)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("404", jsonError("Gateway keeps no history"))
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())

	// /api/v1/document/history/{revision}
	spec.AddOperation("/api/v1/document/history/{revision}", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "One historical document snapshot"
		op.OperationID = "getDocumentHistorySnapshot"
		op.Tags = []string{"document"}
		op.Parameters = openapi3.Parameters{stringPathParam("revision")}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("History entry")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(historyRef)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("404", jsonError("Unknown revision or no history"))
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())

	// /api/v1/schemas
	spec.AddOperation("/api/v1/schemas", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "List schema categories"
		op.OperationID = "listSchemas"
		op.Tags = []string{"schemas"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Category names")
			schema := openapi3.NewObjectSchema()
			schema.Properties = map[string]*openapi3.SchemaRef{
				"categories": openapi3.NewSchemaRef("", &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: openapi3.NewSchemaRef("", openapi3.NewStringSchema())}),
			}
			resp.Content = openapi3.NewContentWithJSONSchema(schema)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		return op
	}())
	spec.AddOperation("/api/v1/schemas/{category}", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Fetch a category's form schema"
		op.OperationID = "getSchema"
		op.Tags = []string{"schemas"}
		op.Parameters = openapi3.Parameters{categoryParam}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("JSON Schema fragment")
			resp.Content = openapi3.NewContentWithJSONSchema(openapi3.NewObjectSchema())
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("404", jsonError("Unknown category"))
		return op
	}())
	spec.AddOperation("/api/v1/schemas/{category}/resolve", http.MethodPost, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Resolve a union field against a form value"
		op.OperationID = "resolveSchema"
		op.Tags = []string{"schemas"}
		op.Parameters = openapi3.Parameters{categoryParam}
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: openapi3.NewContentWithJSONSchemaRef(resolveReqRef)}}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Union resolution, optionally with a rewritten value")
			resp.Content = openapi3.NewContentWithJSONSchemaRef(resolveResultRef)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("400", jsonError("Bad request"))
		op.Responses.Set("404", jsonError("Unknown category"))
		return op
	}())

	// Node tree mutations.
	spec.AddOperation("/api/v1/binds", http.MethodPost, editOp("Create bind", "createBind", "201"))
	spec.AddOperation("/api/v1/binds/{port}", http.MethodPut, editOp("Update bind", "updateBind", "200", portParam))
	spec.AddOperation("/api/v1/binds/{port}", http.MethodDelete, deleteOp("Delete bind", "deleteBind", portParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners", http.MethodPost, editOp("Create listener", "createListener", "201", portParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}", http.MethodPut, editOp("Update listener", "updateListener", "200", portParam, indexParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}", http.MethodDelete, deleteOp("Delete listener", "deleteListener", portParam, indexParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}/routes/{kind}", http.MethodPost, editOp("Create route", "createRoute", "201", portParam, indexParam, kindParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}/routes/{kind}/{rindex}", http.MethodPut, editOp("Update route", "updateRoute", "200", portParam, indexParam, kindParam, rindexParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}/routes/{kind}/{rindex}", http.MethodDelete, deleteOp("Delete route", "deleteRoute", portParam, indexParam, kindParam, rindexParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}/routes/{kind}/{rindex}/backends", http.MethodPost, editOp("Create backend", "createBackend", "201", portParam, indexParam, kindParam, rindexParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}/routes/{kind}/{rindex}/backends/{bindex}", http.MethodPut, editOp("Update backend", "updateBackend", "200", portParam, indexParam, kindParam, rindexParam, bindexParam))
	spec.AddOperation("/api/v1/binds/{port}/listeners/{index}/routes/{kind}/{rindex}/backends/{bindex}", http.MethodDelete, deleteOp("Delete backend", "deleteBackend", portParam, indexParam, kindParam, rindexParam, bindexParam))

	// /api/v1/backends
	spec.AddOperation("/api/v1/backends", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "List named backends"
		op.OperationID = "listNamedBackends"
		op.Tags = []string{"backends"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Named backends")
			arr := &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: namedBackendRef}
			resp.Content = openapi3.NewContentWithJSONSchema(arr)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())
	spec.AddOperation("/api/v1/backends/{name}", http.MethodPut, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Create or replace a named backend"
		op.OperationID = "upsertNamedBackend"
		op.Tags = []string{"backends"}
		op.Parameters = openapi3.Parameters{revisionParam, nameParam}
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: openapi3.NewContentWithJSONSchemaRef(backendRef)}}
		op.Responses = mutationResponses("200")
		return op
	}())
	spec.AddOperation("/api/v1/backends/{name}", http.MethodDelete, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Delete a named backend"
		op.OperationID = "deleteNamedBackend"
		op.Tags = []string{"backends"}
		op.Parameters = openapi3.Parameters{revisionParam, nameParam}
		op.Responses = mutationResponses("200")
		return op
	}())

	// /api/v1/policies
	spec.AddOperation("/api/v1/policies", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "List policies"
		op.OperationID = "listPolicies"
		op.Tags = []string{"policies"}
		op.Responses = openapi3.NewResponses()
		{
			resp := openapi3.NewResponse().WithDescription("Policies")
			arr := &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: policyRef}
			resp.Content = openapi3.NewContentWithJSONSchema(arr)
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())
	spec.AddOperation("/api/v1/policies/{name}", http.MethodPut, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Create or replace a policy"
		op.OperationID = "upsertPolicy"
		op.Tags = []string{"policies"}
		op.Parameters = openapi3.Parameters{revisionParam, nameParam}
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{Required: true, Content: openapi3.NewContentWithJSONSchemaRef(policyRef)}}
		op.Responses = mutationResponses("200")
		return op
	}())
	spec.AddOperation("/api/v1/policies/{name}", http.MethodDelete, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Delete a policy"
		op.OperationID = "deletePolicy"
		op.Tags = []string{"policies"}
		op.Parameters = openapi3.Parameters{revisionParam, nameParam}
		op.Responses = mutationResponses("200")
		return op
	}())

	// /api/v1/events/document (SSE)
	spec.AddOperation("/api/v1/events/document", http.MethodGet, func() *openapi3.Operation {
		op := openapi3.NewOperation()
		op.Summary = "Stream document change events (SSE)"
		op.OperationID = "streamDocumentEvents"
		op.Tags = []string{"events"}
		op.Responses = openapi3.NewResponses()
		{
			desc := "SSE stream of document events"
			resp := &openapi3.Response{Description: &desc, Content: openapi3.Content{"text/event-stream": {Schema: docEventRef}}}
			op.Responses.Set("200", &openapi3.ResponseRef{Value: resp})
		}
		op.Responses.Set("500", jsonError("Internal error"))
		return op
	}())

	return spec, nil
}
