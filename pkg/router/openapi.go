package router

import (
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/wangfeng/cherrycake-gateway/pkg/request"
	"github.com/wangfeng/cherrycake-gateway/pkg/security"
)

// OpenAPI describes the mapped actions as an OpenAPI 3 document. An action
// with body parameters is documented as POST, every other one as GET. When
// several actions share a path and method the first one mapped documents it.
func (r *Actions) OpenAPI(title, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: title, Version: version},
		Paths:   openapi3.NewPaths(),
	}

	for _, m := range r.snapshot() {
		req := m.action.Request
		method := http.MethodGet
		body := openapi3.NewObjectSchema()
		for _, p := range req.Parameters() {
			if p.Source == request.SourceBody {
				method = http.MethodPost
				body.WithProperty(p.Name, parameterSchema(p))
			}
		}

		pattern := req.Pattern()
		if item := doc.Paths.Value(pattern); item != nil && item.GetOperation(method) != nil {
			op := item.GetOperation(method)
			op.Description = strings.TrimSpace(op.Description + "\nAlso answered by " + m.name + ".")
			continue
		}

		op := openapi3.NewOperation()
		op.OperationID = m.name
		op.Summary = m.action.Target()
		op.Description = req.Description()
		op.Tags = []string{m.action.ModuleName}

		for _, p := range req.Parameters() {
			var param *openapi3.Parameter
			switch p.Source {
			case request.SourcePath:
				param = openapi3.NewPathParameter(p.Name)
			case request.SourceQuery:
				param = openapi3.NewQueryParameter(p.Name).WithRequired(requires(p))
			default:
				continue
			}
			op.AddParameter(param.WithSchema(parameterSchema(p)).WithDescription(p.Description))
		}

		if method == http.MethodPost {
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().WithFormDataSchema(body),
			}
		}
		if req.CSRF() {
			op.AddParameter(openapi3.NewHeaderParameter("X-CSRF-Token").
				WithSchema(openapi3.NewStringSchema()).
				WithDescription("Must match the csrf_token cookie"))
		}

		op.AddResponse(http.StatusOK, openapi3.NewResponse().WithDescription("Accepted"))
		op.AddResponse(http.StatusNotFound, openapi3.NewResponse().WithDescription("No action accepted the request"))
		doc.AddOperation(pattern, method, op)
	}
	return doc
}

func requires(p request.Parameter) bool {
	for _, rule := range p.SecurityRules {
		if rule == security.RuleNotEmpty {
			return true
		}
	}
	return false
}

func parameterSchema(p request.Parameter) *openapi3.Schema {
	for _, rule := range p.SecurityRules {
		switch rule {
		case security.RuleInteger, security.RulePositive:
			return openapi3.NewIntegerSchema()
		case security.RuleNumeric:
			return openapi3.NewFloat64Schema()
		case security.RuleBoolean:
			return openapi3.NewBoolSchema()
		case security.RuleEmail:
			return openapi3.NewStringSchema().WithFormat("email")
		case security.RuleUUID:
			return openapi3.NewUUIDSchema()
		}
	}
	return openapi3.NewStringSchema()
}
