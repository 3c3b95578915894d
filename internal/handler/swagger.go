package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dafibh/rentals/rentals-backend/docs"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/swaggo/swag"
)

// OpenAPI3Spec represents an OpenAPI 3.0 spec structure
type OpenAPI3Spec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       map[string]interface{} `json:"info"`
	Servers    []Server               `json:"servers"`
	Paths      map[string]interface{} `json:"paths"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// Server represents an OpenAPI 3.0 server
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// transformRefs recursively transforms $ref from #/definitions/ to #/components/schemas/
// and converts Swagger 2.0 parameters to OpenAPI 3.0 format
func transformRefs(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{})

		// Check if this is a parameter object (has "in" and "name" fields)
		if _, hasIn := v["in"]; hasIn {
			if _, hasName := v["name"]; hasName {
				return transformParameter(v)
			}
		}

		for key, value := range v {
			if key == "$ref" {
				if ref, ok := value.(string); ok {
					result[key] = strings.Replace(ref, "#/definitions/", "#/components/schemas/", 1)
				} else {
					result[key] = value
				}
			} else {
				result[key] = transformRefs(value)
			}
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = transformRefs(item)
		}
		return result
	default:
		return data
	}
}

// transformParameter converts a Swagger 2.0 parameter to OpenAPI 3.0 format
func transformParameter(param map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	// Copy standard fields
	for _, field := range []string{"name", "in", "description", "required"} {
		if val, ok := param[field]; ok {
			result[field] = val
		}
	}

	if existing, ok := param["schema"]; ok {
		result["schema"] = transformRefs(existing)
		return result
	}

	// Build schema object from type-related fields
	schema := make(map[string]interface{})
	for _, field := range []string{"type", "format", "enum", "default", "minimum", "maximum", "items"} {
		if val, ok := param[field]; ok {
			if field == "items" {
				// Transform $ref in items
				schema[field] = transformRefs(val)
			} else {
				schema[field] = val
			}
		}
	}

	if len(schema) > 0 {
		result["schema"] = schema
	}

	return result
}

// bodyToRequestBody moves Swagger 2.0 "body" and "formData" parameters of an
// operation into an OpenAPI 3.0 requestBody
func bodyToRequestBody(operation map[string]interface{}) {
	params, ok := operation["parameters"].([]interface{})
	if !ok {
		return
	}

	kept := make([]interface{}, 0, len(params))
	formProps := make(map[string]interface{})
	var formRequired []string
	for _, p := range params {
		param, ok := p.(map[string]interface{})
		if !ok {
			kept = append(kept, p)
			continue
		}
		switch param["in"] {
		case "body":
			operation["requestBody"] = map[string]interface{}{
				"required": param["required"] == true,
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": transformRefs(param["schema"]),
					},
				},
			}
		case "formData":
			name, _ := param["name"].(string)
			prop := map[string]interface{}{"type": param["type"]}
			if param["type"] == "file" {
				prop = map[string]interface{}{"type": "string", "format": "binary"}
			}
			formProps[name] = prop
			if param["required"] == true {
				formRequired = append(formRequired, name)
			}
		default:
			kept = append(kept, param)
		}
	}

	if len(formProps) > 0 {
		schema := map[string]interface{}{"type": "object", "properties": formProps}
		if len(formRequired) > 0 {
			schema["required"] = formRequired
		}
		operation["requestBody"] = map[string]interface{}{
			"content": map[string]interface{}{
				"multipart/form-data": map[string]interface{}{"schema": schema},
			},
		}
	}

	if len(kept) == 0 {
		delete(operation, "parameters")
	} else {
		operation["parameters"] = kept
	}
}

// transformResponses wraps Swagger 2.0 response schemas in OpenAPI 3.0 content
func transformResponses(operation map[string]interface{}) {
	responses, ok := operation["responses"].(map[string]interface{})
	if !ok {
		return
	}
	for code, r := range responses {
		response, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		if schema, ok := response["schema"]; ok {
			delete(response, "schema")
			response["content"] = map[string]interface{}{
				"application/json": map[string]interface{}{"schema": transformRefs(schema)},
			}
		}
		if _, ok := response["description"]; !ok {
			response["description"] = code
		}
	}
}

// convertPaths rewrites every operation of a Swagger 2.0 paths object
func convertPaths(paths map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(paths))
	for path, item := range paths {
		ops, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		converted := make(map[string]interface{}, len(ops))
		for method, op := range ops {
			operation, ok := op.(map[string]interface{})
			if !ok {
				converted[method] = op
				continue
			}
			// Drop the Swagger 2.0 only keys
			delete(operation, "consumes")
			delete(operation, "produces")
			bodyToRequestBody(operation)
			transformResponses(operation)
			converted[method] = transformRefs(operation)
		}
		result[path] = converted
	}
	return result
}

// OpenAPIHandler serves the swagger spec converted to OpenAPI 3.0
type OpenAPIHandler struct {
	servers []Server
}

// NewOpenAPIHandler creates an OpenAPIHandler advertising the given servers
func NewOpenAPIHandler(servers ...Server) *OpenAPIHandler {
	return &OpenAPIHandler{servers: servers}
}

// Convert reads the registered swagger 2.0 document and converts it
func (h *OpenAPIHandler) Convert() (*OpenAPI3Spec, error) {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return nil, err
	}

	var swagger2 map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &swagger2); err != nil {
		return nil, err
	}

	info, _ := swagger2["info"].(map[string]interface{})
	paths, _ := swagger2["paths"].(map[string]interface{})

	// Convert securityDefinitions to components/securitySchemes
	components := make(map[string]interface{})
	if secDefs, ok := swagger2["securityDefinitions"].(map[string]interface{}); ok {
		components["securitySchemes"] = secDefs
	}
	if definitions, ok := swagger2["definitions"].(map[string]interface{}); ok {
		components["schemas"] = transformRefs(definitions)
	}

	return &OpenAPI3Spec{
		OpenAPI:    "3.0.3",
		Info:       info,
		Servers:    h.servers,
		Paths:      convertPaths(paths),
		Components: components,
	}, nil
}

// Serve handles GET /openapi.json
func (h *OpenAPIHandler) Serve(c echo.Context) error {
	spec, err := h.Convert()
	if err != nil {
		log.Error().Err(err).Msg("Failed to convert swagger doc")
		return NewInternalError(c, "Failed to read API documentation")
	}
	return c.JSON(http.StatusOK, spec)
}
