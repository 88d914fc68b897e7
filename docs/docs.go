// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Removal"],
                "summary": "Service status",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "properties": {"status": {"type": "string"}}
                        }
                    }
                }
            }
        },
        "/api/v1/credits": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Removal"],
                "summary": "Get remaining credits",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CreditsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/api/v1/remove-background": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Verifies the bearer token, charges one credit, removes the background and returns a PNG data URL. The credit is refunded if processing fails.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Removal"],
                "summary": "Remove image background",
                "parameters": [
                    {
                        "description": "Base64 image",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.RemovalRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.RemovalResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.CreditsResponse": {
            "description": "Credit balance",
            "type": "object",
            "properties": {
                "remaining_credits": {"type": "integer", "example": 5}
            }
        },
        "models.RemovalRequest": {
            "description": "Background removal request",
            "type": "object",
            "required": ["data_sent"],
            "properties": {
                "data_sent": {
                    "description": "Base64 image, optionally data-URL prefixed",
                    "type": "string",
                    "example": "data:image/png;base64,iVBORw0KGgo..."
                }
            }
        },
        "models.RemovalResult": {
            "description": "Background removal response",
            "type": "object",
            "properties": {
                "data_received": {
                    "description": "PNG with transparent background",
                    "type": "string",
                    "example": "data:image/png;base64,iVBORw0KGgo..."
                },
                "remaining_credits": {
                    "description": "Balance after the charge",
                    "type": "integer",
                    "example": 2
                }
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"description": "Stable error code", "type": "string"},
                "details": {
                    "description": "Validation details",
                    "type": "object",
                    "additionalProperties": {"type": "string"}
                },
                "error": {"description": "Error message", "type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Background Removal API",
	Description:      "Credit-metered background removal",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
