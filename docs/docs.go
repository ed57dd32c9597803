// Package docs provides the generated Swagger specification for the
// helpdesk API. Regenerate with `swag init -g cmd/helpdesk-service/main.go`.
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
        "/receipts/{eventId}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["receipts"],
                "summary": "Get a receipt by event id",
                "parameters": [
                    {"type": "string", "description": "Source event id", "name": "eventId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/receipts/{eventId}/recover-failed": {
            "post": {
                "produces": ["application/json"],
                "tags": ["receipts"],
                "summary": "Recover a stuck receipt",
                "parameters": [
                    {"type": "string", "description": "Source event id", "name": "eventId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"},
                    "422": {"description": "Unprocessable Entity"}
                }
            }
        },
        "/receipts/recover-failed": {
            "post": {
                "produces": ["application/json"],
                "tags": ["receipts"],
                "summary": "Recover all stuck receipts",
                "parameters": [
                    {"type": "string", "description": "Restrict the sweep to one status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/receipts/{eventId}/recover-not-notified": {
            "post": {
                "produces": ["application/json"],
                "tags": ["receipts"],
                "summary": "Reset a stuck notification",
                "parameters": [
                    {"type": "string", "description": "Source event id", "name": "eventId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"},
                    "422": {"description": "Unprocessable Entity"}
                }
            }
        },
        "/receipts/recover-not-notified": {
            "post": {
                "produces": ["application/json"],
                "tags": ["receipts"],
                "summary": "Reset all stuck notifications",
                "parameters": [
                    {"type": "string", "description": "Restrict the sweep to one status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"}
                }
            }
        },
        "/receipt-errors/{id}/review": {
            "post": {
                "produces": ["application/json"],
                "tags": ["receipt-errors"],
                "summary": "Mark a poisoned message as reviewed",
                "parameters": [
                    {"type": "string", "description": "Receipt error id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"},
                    "422": {"description": "Unprocessable Entity"}
                }
            }
        },
        "/receipt-errors/requeue-reviewed": {
            "post": {
                "produces": ["application/json"],
                "tags": ["receipt-errors"],
                "summary": "Requeue reviewed poison messages",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/audit/sweeps": {
            "get": {
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "List recovery sweeps",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries to return", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "ReceiptHub Helpdesk API",
	Description:      "Recovery and review operations for the receipt pipeline",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
