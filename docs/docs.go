// Package docs registers the OpenAPI document served by the Swagger UI
// route. Regenerate with `swag init -g cmd/server/main.go` after changing
// handler annotations.
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
        "/ai/chat/query": {
            "post": {
                "description": "Runs the full AI pipeline: input validation, tool-assisted model call, output validation, and persistence. Rejections and failures are returned as 200 responses with the corresponding status.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Submit a chat query",
                "operationId": "chatQuery",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"type": "string", "description": "Idempotency key for safe retries (UUID recommended)", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Query payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ChatQueryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/orchestrator.Response"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/ai/chat/stream": {
            "post": {
                "description": "Runs the AI pipeline in streaming mode over Server-Sent Events. Each data frame is a JSON object carrying either a delta fragment or the terminal frame (done: true) with the turn's final status.",
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "tags": ["Chat"],
                "summary": "Submit a chat query with a streamed answer",
                "operationId": "chatStream",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"description": "Query payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ChatQueryRequest"}}
                ],
                "responses": {
                    "200": {"description": "SSE stream", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/ai/tools": {
            "get": {
                "description": "Returns the tool definitions the model may call, including their JSON Schema parameter contracts.",
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "List available AI tools",
                "operationId": "listTools",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListToolsResponse"}}
                }
            }
        },
        "/ai/chat/threads": {
            "get": {
                "description": "Returns a page of the account's threads, newest activity first. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "List conversation threads (paginated)",
                "operationId": "listThreads",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"type": "integer", "default": 1, "minimum": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "maximum": 100, "minimum": 1, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListThreadsResponse"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/ai/chat/threads/{id}": {
            "get": {
                "description": "Returns a single thread owned by the current account.",
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "Fetch a conversation thread",
                "operationId": "getThread",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Thread ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ConversationThread"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "Marks a thread inactive. Deactivated threads are excluded from thread resolution and eventually purged by the retention job.",
                "tags": ["Threads"],
                "summary": "Deactivate a conversation thread",
                "operationId": "deactivateThread",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Thread ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/ai/chat/threads/{id}/messages": {
            "get": {
                "description": "Returns a paginated list of messages for the given thread, oldest first. Supports weak ETag via If-None-Match.",
                "produces": ["application/json"],
                "tags": ["Threads"],
                "summary": "List messages in a thread",
                "operationId": "listThreadMessages",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Thread ID (UUID)", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 1, "minimum": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "maximum": 100, "minimum": 1, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListThreadMessagesResponse"}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Thread not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/ai/incidents": {
            "get": {
                "description": "Returns a page of recorded guardrail incidents for the current account, newest first.",
                "produces": ["application/json"],
                "tags": ["Incidents"],
                "summary": "List security incidents (paginated)",
                "operationId": "listIncidents",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"type": "integer", "default": 1, "minimum": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "maximum": 100, "minimum": 1, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListIncidentsResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/ai/incidents/{id}/resolve": {
            "post": {
                "description": "Marks an incident resolved with a free-text resolution note.",
                "consumes": ["application/json"],
                "tags": ["Incidents"],
                "summary": "Resolve a security incident",
                "operationId": "resolveIncident",
                "parameters": [
                    {"type": "string", "description": "Account ID (demo header)", "name": "X-Account-ID", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Incident ID (UUID)", "name": "id", "in": "path", "required": true},
                    {"description": "Resolution payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ResolveIncidentRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Incident not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ChatQueryRequest": {
            "type": "object",
            "required": ["query"],
            "properties": {
                "query": {"type": "string", "minLength": 1, "example": "What are my top holdings today?"},
                "thread_id": {"type": "string", "format": "uuid"},
                "context_date": {"type": "string", "example": "2026-08-28"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handlers.ListToolsResponse": {
            "type": "object",
            "properties": {
                "tools": {"type": "array", "items": {"type": "object"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.ListThreadsResponse": {
            "type": "object",
            "properties": {
                "threads": {"type": "array", "items": {"$ref": "#/definitions/domain.ConversationThread"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ListThreadMessagesResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"type": "object"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ListIncidentsResponse": {
            "type": "object",
            "properties": {
                "incidents": {"type": "array", "items": {"type": "object"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.ResolveIncidentRequest": {
            "type": "object",
            "required": ["resolution"],
            "properties": {
                "resolution": {"type": "string", "minLength": 1, "maxLength": 1000}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "domain.ConversationThread": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "account_id": {"type": "integer"},
                "title": {"type": "string"},
                "is_active": {"type": "boolean"},
                "created_at": {"type": "string", "format": "date-time"},
                "last_activity_at": {"type": "string", "format": "date-time"}
            }
        },
        "orchestrator.Response": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["completed", "rejected", "failed"]},
                "thread_id": {"type": "string", "format": "uuid"},
                "message_id": {"type": "string", "format": "uuid"},
                "content": {"type": "string"},
                "tool_rounds": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Portfolio AI Backend API",
	Description:      "AI chat backend for portfolio management: guarded tool-assisted chat, thread history, and incident review.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
