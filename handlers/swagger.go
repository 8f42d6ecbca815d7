package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the user search service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>usersearch Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "usersearch", "version": "v0.1.0" },
  "components": {
    "schemas": {
      "User": { "type": "object", "required": ["username", "email"], "properties": { "username": {"type":"string","minLength":1}, "email": {"type":"string","description":"must be present, may be empty"} } },
      "UserUpdate": { "type": "object", "required": ["email"], "properties": { "email": {"type":"string","description":"must be present, may be empty"} } },
      "Hit": { "type": "object", "properties": { "id": {"type":"string"}, "details": {"$ref":"#/components/schemas/User"} } },
      "NotFound": { "type": "object", "properties": { "detail": {"type":"string","example":"User not found"} } }
    }
  },
  "paths": {
    "/users": {
      "post": {
        "summary": "Create or overwrite a user",
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/User"} } } },
        "responses": { "200": { "description": "User created successfully" }, "400": { "description": "invalid body" } }
      },
      "get": {
        "summary": "List up to 100 users",
        "responses": { "200": { "description": "{message: [Hit]}" } }
      }
    },
    "/users/{username}": {
      "parameters": [ { "name": "username", "in": "path", "required": true, "schema": {"type":"string"} } ],
      "get": { "summary": "Get a user", "responses": { "200": { "description": "user", "content": { "application/json": { "schema": {"$ref":"#/components/schemas/User"} } } }, "404": { "description": "User not found" } } },
      "put": {
        "summary": "Replace a user's email",
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/UserUpdate"} } } },
        "responses": { "200": { "description": "User updated successfully" }, "400": { "description": "invalid body" } }
      },
      "delete": { "summary": "Delete a user", "responses": { "200": { "description": "User deleted successfully" } } }
    },
    "/auto_complete/{search_text}": {
      "post": {
        "summary": "Suggest usernames by prefix",
        "parameters": [ { "name": "search_text", "in": "path", "required": true, "schema": {"type":"string"} } ],
        "responses": { "200": { "description": "{names: [string]}" }, "404": { "description": "User not found" } }
      }
    },
    "/admin/export": {
      "post": { "summary": "Snapshot users to object storage", "description": "Not authenticated. Exposes the same users as GET /users through a presigned link; restrict it at the network edge.", "responses": { "200": { "description": "key, url and count" }, "502": { "description": "export failed" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`
