// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package admin

import "net/http"

// swaggerSpec is a hand-maintained Swagger 2.0 document describing the
// handlers in this package. A generated equivalent would normally come
// from running swag init over the @-annotated doc comments in handlers.go;
// it is kept inline here instead of in a separate generated package.
const swaggerSpec = `{
  "swagger": "2.0",
  "info": {
    "title": "socrt admin API",
    "description": "Read-only introspection over a running socrt runtime.",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/livez": {
      "get": {
        "tags": ["Health"],
        "summary": "Liveness probe",
        "responses": {"200": {"description": "process is alive"}}
      }
    },
    "/readyz": {
      "get": {
        "tags": ["Health"],
        "summary": "Readiness probe",
        "responses": {"200": {"description": "registry can be queried"}}
      }
    },
    "/api/v1/services": {
      "get": {
        "tags": ["Services"],
        "summary": "List known services",
        "responses": {"200": {"description": "current registry snapshot"}}
      }
    }
  }
}`

func serveSwaggerSpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(swaggerSpec))
}
