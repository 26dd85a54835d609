package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CertChain API",
        "description": "Blockchain-anchored academic certificate issuance and verification",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Issuer account login"},
        {"name": "Certificates", "description": "Single issuance, lookup and verification"},
        {"name": "Batch", "description": "Bulk CSV issuance pipeline"},
        {"name": "Artifacts", "description": "Signed artifact downloads"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate an issuer account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates": {
            "get": {
                "tags": ["Certificates"],
                "summary": "List issued certificates",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "institution", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"},
                    {"name": "sortOrder", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Certificates"],
                "summary": "Issue a single certificate",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IssueCertificateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Chain unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/{certId}": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Get an issued certificate record",
                "parameters": [
                    {"name": "certId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/{certId}/verify": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Verify a certificate against the chain",
                "parameters": [
                    {"name": "certId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown certificate", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Chain unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/batch/validate": {
            "post": {
                "tags": ["Batch"],
                "summary": "Validate a batch CSV upload",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"},
                    {"name": "templateId", "in": "formData", "type": "string"},
                    {"name": "notify", "in": "formData", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "Validation report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed upload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/batch/{id}/process": {
            "post": {
                "tags": ["Batch"],
                "summary": "Start processing a validated batch",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already started", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/batch/{id}/status": {
            "get": {
                "tags": ["Batch"],
                "summary": "Poll batch job status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/batch/{id}/results": {
            "get": {
                "tags": ["Batch"],
                "summary": "Fetch the terminal batch result set",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job still processing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/artifacts/{token}": {
            "get": {
                "tags": ["Artifacts"],
                "summary": "Download a generated artifact",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Artifact content"},
                    "401": {"description": "Invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Artifact missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "IssueCertificateRequest": {
            "type": "object",
            "properties": {
                "studentName": {"type": "string"},
                "studentId": {"type": "string"},
                "degree": {"type": "string"},
                "institution": {"type": "string"},
                "issueDate": {"type": "string"},
                "email": {"type": "string"},
                "templateId": {"type": "string"},
                "notify": {"type": "boolean"}
            },
            "required": ["studentName", "studentId", "degree", "institution", "issueDate"]
        },
        "IssueCertificateResponse": {
            "type": "object",
            "properties": {
                "certificateId": {"type": "string"},
                "txHash": {"type": "string"},
                "blockNumber": {"type": "integer"},
                "gasUsed": {"type": "integer"},
                "contentId": {"type": "string"},
                "contentHash": {"type": "string"},
                "certificateUrl": {"type": "string"},
                "qrCodeUrl": {"type": "string"},
                "verifyUrl": {"type": "string"},
                "notificationStatus": {"type": "string"}
            }
        },
        "VerificationResult": {
            "type": "object",
            "properties": {
                "certificateId": {"type": "string"},
                "valid": {"type": "boolean"},
                "studentName": {"type": "string"},
                "studentId": {"type": "string"},
                "degree": {"type": "string"},
                "institution": {"type": "string"},
                "issueDate": {"type": "integer"},
                "contentId": {"type": "string"},
                "gatewayUrl": {"type": "string"},
                "txHash": {"type": "string"},
                "blockNumber": {"type": "integer"},
                "verifiedAt": {"type": "string"},
                "source": {"type": "string"}
            }
        },
        "BatchJob": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "templateId": {"type": "string"},
                "notify": {"type": "boolean"},
                "createdBy": {"type": "string"},
                "createdAt": {"type": "string"},
                "completedAt": {"type": "string"},
                "progress": {"$ref": "#/definitions/BatchProgress"},
                "summary": {"$ref": "#/definitions/BatchSummary"}
            }
        },
        "BatchProgress": {
            "type": "object",
            "properties": {
                "phase": {"type": "string"},
                "processed": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "BatchSummary": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "succeeded": {"type": "integer"},
                "documentFailed": {"type": "integer"},
                "blockchainFailed": {"type": "integer"},
                "notified": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
