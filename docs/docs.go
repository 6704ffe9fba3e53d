// Package docs serves the OpenAPI description of the HTTP API to gin-swagger.
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
        "/healthz": {
            "get": {
                "summary": "Liveness",
                "tags": [
                    "health"
                ],
                "parameters": [],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/areas/{id}/bookings": {
            "post": {
                "summary": "Create booking (idempotent)",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Area ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "payload",
                        "name": "req",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/httpgin.CreateBookingRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "confirmed or pending",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "area not found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "area full / idem in progress",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limited",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/areas/{id}/occupancy": {
            "get": {
                "summary": "Occupancy of an area for a window",
                "tags": [
                    "areas"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Area ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "window start (RFC3339)",
                        "name": "start",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "window end, exclusive (RFC3339)",
                        "name": "end",
                        "in": "query",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/httpgin.OccupancyResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}": {
            "get": {
                "summary": "Get booking",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/reject": {
            "post": {
                "summary": "Reject pending bookings in bulk",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "description": "payload",
                        "name": "req",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/httpgin.RejectManyRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/httpgin.RejectManyResponse"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/internal/reconcile": {
            "post": {
                "summary": "Run one reconciliation cycle",
                "tags": [
                    "internal"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "shared secret",
                        "name": "X-Cron-Secret",
                        "in": "header"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/reconcile.Result"
                        }
                    },
                    "401": {
                        "description": "Unauthorized",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}/cancel": {
            "post": {
                "summary": "Change booking status",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "current status in body",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}/payment-confirmed": {
            "post": {
                "summary": "Change booking status",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "current status in body",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}/approve": {
            "post": {
                "summary": "Change booking status",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "current status in body",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}/reject": {
            "post": {
                "summary": "Change booking status",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "current status in body",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}/checkin": {
            "post": {
                "summary": "Change booking status",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "current status in body",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}/complete": {
            "post": {
                "summary": "Change booking status",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "current status in body",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/bookings/{id}/noshow": {
            "post": {
                "summary": "Change booking status",
                "tags": [
                    "bookings"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Booking ID (uuid)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Booking"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "current status in body",
                        "schema": {
                            "$ref": "#/definitions/httpgin.ErrorResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "domain.Booking": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "space_id": {
                    "type": "string"
                },
                "area_id": {
                    "type": "string"
                },
                "customer_id": {
                    "type": "string"
                },
                "partner_id": {
                    "type": "string"
                },
                "start_at": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string"
                },
                "guest_count": {
                    "type": "integer"
                },
                "area_max_capacity": {
                    "type": "integer"
                },
                "status": {
                    "type": "string"
                },
                "decision": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                }
            }
        },
        "httpgin.CreateBookingRequest": {
            "type": "object",
            "required": [
                "customer_id",
                "start_at",
                "expires_at"
            ],
            "properties": {
                "customer_id": {
                    "type": "string"
                },
                "start_at": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string"
                },
                "guest_count": {
                    "type": "integer"
                }
            }
        },
        "httpgin.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "status": {
                    "type": "string"
                }
            }
        },
        "httpgin.OccupancyResponse": {
            "type": "object",
            "properties": {
                "area_id": {
                    "type": "string"
                },
                "start_at": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string"
                },
                "guests": {
                    "type": "integer"
                }
            }
        },
        "httpgin.RejectManyRequest": {
            "type": "object",
            "required": [
                "ids"
            ],
            "properties": {
                "ids": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "httpgin.RejectManyResponse": {
            "type": "object",
            "properties": {
                "rejected": {
                    "type": "integer"
                }
            }
        },
        "reconcile.Result": {
            "type": "object",
            "properties": {
                "auto_confirmed": {
                    "type": "integer"
                },
                "expired": {
                    "type": "integer"
                },
                "capacity_warnings": {
                    "type": "integer"
                },
                "skipped": {
                    "type": "integer"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Spacebook API",
	Description:      "Booking admission and capacity reconciliation for coworking areas.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
