// Package docs registers the OpenAPI description of the trending HTTP API
// with swag. Regenerate with `swag init -g cmd/trending/main.go` after
// changing handler annotations.
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
        "/api/v1/trending/items/{item_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["热度"],
                "summary": "查询热度",
                "parameters": [
                    {"type": "string", "description": "条目ID", "name": "item_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/response.Response"},
                                {"type": "object", "properties": {"data": {"$ref": "#/definitions/model.TrendingRecord"}}}
                            ]
                        }
                    },
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            },
            "delete": {
                "tags": ["热度"],
                "summary": "删除热度记录",
                "parameters": [
                    {"type": "string", "description": "条目ID", "name": "item_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/trending/views": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["热度"],
                "summary": "记录浏览",
                "parameters": [
                    {
                        "description": "浏览事件，timestamp 缺省为服务端当前时间",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.recordViewRequest"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/response.Response"},
                                {"type": "object", "properties": {"data": {"$ref": "#/definitions/model.TrendingRecord"}}}
                            ]
                        }
                    },
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/response.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/api/v1/trending/{item_type}/evict": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["热度"],
                "summary": "淘汰尾部条目",
                "parameters": [
                    {"type": "string", "description": "条目类型 post/user", "name": "item_type", "in": "path", "required": true},
                    {
                        "description": "保留策略覆盖",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/handler.evictRequest"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/response.Response"},
                                {"type": "object", "properties": {"data": {"$ref": "#/definitions/service.EvictStats"}}}
                            ]
                        }
                    }
                }
            }
        },
        "/api/v1/trending/{item_type}/reindex": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["热度"],
                "summary": "重算热度",
                "parameters": [
                    {"type": "string", "description": "条目类型 post/user", "name": "item_type", "in": "path", "required": true},
                    {
                        "description": "cutoff 缺省为当前时间",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/handler.reindexRequest"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/response.Response"},
                                {"type": "object", "properties": {"data": {"$ref": "#/definitions/service.ReindexStats"}}}
                            ]
                        }
                    }
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["系统"],
                "summary": "健康检查",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        }
    },
    "definitions": {
        "handler.evictRequest": {
            "type": "object",
            "properties": {
                "max_retained": {"type": "integer"},
                "min_score": {"type": "number"}
            }
        },
        "handler.recordViewRequest": {
            "type": "object",
            "required": ["item_id", "item_type"],
            "properties": {
                "amount": {"type": "integer"},
                "item_id": {"type": "string", "maxLength": 64},
                "item_type": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "handler.reindexRequest": {
            "type": "object",
            "properties": {
                "cutoff": {"type": "string"}
            }
        },
        "model.TrendingRecord": {
            "type": "object",
            "properties": {
                "created_at": {"type": "integer"},
                "item_id": {"type": "string"},
                "item_type": {"type": "string"},
                "last_indexed_at": {"type": "integer"},
                "pending_view_count": {"type": "integer"},
                "score": {"type": "number"}
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"}
            }
        },
        "service.EvictStats": {
            "type": "object",
            "properties": {
                "evicted": {"type": "integer"},
                "remaining": {"type": "integer"},
                "scanned": {"type": "integer"},
                "skipped": {"type": "integer"}
            }
        },
        "service.ReindexStats": {
            "type": "object",
            "properties": {
                "scanned": {"type": "integer"},
                "skipped": {"type": "integer"},
                "unchanged": {"type": "integer"},
                "updated": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Trending API",
	Description:      "热度评分引擎：浏览记录、定期重算与尾部淘汰",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
